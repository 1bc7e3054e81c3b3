// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes casewatch pipeline state via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"casewatch/internal/api"
	"casewatch/internal/apperr"
)

// Server wraps the MCP server with casewatch tools.
type Server struct {
	mcp *server.MCPServer
	svc *api.Service
}

// New creates a new MCP server with all casewatch tools registered.
func New(svc *api.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Casewatch",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_cases",
		mcp.WithDescription("List the processing status of every known case."),
	), s.listCases)

	s.mcp.AddTool(mcp.NewTool("get_case",
		mcp.WithDescription("Get the status and transition history of one case."),
		mcp.WithString("case_id", mcp.Required(), mcp.Description("Case ID (transcript filename stem)")),
	), s.getCase)

	s.mcp.AddTool(mcp.NewTool("get_case_history",
		mcp.WithDescription("Get the extracted question/answer history of one case."),
		mcp.WithString("case_id", mcp.Required(), mcp.Description("Case ID (transcript filename stem)")),
	), s.getCaseHistory)

	s.mcp.AddTool(mcp.NewTool("get_judgment_contract",
		mcp.WithDescription("Returns the judgment contract: the labelled response format, "+
			"decision semantics, and the default reviewer prompt."),
	), s.getJudgmentContract)

	// Resource: judgment contract.
	s.mcp.AddResource(
		mcp.NewResource("casewatch://judgment-contract", "Judgment Contract",
			mcp.WithResourceDescription("Labelled verdict format and reviewer prompt used for case judgments."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listCases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	statuses, err := s.svc.ListCases()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(statuses, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getCase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := req.RequireString("case_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetCase(caseID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("case not found: %s", caseID)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getCaseHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := req.RequireString("case_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.svc.GetHistory(caseID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no extracted history for case: %s", caseID)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(entries, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getJudgmentContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(JudgmentContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "casewatch://judgment-contract",
			MIMEType: "text/markdown",
			Text:     JudgmentContract,
		},
	}, nil
}
