// Package judge submits a case history to an OpenAI-compatible chat
// endpoint and returns the model's raw response text.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"casewatch/internal/apperr"
	"casewatch/internal/models"
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Prompt      string // empty means DefaultPrompt
}

// Client calls the LLM chat endpoint.
type Client struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a judgment client. A prompt template without the
// {entries} placeholder is accepted with a warning: the request still
// goes out, just without history content in the prompt.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if !strings.Contains(opts.Prompt, PlaceholderToken) {
		logger.Warn("judge: prompt template has no {entries} placeholder; history will not reach the model")
	}
	return &Client{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Judge serializes the history, substitutes it into the prompt
// template, and returns the model's response text. An empty history is
// still submitted (as "[]"); deciding what that means is the verdict
// parser's job.
//
// Failures map onto the judgment taxonomy: apperr.ErrTimeout,
// apperr.ErrUnreachable (both transient), apperr.ErrMalformed.
func (c *Client) Judge(ctx context.Context, caseID string, entries []models.HistoryEntry) (string, error) {
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", apperr.Stage(models.StageJudge, fmt.Errorf("judge: marshal history: %w", err))
	}

	prompt := strings.ReplaceAll(c.opts.Prompt, PlaceholderToken, string(payload))

	reqBody := chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: fmt.Sprintf("Case ID: %s の判定をお願いします。", caseID)},
		},
		Temperature: c.opts.Temperature,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", apperr.Stage(models.StageJudge, fmt.Errorf("judge: marshal request: %w", err))
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, EndpointURL(c.opts.BaseURL), bytes.NewReader(body))
	if err != nil {
		return "", apperr.Stage(models.StageJudge, fmt.Errorf("judge: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	c.logger.Debug("judge: request",
		slog.String("case_id", caseID),
		slog.String("model", c.opts.Model),
		slog.Int("entries", len(entries)))

	resp, err := c.client.Do(req)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return "", apperr.Transient(models.StageJudge, fmt.Errorf("judge: %w: %v", apperr.ErrTimeout, err))
		}
		return "", apperr.Transient(models.StageJudge, fmt.Errorf("judge: %w: %v", apperr.ErrUnreachable, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Transient(models.StageJudge, fmt.Errorf("judge: read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperr.Stage(models.StageJudge, fmt.Errorf("judge: %w: status %d", apperr.ErrMalformed, resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", apperr.Stage(models.StageJudge, fmt.Errorf("judge: %w: %v", apperr.ErrMalformed, err))
	}
	if len(parsed.Choices) == 0 {
		return "", apperr.Stage(models.StageJudge, fmt.Errorf("judge: %w: no choices in response", apperr.ErrMalformed))
	}
	return parsed.Choices[0].Message.Content, nil
}

// EndpointURL accepts a base URL with or without the /chat/completions
// suffix already present.
func EndpointURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}
