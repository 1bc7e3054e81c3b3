// Package notify posts verdict cards to the configured webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"casewatch/internal/apperr"
	"casewatch/internal/models"
)

// Options configures a Dispatcher.
type Options struct {
	Enabled      bool
	PrimaryURL   string
	RejectURL    string // optional; empty skips the rejection webhook
	CaseLinkBase string
	Timeout      time.Duration
}

// DispatchResult reports which webhooks were delivered to.
type DispatchResult struct {
	Primary   bool `json:"primary"`
	Rejection bool `json:"rejection"`
}

// Dispatcher formats and delivers verdict notifications.
type Dispatcher struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(opts Options, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger,
		now:    time.Now,
	}
}

// Notify posts the verdict card to the primary webhook and, for a
// rejection with a configured rejection webhook, to that as well. An
// unset rejection URL is a silent skip; any delivery failure is a
// notify-stage error so the orchestrator records it.
func (d *Dispatcher) Notify(ctx context.Context, caseID string, v models.Verdict, raw string) (DispatchResult, error) {
	var res DispatchResult
	if !d.opts.Enabled || d.opts.PrimaryURL == "" {
		d.logger.Debug("notify: disabled, skipping", slog.String("case_id", caseID))
		return res, nil
	}

	summary := fmt.Sprintf("Case ID %s %s", caseID, v.Decision)
	if v.Decision == models.DecisionRejected {
		summary = fmt.Sprintf("Case ID %s caseid mismatch", caseID)
	}
	msg := buildMessage(summary, buildCard(caseID, d.opts.CaseLinkBase, v, raw, d.now()))

	if err := d.post(ctx, d.opts.PrimaryURL, msg); err != nil {
		return res, apperr.Transient(models.StageNotify, fmt.Errorf("notify: primary webhook: %w", err))
	}
	res.Primary = true

	if v.Decision == models.DecisionRejected && d.opts.RejectURL != "" {
		if err := d.post(ctx, d.opts.RejectURL, msg); err != nil {
			return res, apperr.Transient(models.StageNotify, fmt.Errorf("notify: rejection webhook: %w", err))
		}
		res.Rejection = true
	}

	d.logger.Info("notify: delivered",
		slog.String("case_id", caseID),
		slog.String("decision", string(v.Decision)),
		slog.Bool("rejection_webhook", res.Rejection))
	return res, nil
}

// post sends one card to one webhook; a non-2xx status is a failure.
func (d *Dispatcher) post(ctx context.Context, url string, msg message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
