// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"casewatch/internal/api"
	"casewatch/internal/extract"
	"casewatch/internal/journal"
	"casewatch/internal/judge"
	"casewatch/internal/mcpserver"
	"casewatch/internal/models"
	"casewatch/internal/monitor"
	"casewatch/internal/notify"
	"casewatch/internal/repository"
	"casewatch/internal/sse"
	"casewatch/internal/storage"
)

// Run starts the monitor service with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.Level(),
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("monitor_dir", cfg.Monitor.Dir),
		slog.String("work_dir", cfg.Monitor.WorkDir),
		slog.String("journal_path", cfg.Journal.Path),
		slog.String("llm_model", cfg.LLM.Model),
		slog.String("log_level", cfg.App.Level().String()))

	watchDir, err := storage.NewFS(cfg.Monitor.Dir)
	if err != nil {
		return fmt.Errorf("init monitor dir: %w", err)
	}
	workDir, err := storage.NewFS(cfg.Monitor.WorkDir)
	if err != nil {
		return fmt.Errorf("init work dir: %w", err)
	}

	jnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("init journal: %w", err)
	}
	defer jnl.Close()

	extractor, err := extract.New(extract.Options{
		SeparatorPattern:  cfg.Extract.SeparatorPattern,
		HeaderDatePattern: cfg.Extract.HeaderDatePattern,
		QuestionKeywords:  extract.SplitKeywords(cfg.Extract.QuestionKeywords),
		AnswerKeywords:    extract.SplitKeywords(cfg.Extract.AnswerKeywords),
		MaxChars:          cfg.Extract.MaxChars,
		LogFilter:         cfg.Extract.LogFilter.Enabled,
		MaxLineLen:        cfg.Extract.LogFilter.MaxLineLen,
	}, logger)
	if err != nil {
		return fmt.Errorf("init extractor: %w", err)
	}

	var source repository.Source
	switch cfg.Repository.Mode {
	case RepositoryModeHTTP:
		source = repository.NewHTTPSource(cfg.Repository.BaseURL, cfg.Repository.Timeout())
	default:
		source = repository.NewFileSource(watchDir)
	}

	judgeClient := judge.NewClient(judge.Options{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout(),
		Prompt:      cfg.LLM.Prompt,
	}, logger)

	dispatcher := notify.NewDispatcher(notify.Options{
		Enabled:      cfg.Webhook.Enabled,
		PrimaryURL:   cfg.Webhook.PrimaryURL,
		RejectURL:    cfg.Webhook.RejectURL,
		CaseLinkBase: cfg.Webhook.CaseLinkBase,
		Timeout:      cfg.Webhook.Timeout(),
	}, logger)

	// SSE broker for pipeline events.
	broker := sse.NewBroker()
	defer broker.Close()

	mon, err := monitor.New(monitor.Options{
		CaseIDDigits:    cfg.Monitor.CaseIDDigits,
		PollInterval:    cfg.Monitor.PollInterval(),
		ProcessExisting: cfg.Monitor.ProcessExisting,
		MaxConcurrent:   cfg.Monitor.MaxConcurrent,
		AllowPartial:    cfg.LLM.AllowPartial,
		MaxAttempts:     cfg.Retry.MaxAttempts,
		Backoff:         cfg.Retry.Backoff(),
	}, watchDir, workDir, source, extractor, judgeClient, dispatcher, jnl,
		func(status models.CaseStatus) { broker.PublishCaseEvent(status) }, logger)
	if err != nil {
		return fmt.Errorf("init monitor: %w", err)
	}

	// Files already notified (or skipped) in previous runs stay
	// handled until their content changes.
	if done, err := jnl.NotifiedFingerprints(); err != nil {
		logger.Warn("journal recovery failed", slog.String("error", err.Error()))
	} else if len(done) > 0 {
		mon.SeedFingerprints(done)
		logger.Info("recovered handled fingerprints from journal", slog.Int("count", len(done)))
	}

	// Build status API service and router.
	svc := api.NewService(mon, jnl, workDir)
	apiRouter := api.NewRouter(svc, cfg.App.Auth.AuthEnabled(), cfg.App.Auth.Token, http.HandlerFunc(broker.ServeHTTP))

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	// SIGINT/SIGTERM cancel the run context, which is what every
	// goroutine in the group blocks on; the group can only drain once
	// that context actually ends.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Start the directory monitor.
	g.Go(func() error {
		return mon.Run(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Stop the HTTP server once the run context ends (signal, parent
	// cancellation, or a failed sibling goroutine).
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Service stopped successfully")
	return nil
}

// RunMCP serves casewatch state over MCP stdio. The monitor is not
// started: tool reads come from the journal and the work directory, so
// the MCP server can run alongside (or after) the monitor process.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// MCP uses stdout for the protocol; log to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.Level(),
	}))
	slog.SetDefault(logger)

	workDir, err := storage.NewFS(cfg.Monitor.WorkDir)
	if err != nil {
		return fmt.Errorf("init work dir: %w", err)
	}
	jnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("init journal: %w", err)
	}
	defer jnl.Close()

	svc := api.NewService(emptyStatuses{}, jnl, workDir)
	return mcpserver.New(svc).ServeStdio()
}

// emptyStatuses is the StatusSource for MCP mode, where no monitor is
// running in-process; the service falls back to the journal.
type emptyStatuses struct{}

func (emptyStatuses) Snapshot() []models.CaseStatus { return nil }

func (emptyStatuses) Status(string) (models.CaseStatus, bool) {
	return models.CaseStatus{}, false
}
