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
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notegraph/internal/agent"
	"github.com/starford/notegraph/internal/analysis"
	"github.com/starford/notegraph/internal/api"
	"github.com/starford/notegraph/internal/auth"
	"github.com/starford/notegraph/internal/calendar"
	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/heuristics"
	"github.com/starford/notegraph/internal/jobs"
	"github.com/starford/notegraph/internal/llm"
	"github.com/starford/notegraph/internal/mcpserver"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/sse"
	"github.com/starford/notegraph/internal/store"
	"github.com/starford/notegraph/internal/webfetch"
)

const (
	shutdownTimeout = 10 * time.Second
	fetchTimeout    = 30 * time.Second
	fetchMaxChars   = 5000
)

// components are the services shared by the HTTP server and the MCP server.
type components struct {
	db        *store.DB
	rules     *heuristics.Analyzer
	oauth     *calendar.OAuth
	calendar  *calendar.Agent
	graph     graph.Mirror
	notes     *noteservice.Service
	agent     *agent.Agent
	localUser *models.User
}

func (c *components) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.graph.Close(ctx); err != nil {
		logger.Warn("graph close failed", slog.String("error", err.Error()))
	}
	if err := c.db.Close(); err != nil {
		logger.Warn("store close failed", slog.String("error", err.Error()))
	}
}

func setup(opts []Option) (*application, *slog.Logger, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}

func newProvider(ctx context.Context, c LLMConfig) (llm.Provider, error) {
	switch c.Provider {
	case LLMGemini:
		return llm.NewGemini(ctx, llm.GeminiConfig{APIKey: c.APIKey, Model: c.Model, BaseURL: c.BaseURL})
	case LLMOpenAI:
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:     c.APIKey,
			BaseURL:    c.BaseURL,
			Model:      c.Model,
			Timeout:    c.Timeout,
			MaxRetries: c.MaxRetries,
		})
	default:
		return llm.Disabled{}, nil
	}
}

// build opens the store and wires every service. The publisher may be nil.
func build(ctx context.Context, cfg *Config, logger *slog.Logger, events noteservice.Publisher) (*components, error) {
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	c := &components{db: db, graph: graph.Noop{}}
	fail := func(err error) (*components, error) {
		c.close(logger)
		return nil, err
	}

	c.localUser, err = db.EnsureUser(ctx, cfg.App.LocalUser, "local")
	if err != nil {
		return fail(fmt.Errorf("ensure local user: %w", err))
	}

	provider, err := newProvider(ctx, cfg.LLM)
	if err != nil {
		return fail(fmt.Errorf("init llm: %w", err))
	}
	client := llm.NewClient(provider)

	rules := heuristics.DefaultRules()
	if cfg.Analysis.RulesFile != "" {
		if rules, err = heuristics.LoadRules(cfg.Analysis.RulesFile); err != nil {
			return fail(err)
		}
	}
	c.rules = heuristics.New(rules)
	an := analysis.New(client, c.rules, db, cfg.Analysis.Orchestrator(), logger)

	svcOpts := []noteservice.Option{noteservice.WithLogger(logger)}
	if events != nil {
		svcOpts = append(svcOpts, noteservice.WithPublisher(events))
	}
	if cfg.Google.Enabled() {
		c.oauth = calendar.NewOAuth(calendar.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			APIEndpoint:  cfg.Google.APIEndpoint,
		}, db, logger)
		c.calendar = calendar.NewAgent(db, calendar.NewGoogle(c.oauth), client, c.rules, logger)
		svcOpts = append(svcOpts, noteservice.WithCalendar(c.calendar))
	}

	if c.graph, err = graph.Open(ctx, graph.Config{
		URI:      cfg.Graph.URI,
		User:     cfg.Graph.User,
		Password: cfg.Graph.Password,
	}); err != nil {
		c.graph = graph.Noop{}
		return fail(fmt.Errorf("init graph: %w", err))
	}
	svcOpts = append(svcOpts, noteservice.WithGraph(c.graph))

	c.notes = noteservice.NewService(db, an, svcOpts...)
	c.agent = agent.New(c.notes, an, c.calendar, webfetch.New(fetchTimeout, fetchMaxChars), logger)

	logger.Info("Services initialized",
		slog.String("llm_provider", client.ProviderName()),
		slog.Bool("calendar", c.calendar != nil),
		slog.Bool("graph", cfg.Graph.URI != ""),
		slog.Int64("local_user_id", c.localUser.ID))
	return c, nil
}

// Run starts the HTTP server, the job workers and the rules watcher with
// the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := build(ctx, cfg, logger, broker)
	if err != nil {
		return err
	}
	defer c.close(logger)

	// Background jobs.
	queue := jobs.New(c.db, cfg.Jobs.Queue(), logger)
	c.notes.RegisterJobs(queue)
	queue.InstallSweeps(cfg.Jobs.Sweeps())
	queue.OnFinish(func(j models.Job) {
		if j.UserID != 0 {
			broker.Publish(j.UserID, "job.finished", j)
		}
	})
	if _, err := queue.Recover(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	// Disabled mode still signs OAuth state, so it gets a throwaway secret.
	secret := cfg.Auth.Secret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
	}
	sessions := auth.New(c.db, auth.Config{
		Secret:     secret,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})

	apiRouter := api.NewRouter(api.Services{
		Notes:    c.notes,
		Agent:    c.agent,
		Jobs:     queue,
		Sessions: sessions,
		OAuth:    c.oauth,
		Events:   broker,
	}, api.Options{
		AuthEnabled:   cfg.Auth.AuthEnabled(),
		LocalUserID:   c.localUser.ID,
		SecureCookies: cfg.Auth.SecureCookies,
		CORSOrigins:   cfg.App.CORSOrigins,
		FrontendURL:   cfg.App.FrontendURL,
	})

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := c.notes.Count(r.Context(), c.localUser.ID); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gCtx)
	defer stop()

	// Start job workers and sweeps.
	g.Go(func() error {
		return queue.Run(runCtx)
	})

	// Start rules watcher.
	if cfg.Analysis.RulesFile != "" {
		g.Go(func() error {
			err := heuristics.WatchRules(runCtx, cfg.Analysis.RulesFile, c.rules, logger, func(r *heuristics.Rules) {
				logger.Info("rules reloaded", slog.Int("categories", len(r.Categories)))
			})
			if err != nil {
				logger.Warn("rules watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE streams end with the broker, otherwise Shutdown waits for them.
		broker.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		stop()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout as the local user until the
// client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}

	c, err := build(ctx, app.config, logger, nil)
	if err != nil {
		return err
	}
	defer c.close(logger)

	logger.Info("MCP server starting", slog.Int64("user_id", c.localUser.ID))
	return mcpserver.New(c.notes, c.agent, c.localUser.ID).ServeStdio()
}
