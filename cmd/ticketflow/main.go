// Command ticketflow serves the ticket enrichment and assignment API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketflow/internal/api"
	"ticketflow/pkg/agent"
	"ticketflow/pkg/config"
	"ticketflow/pkg/db"
	"ticketflow/pkg/db/maintenance"
	"ticketflow/pkg/geocode"
	"ticketflow/pkg/langdetect"
	"ticketflow/pkg/llm"
	"ticketflow/pkg/llm/gemini"
	"ticketflow/pkg/llm/openai"
	"ticketflow/pkg/logging"
	"ticketflow/pkg/model"
	"ticketflow/pkg/nlp"
	"ticketflow/pkg/pipeline"
	"ticketflow/pkg/request"
	"ticketflow/pkg/session"
	"ticketflow/pkg/store"
	"ticketflow/pkg/tracker"
	"ticketflow/pkg/version"
)

const (
	defaultOllamaURL      = "http://localhost:11434/v1"
	defaultFrontendOrigin = "http://localhost:3000"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault("configs/ticketflow.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: configs/ticketflow.yaml")
		return
	}

	if err := run(context.Background(), "configs/ticketflow.yaml"); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Ticketflow started", "version", version.Version)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	if err := maintenance.Run(ctx, st, "data/offices.csv", "data/managers.csv"); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	tr := tracker.New()

	analyzer, err := initAnalyzer(cfg, tr)
	if err != nil {
		return err
	}

	// Every batch gets a fresh geocoder so its result cache starts empty;
	// the HTTP client underneath is shared.
	geocodeClient := request.New(tracker.Provider2GIS, time.Duration(cfg.Geocoder.Timeout), tr)
	newGeocoder := func() pipeline.Geocoder {
		return geocode.New(cfg.Geocoder, geocodeClient, tr)
	}

	sessions := session.New[model.SessionSnapshot](0)
	proc := pipeline.New(analyzer, newGeocoder, langdetect.New(), st, sessions, pipeline.Options{
		MaxBatch:           cfg.Batch.MaxTickets,
		FiftyFiftyFallback: cfg.Assign.FiftyFiftyFallback,
	})

	agentH := api.NewAgentHandler(initAgent(ctx, cfg, st, tr))

	return runServer(ctx, cfg, proc, sessions, analyzer, st, tr, agentH)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DB.URL != "" {
		st, err := store.NewPostgres(ctx, cfg.DB.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		slog.Info("Using Postgres store")
		return st, nil
	}

	conn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("Using SQLite store", "path", cfg.DB.Path)
	return store.NewSQLite(conn), nil
}

// initAnalyzer builds the NLP stage on the Ollama OpenAI-compatible
// endpoint. Local models chew on a full batch for minutes, so the
// client timeout is generous.
func initAnalyzer(cfg *config.Config, tr *tracker.Tracker) (*nlp.Analyzer, error) {
	baseURL := cfg.NLP.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	provider, err := openai.New(baseURL, cfg.NLP.Key, request.New(tracker.ProviderOllama, 5*time.Minute, tr))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize nlp provider: %w", err)
	}
	return nlp.New(provider, nlp.Settings{
		Model:       cfg.NLP.Model,
		Concurrency: cfg.NLP.Concurrency,
	}), nil
}

// initAgent builds the Q&A assistant. A missing key only disables the
// agent endpoints; the rest of the app runs without them.
func initAgent(ctx context.Context, cfg *config.Config, st store.Store, tr *tracker.Tracker) *agent.Agent {
	provider, err := agentProvider(ctx, cfg, tr)
	if err != nil {
		slog.Warn("Q&A assistant disabled", "provider", cfg.Agent.Provider, "error", err)
		return nil
	}
	return agent.New(provider, cfg.Agent.Model, st)
}

func agentProvider(ctx context.Context, cfg *config.Config, tr *tracker.Tracker) (llm.Provider, error) {
	switch cfg.Agent.Provider {
	case "gemini":
		return gemini.New(ctx, cfg.Agent.Key, cfg.Agent.Model, tr)
	case "openai", "":
		baseURL := cfg.Agent.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
		return openai.New(baseURL, cfg.Agent.Key, request.New(tracker.ProviderOllama, 5*time.Minute, tr))
	default:
		return nil, fmt.Errorf("unknown agent provider %q", cfg.Agent.Provider)
	}
}

func runServer(ctx context.Context, cfg *config.Config, proc *pipeline.Processor, sessions *session.Store[model.SessionSnapshot], analyzer *nlp.Analyzer, st store.Store, tr *tracker.Tracker, agentH *api.AgentHandler) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	origin := cfg.Server.FrontendOrigin
	if origin == "" {
		origin = defaultFrontendOrigin
	}

	srv := api.NewServer(cfg.Server.Address, origin,
		api.NewUploadHandler(proc),
		api.NewSessionHandler(sessions, st),
		api.NewSettingsHandler(analyzer),
		api.NewDBHandler(st),
		api.NewStatsHandler(tr),
		agentH,
		shutdownFunc,
	)

	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
