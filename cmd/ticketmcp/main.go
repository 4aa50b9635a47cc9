// Command ticketmcp serves the enriched ticket database as MCP tools
// over stdio for LLM clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"ticketflow/internal/mcp"
	"ticketflow/pkg/config"
	"ticketflow/pkg/db"
	"ticketflow/pkg/store"
	"ticketflow/pkg/version"
)

var configPath = flag.String("config", "configs/ticketflow.yaml", "Path to the config file")

func main() {
	flag.Parse()

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	// Stdout carries the protocol frames, so logging must stay on stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	slog.Info("MCP server starting stdio loop", "version", version.Version)
	return mcp.NewServer(st).Serve(ctx, os.Stdin, os.Stdout)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DB.URL != "" {
		st, err := store.NewPostgres(ctx, cfg.DB.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return st, nil
	}

	conn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store.NewSQLite(conn), nil
}
