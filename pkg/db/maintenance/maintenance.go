// Package maintenance runs startup data tasks: importing the branch
// office and manager seed CSVs whenever those files change on disk.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"ticketflow/pkg/ingest"
	"ticketflow/pkg/store"
)

const (
	officesCSVStateKey  = "offices_csv_mtime"
	managersCSVStateKey = "managers_csv_mtime"
)

// Run executes all maintenance tasks. A missing seed file is fine and a
// failed import is logged without stopping startup.
func Run(ctx context.Context, s store.Store, officesCSV, managersCSV string) error {
	slog.Info("Starting database maintenance...")

	if err := importOffices(ctx, s, officesCSV); err != nil {
		slog.Error("Office import failed", "error", err)
	}
	if err := importManagers(ctx, s, managersCSV); err != nil {
		slog.Error("Manager import failed", "error", err)
	}

	slog.Info("Database maintenance completed")
	return nil
}

// importOffices upserts branch offices from a CSV file conditional on
// its modification time.
func importOffices(ctx context.Context, s store.Store, csvPath string) error {
	mtime, upToDate, err := checkMTime(ctx, s, csvPath, officesCSVStateKey)
	if err != nil || upToDate {
		return err
	}

	slog.Info("Importing offices from CSV...", "path", csvPath)

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	offices, err := ingest.ParseOffices(f)
	if err != nil {
		return fmt.Errorf("failed to parse offices: %w", err)
	}
	if err := s.UpsertOffices(ctx, offices); err != nil {
		return fmt.Errorf("failed to upsert offices: %w", err)
	}

	slog.Info("Imported offices", "count", len(offices))
	return s.SetState(ctx, officesCSVStateKey, mtime)
}

// importManagers upserts the manager roster from a CSV file conditional
// on its modification time.
func importManagers(ctx context.Context, s store.Store, csvPath string) error {
	mtime, upToDate, err := checkMTime(ctx, s, csvPath, managersCSVStateKey)
	if err != nil || upToDate {
		return err
	}

	slog.Info("Importing managers from CSV...", "path", csvPath)

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	managers, err := ingest.ParseManagers(f)
	if err != nil {
		return fmt.Errorf("failed to parse managers: %w", err)
	}
	if err := s.UpsertManagers(ctx, managers); err != nil {
		return fmt.Errorf("failed to upsert managers: %w", err)
	}

	slog.Info("Imported managers", "count", len(managers))
	return s.SetState(ctx, managersCSVStateKey, mtime)
}

// checkMTime stats the seed file and compares its modification time
// against the stored state. A missing file reports up to date.
func checkMTime(ctx context.Context, s store.Store, csvPath, stateKey string) (string, bool, error) {
	info, err := os.Stat(csvPath)
	if os.IsNotExist(err) {
		return "", true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to stat csv: %w", err)
	}

	mtime := info.ModTime().UTC().Format(time.RFC3339)
	stored, found := s.GetState(ctx, stateKey)
	if found && stored == mtime {
		return mtime, true, nil
	}
	return mtime, false, nil
}
