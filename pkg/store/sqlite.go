package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticketflow/pkg/db"
	"ticketflow/pkg/model"
)

// SQLite implements Store on an embedded database file. It is the
// default backend when no DATABASE_URL is configured.
type SQLite struct {
	db *db.DB
}

// NewSQLite creates a store on an opened connection.
func NewSQLite(d *db.DB) *SQLite {
	return &SQLite{db: d}
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// EnsureSchema creates missing tables and adds the columns introduced
// after the first deployments. Existing rows keep their data.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tickets_final_enriched (
			customer_guid TEXT PRIMARY KEY,
			gender TEXT,
			date_of_birth TEXT,
			description TEXT,
			attachments TEXT,
			client_segment TEXT,
			country TEXT,
			region TEXT,
			city TEXT,
			street TEXT,
			building TEXT,
			lat REAL,
			lon REAL,
			request_type TEXT,
			sentiment TEXT,
			priority INTEGER,
			language TEXT,
			summary TEXT,
			next_actions TEXT,
			infer_time_ms INTEGER,
			assigned_manager_name TEXT,
			assigned_manager_level TEXT,
			assigned_office TEXT,
			assigned_office_address TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS managers (
			manager_id TEXT PRIMARY KEY,
			full_name TEXT,
			position TEXT,
			office TEXT,
			skills TEXT,
			active_tickets_count INTEGER DEFAULT 0,
			active BOOLEAN DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS business_units (
			office TEXT PRIMARY KEY,
			address TEXT,
			latitude REAL,
			longitude REAL
		);`,
		`CREATE TABLE IF NOT EXISTS app_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	// Databases written before assignment tracking miss these columns.
	evolved := []struct{ name, typ string }{
		{"infer_time_ms", "INTEGER"},
		{"assigned_manager_name", "TEXT"},
		{"assigned_manager_level", "TEXT"},
		{"assigned_office", "TEXT"},
		{"assigned_office_address", "TEXT"},
	}
	for _, col := range evolved {
		has, err := s.db.HasColumn("tickets_final_enriched", col.name)
		if err != nil {
			return err
		}
		if !has {
			ddl := fmt.Sprintf("ALTER TABLE tickets_final_enriched ADD COLUMN %s %s", col.name, col.typ)
			if _, err := s.db.ExecContext(ctx, ddl); err != nil {
				return fmt.Errorf("failed to add column %s: %w", col.name, err)
			}
		}
	}
	return nil
}

// --- Tickets ---

const upsertTicketSQLite = `INSERT INTO tickets_final_enriched (` + ticketColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)` +
	ticketConflictSQL

func (s *SQLite) UpsertTickets(ctx context.Context, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ticket upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertTicketSQLite)
	if err != nil {
		return fmt.Errorf("failed to prepare ticket upsert: %w", err)
	}
	defer stmt.Close()

	for i := range tickets {
		if _, err := stmt.ExecContext(ctx, ticketArgs(&tickets[i])...); err != nil {
			return fmt.Errorf("failed to upsert ticket %s: %w", tickets[i].CustomerGUID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) ListTickets(ctx context.Context, limit int) ([]model.Ticket, error) {
	q := selectTicketSQL + " ORDER BY priority DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (s *SQLite) FilterTickets(ctx context.Context, field, value string, limit int) ([]model.Ticket, error) {
	col, ok := FilterField(field)
	if !ok {
		return nil, errBadFilterField(field)
	}

	q := selectTicketSQL + fmt.Sprintf(" WHERE LOWER(COALESCE(%s, '')) = LOWER(?) ORDER BY priority DESC", col)
	args := []any{canonicalFilterValue(col, value)}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (s *SQLite) TicketStats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, statsSelectSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStats(rows)
}

func (s *SQLite) PriorityBreakdown(ctx context.Context) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, priorityBreakdownSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBreakdown(rows)
}

// --- Managers ---

const upsertManagerSQLite = `INSERT INTO managers (` + managerColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?)` + managerConflictSQL

func (s *SQLite) UpsertManagers(ctx context.Context, managers []model.Manager) error {
	if len(managers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin manager upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range managers {
		if _, err := tx.ExecContext(ctx, upsertManagerSQLite, managerArgs(&managers[i])...); err != nil {
			return fmt.Errorf("failed to upsert manager %s: %w", managers[i].ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) LoadManagers(ctx context.Context) ([]model.Manager, error) {
	rows, err := s.db.QueryContext(ctx, selectManagerSQL+" ORDER BY manager_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectManagers(rows)
}

func (s *SQLite) UpdateWorkloads(ctx context.Context, workloads map[string]int) error {
	if len(workloads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin workload update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for id, n := range workloads {
		if _, err := tx.ExecContext(ctx,
			"UPDATE managers SET active_tickets_count = ? WHERE manager_id = ?", n, id); err != nil {
			return fmt.Errorf("failed to update workload for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// --- Offices ---

const upsertOfficeSQLite = `INSERT INTO business_units (office, address, latitude, longitude)
VALUES (?, ?, ?, ?)` + officeConflictSQL

func (s *SQLite) UpsertOffices(ctx context.Context, offices []model.Office) error {
	if len(offices) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin office upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range offices {
		o := &offices[i]
		if _, err := tx.ExecContext(ctx, upsertOfficeSQLite,
			o.Name, o.Address, o.Latitude, o.Longitude); err != nil {
			return fmt.Errorf("failed to upsert office %s: %w", o.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) LoadOffices(ctx context.Context) ([]model.Office, error) {
	rows, err := s.db.QueryContext(ctx, selectOfficeSQL+" ORDER BY office")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOffices(rows)
}

// --- State ---

func (s *SQLite) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM app_state WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLite) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO app_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

// Wipe deletes all rows from every table. EnsureSchema must have run first.
func (s *SQLite) Wipe(ctx context.Context) error {
	for _, table := range wipeTables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to wipe %s: %w", table, err)
		}
	}
	return nil
}
