package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ticketflow/pkg/model"
)

// Postgres implements Store on a shared server database, selected when
// DATABASE_URL is set.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a connection pool for the given URL and verifies it.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// EnsureSchema creates missing tables and adds the columns introduced
// after the first deployments.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
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
			lat DOUBLE PRECISION,
			lon DOUBLE PRECISION,
			request_type TEXT,
			sentiment TEXT,
			priority INTEGER,
			language TEXT,
			summary TEXT,
			next_actions TEXT,
			infer_time_ms BIGINT,
			assigned_manager_name TEXT,
			assigned_manager_level TEXT,
			assigned_office TEXT,
			assigned_office_address TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS managers (
			manager_id TEXT PRIMARY KEY,
			full_name TEXT,
			position TEXT,
			office TEXT,
			skills TEXT,
			active_tickets_count INTEGER DEFAULT 0,
			active BOOLEAN DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS business_units (
			office TEXT PRIMARY KEY,
			address TEXT,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION
		)`,
		`CREATE TABLE IF NOT EXISTS app_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at TIMESTAMPTZ DEFAULT now()
		)`,
		// Databases written before assignment tracking miss these columns.
		`ALTER TABLE tickets_final_enriched ADD COLUMN IF NOT EXISTS infer_time_ms BIGINT`,
		`ALTER TABLE tickets_final_enriched ADD COLUMN IF NOT EXISTS assigned_manager_name TEXT`,
		`ALTER TABLE tickets_final_enriched ADD COLUMN IF NOT EXISTS assigned_manager_level TEXT`,
		`ALTER TABLE tickets_final_enriched ADD COLUMN IF NOT EXISTS assigned_office TEXT`,
		`ALTER TABLE tickets_final_enriched ADD COLUMN IF NOT EXISTS assigned_office_address TEXT`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}
	return nil
}

// --- Tickets ---

const upsertTicketPostgres = `INSERT INTO tickets_final_enriched (` + ticketColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)` +
	ticketConflictSQL

func (s *Postgres) UpsertTickets(ctx context.Context, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin ticket upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for i := range tickets {
		batch.Queue(upsertTicketPostgres, ticketArgs(&tickets[i])...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert tickets: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Postgres) ListTickets(ctx context.Context, limit int) ([]model.Ticket, error) {
	q := selectTicketSQL + " ORDER BY priority DESC NULLS LAST"
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, q+" LIMIT $1", limit)
	} else {
		rows, err = s.pool.Query(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (s *Postgres) FilterTickets(ctx context.Context, field, value string, limit int) ([]model.Ticket, error) {
	col, ok := FilterField(field)
	if !ok {
		return nil, errBadFilterField(field)
	}

	q := selectTicketSQL + fmt.Sprintf(" WHERE LOWER(COALESCE(%s, '')) = LOWER($1) ORDER BY priority DESC NULLS LAST", col)
	args := []any{canonicalFilterValue(col, value)}
	if limit > 0 {
		q += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (s *Postgres) TicketStats(ctx context.Context) (*Stats, error) {
	rows, err := s.pool.Query(ctx, statsSelectSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStats(rows)
}

func (s *Postgres) PriorityBreakdown(ctx context.Context) (map[int]int, error) {
	rows, err := s.pool.Query(ctx, priorityBreakdownSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBreakdown(rows)
}

// --- Managers ---

const upsertManagerPostgres = `INSERT INTO managers (` + managerColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)` + managerConflictSQL

func (s *Postgres) UpsertManagers(ctx context.Context, managers []model.Manager) error {
	if len(managers) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin manager upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for i := range managers {
		batch.Queue(upsertManagerPostgres, managerArgs(&managers[i])...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert managers: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Postgres) LoadManagers(ctx context.Context) ([]model.Manager, error) {
	rows, err := s.pool.Query(ctx, selectManagerSQL+" ORDER BY manager_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectManagers(rows)
}

func (s *Postgres) UpdateWorkloads(ctx context.Context, workloads map[string]int) error {
	if len(workloads) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin workload update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for id, n := range workloads {
		if _, err := tx.Exec(ctx,
			"UPDATE managers SET active_tickets_count = $1 WHERE manager_id = $2", n, id); err != nil {
			return fmt.Errorf("failed to update workload for %s: %w", id, err)
		}
	}
	return tx.Commit(ctx)
}

// --- Offices ---

const upsertOfficePostgres = `INSERT INTO business_units (office, address, latitude, longitude)
VALUES ($1, $2, $3, $4)` + officeConflictSQL

func (s *Postgres) UpsertOffices(ctx context.Context, offices []model.Office) error {
	if len(offices) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin office upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for i := range offices {
		o := &offices[i]
		if _, err := tx.Exec(ctx, upsertOfficePostgres,
			o.Name, o.Address, o.Latitude, o.Longitude); err != nil {
			return fmt.Errorf("failed to upsert office %s: %w", o.Name, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Postgres) LoadOffices(ctx context.Context) ([]model.Office, error) {
	rows, err := s.pool.Query(ctx, selectOfficeSQL+" ORDER BY office")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOffices(rows)
}

// --- State ---

func (s *Postgres) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.pool.QueryRow(ctx, "SELECT value FROM app_state WHERE key = $1", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *Postgres) SetState(ctx context.Context, key, val string) error {
	query := `INSERT INTO app_state (key, value, created_at) VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE SET value = excluded.value, created_at = now()`
	_, err := s.pool.Exec(ctx, query, key, val)
	return err
}

// Wipe deletes all rows from every table. EnsureSchema must have run first.
func (s *Postgres) Wipe(ctx context.Context) error {
	for _, table := range wipeTables {
		if _, err := s.pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to wipe %s: %w", table, err)
		}
	}
	return nil
}
