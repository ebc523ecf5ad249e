package store

import (
	"context"
	"database/sql"
	"fmt"

	htmlfwd "github.com/htmlfwd/go-client"
	_ "github.com/lib/pq"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS htmlfwd_endpoints (
	position INTEGER PRIMARY KEY,
	label    TEXT NOT NULL,
	host     TEXT NOT NULL
)`

	// htmlfwd_endpoint_saves holds a single row once any list, including
	// an empty one, has been saved.
	createSavesTableSQL = `CREATE TABLE IF NOT EXISTS htmlfwd_endpoint_saves (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	saved_at TIMESTAMPTZ NOT NULL
)`
)

// PostgresStore keeps the endpoint list in the htmlfwd_endpoints table,
// one row per endpoint ordered by position.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to the database at dsn and creates the table if
// it does not exist.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s, err := NewPostgresStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an open database handle and creates the table
// if it does not exist.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range []string{createTableSQL, createSavesTableSQL} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create table: %w", err)
		}
	}
	return &PostgresStore{db: db}, nil
}

// Load returns the stored list in position order, or nil if no list has
// ever been saved.
func (s *PostgresStore) Load(ctx context.Context) ([]htmlfwd.EndpointSpec, error) {
	var saved bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM htmlfwd_endpoint_saves)`).Scan(&saved); err != nil {
		return nil, fmt.Errorf("query saves: %w", err)
	}
	if !saved {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT label, host FROM htmlfwd_endpoints ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query endpoints: %w", err)
	}
	defer rows.Close()

	specs := []htmlfwd.EndpointSpec{}
	for rows.Next() {
		var spec htmlfwd.EndpointSpec
		if err := rows.Scan(&spec.Label, &spec.Host); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read endpoints: %w", err)
	}
	return specs, nil
}

// Save replaces the stored list in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, specs []htmlfwd.EndpointSpec) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM htmlfwd_endpoints`); err != nil {
		return fmt.Errorf("clear endpoints: %w", err)
	}
	for i, spec := range specs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO htmlfwd_endpoints (position, label, host) VALUES ($1, $2, $3)`,
			i, spec.Label, spec.Host); err != nil {
			return fmt.Errorf("insert endpoint %d: %w", i, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO htmlfwd_endpoint_saves (id, saved_at) VALUES (1, now())
		ON CONFLICT (id) DO UPDATE SET saved_at = EXCLUDED.saved_at`); err != nil {
		return fmt.Errorf("record save: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
