package pricing

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// Store persists the model_pricing table (SPEC_FULL §7) in SQLite or
// Postgres. It is the "database" source consulted first by Resolver.
type Store struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed pricing store.
func NewSQLiteStore(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "llm-gateway-pricing.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite pricing store: %w", err)
	}
	s := &Store{db: db, dialect: dialectSQLite}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore opens a Postgres-backed pricing store.
func NewPostgresStore(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pricing store: %w", err)
	}
	s := &Store{db: db, dialect: dialectPostgres}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s pricing store: %w", s.dialect, err)
	}
	var ddl string
	switch s.dialect {
	case dialectPostgres:
		ddl = `
CREATE TABLE IF NOT EXISTS model_pricing (
	model_key TEXT PRIMARY KEY,
	input_per_token DOUBLE PRECISION NOT NULL,
	output_per_token DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`
	default:
		ddl = `
CREATE TABLE IF NOT EXISTS model_pricing (
	model_key TEXT PRIMARY KEY,
	input_per_token REAL NOT NULL,
	output_per_token REAL NOT NULL,
	updated_at DATETIME NOT NULL
);`
	}
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("create model_pricing table: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Upsert writes or replaces the price row for modelKey (a canonical or
// native id). Prices must already be normalized to per-token.
func (s *Store) Upsert(modelKey string, inputPerToken, outputPerToken float64) error {
	now := time.Now().UTC()
	var query string
	switch s.dialect {
	case dialectPostgres:
		query = `INSERT INTO model_pricing (model_key, input_per_token, output_per_token, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (model_key) DO UPDATE SET input_per_token = EXCLUDED.input_per_token,
	output_per_token = EXCLUDED.output_per_token, updated_at = EXCLUDED.updated_at`
	default:
		query = `INSERT INTO model_pricing (model_key, input_per_token, output_per_token, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(model_key) DO UPDATE SET input_per_token = excluded.input_per_token,
	output_per_token = excluded.output_per_token, updated_at = excluded.updated_at`
	}
	_, err := s.db.Exec(s.bind(query), modelKey, inputPerToken, outputPerToken, now)
	if err != nil {
		return fmt.Errorf("upsert model_pricing %q: %w", modelKey, err)
	}
	return nil
}

// LoadAll reads the full pricing table into the in-memory row shape the
// Resolver's RefreshDatabase expects.
func (s *Store) LoadAll() (map[string]entry, error) {
	rows, err := s.db.Query(s.bind(`SELECT model_key, input_per_token, output_per_token, updated_at FROM model_pricing`))
	if err != nil {
		return nil, fmt.Errorf("load model_pricing: %w", err)
	}
	defer rows.Close()

	out := make(map[string]entry)
	for rows.Next() {
		var key string
		var e entry
		if err := rows.Scan(&key, &e.InputPerToken, &e.OutputPerToken, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan model_pricing row: %w", err)
		}
		out[key] = e
	}
	return out, rows.Err()
}

// bind rewrites '?' placeholders to Postgres's '$N' form; SQLite accepts
// '?' natively.
func (s *Store) bind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	argNum := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", argNum)
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
