// Package storage persists finalized request outcomes (SPEC_FULL §7's
// chat_completion_requests table) in SQLite or Postgres, and satisfies the
// root package's OutcomeStore interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"

	aigateway "github.com/ferro-labs/llm-gateway"
	"github.com/ferro-labs/llm-gateway/internal/selector"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// Store persists chat_completion_requests rows in SQLite or Postgres.
type Store struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed outcome store.
func NewSQLiteStore(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "llm-gateway-requests.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite outcome store: %w", err)
	}
	s := &Store{db: db, dialect: dialectSQLite}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore opens a Postgres-backed outcome store.
func NewPostgresStore(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres outcome store: %w", err)
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
		return fmt.Errorf("ping %s outcome store: %w", s.dialect, err)
	}

	var ddl string
	switch s.dialect {
	case dialectPostgres:
		ddl = `
CREATE TABLE IF NOT EXISTS chat_completion_requests (
	id BIGSERIAL PRIMARY KEY,
	request_id TEXT UNIQUE NOT NULL,
	canonical_id TEXT NOT NULL,
	provider TEXT,
	native_id TEXT,
	status TEXT NOT NULL,
	error_kind TEXT,
	error_message TEXT,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_input DOUBLE PRECISION NOT NULL,
	cost_output DOUBLE PRECISION NOT NULL,
	cost_total DOUBLE PRECISION NOT NULL,
	pricing_source TEXT,
	processing_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ccr_canonical_id ON chat_completion_requests(canonical_id);
CREATE INDEX IF NOT EXISTS idx_ccr_created_at ON chat_completion_requests(created_at);`
	default:
		ddl = `
CREATE TABLE IF NOT EXISTS chat_completion_requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT UNIQUE NOT NULL,
	canonical_id TEXT NOT NULL,
	provider TEXT,
	native_id TEXT,
	status TEXT NOT NULL,
	error_kind TEXT,
	error_message TEXT,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_input REAL NOT NULL,
	cost_output REAL NOT NULL,
	cost_total REAL NOT NULL,
	pricing_source TEXT,
	processing_time_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ccr_canonical_id ON chat_completion_requests(canonical_id);
CREATE INDEX IF NOT EXISTS idx_ccr_created_at ON chat_completion_requests(created_at);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize chat_completion_requests schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveOutcome persists a finalized request outcome, satisfying
// aigateway.OutcomeStore. A duplicate request_id (retry of the same
// finish call) is ignored rather than erroring.
func (s *Store) SaveOutcome(ctx context.Context, o aigateway.Outcome) error {
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var query string
	switch s.dialect {
	case dialectPostgres:
		query = `INSERT INTO chat_completion_requests
(request_id, canonical_id, provider, native_id, status, error_kind, error_message, input_tokens, output_tokens, cost_input, cost_output, cost_total, pricing_source, processing_time_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (request_id) DO NOTHING`
	default:
		query = `INSERT INTO chat_completion_requests
(request_id, canonical_id, provider, native_id, status, error_kind, error_message, input_tokens, output_tokens, cost_input, cost_output, cost_total, pricing_source, processing_time_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(request_id) DO NOTHING`
	}

	_, err := s.db.ExecContext(ctx, s.bind(query),
		o.RequestID, o.CanonicalID, o.Provider, o.NativeID, o.Status,
		string(o.ErrorKind), o.ErrorMessage, o.InputTokens, o.OutputTokens,
		o.Cost.InputCost, o.Cost.OutputCost, o.Cost.Total, string(o.Cost.Source),
		o.ProcessingTimeMS, createdAt,
	)
	if err != nil {
		return fmt.Errorf("save outcome %q: %w", o.RequestID, err)
	}
	return nil
}

// Query filters a List call over persisted outcomes.
type Query struct {
	CanonicalID string
	Provider    string
	Status      string
	Since       *time.Time
	Limit       int
	Offset      int
}

// ListResult is a paginated outcome query response.
type ListResult struct {
	Data  []aigateway.Outcome
	Total int
}

// List returns paginated, filtered request outcomes, newest first.
func (s *Store) List(ctx context.Context, q Query) (ListResult, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	if q.CanonicalID != "" {
		where = append(where, "canonical_id = ?")
		args = append(args, q.CanonicalID)
	}
	if q.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, q.Provider)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}
	if q.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UTC())
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := s.bind("SELECT COUNT(*) FROM chat_completion_requests" + whereSQL)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count chat_completion_requests: %w", err)
	}

	listQuery := s.bind(`SELECT request_id, canonical_id, provider, native_id, status, error_kind, error_message,
input_tokens, output_tokens, cost_input, cost_output, cost_total, pricing_source, processing_time_ms, created_at
FROM chat_completion_requests` + whereSQL + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`)
	listArgs := append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list chat_completion_requests: %w", err)
	}
	defer rows.Close()

	data := make([]aigateway.Outcome, 0)
	for rows.Next() {
		var (
			o              aigateway.Outcome
			provider       sql.NullString
			nativeID       sql.NullString
			errorKind      sql.NullString
			errorMessage   sql.NullString
			pricingSource  sql.NullString
			costInput      float64
			costOutput     float64
			costTotal      float64
		)
		if err := rows.Scan(&o.RequestID, &o.CanonicalID, &provider, &nativeID, &o.Status, &errorKind, &errorMessage,
			&o.InputTokens, &o.OutputTokens, &costInput, &costOutput, &costTotal, &pricingSource,
			&o.ProcessingTimeMS, &o.CreatedAt); err != nil {
			return ListResult{}, fmt.Errorf("scan chat_completion_requests row: %w", err)
		}
		o.Provider = provider.String
		o.NativeID = nativeID.String
		o.ErrorKind = selector.ErrorKind(errorKind.String)
		o.ErrorMessage = errorMessage.String
		o.Cost.InputCost = costInput
		o.Cost.OutputCost = costOutput
		o.Cost.Total = costTotal
		data = append(data, o)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("iterate chat_completion_requests: %w", err)
	}

	return ListResult{Data: data, Total: total}, nil
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
