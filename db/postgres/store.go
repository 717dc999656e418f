// Package postgres stores analysis history in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"bid-review/decision/analysis"
	"bid-review/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// DefaultTable is the table analyses are written to.
const DefaultTable = "bid_analyses"

// Config configures the PostgreSQL connection.
type Config struct {
	DSN          string
	Table        string
	MaxOpenConns int
	MaxIdleConns int
}

// Store implements analysis.HistoryStore using PostgreSQL.
type Store struct {
	db    *sql.DB
	table string
}

// NewStore opens the database, verifies the connection and creates the
// analyses table.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, table: cfg.Table}
	if s.table == "" {
		s.table = DefaultTable
	}
	if _, err := db.ExecContext(ctx, schema(s.table)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("table", s.table).Msg("Connected to postgres history store")
	return s, nil
}

func schema(table string) string {
	return strings.NewReplacer(
		"{{table}}", pq.QuoteIdentifier(table),
		"{{index}}", pq.QuoteIdentifier(table+"_session_idx"),
	).Replace(schemaSQL)
}

// Save upserts an analysis.
func (s *Store) Save(ctx context.Context, a *analysis.Analysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	entry := a.Entry()

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, session_id, project, created_at, input_hash, status,
			completeness_score, accuracy_score, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, status = EXCLUDED.status
	`, pq.QuoteIdentifier(s.table))

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.Project,
		entry.CreatedAt,
		entry.InputHash,
		string(entry.Status),
		entry.CompletenessScore,
		entry.AccuracyScore,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis %s: %w", entry.ID, err)
	}
	return nil
}

// Get retrieves an analysis by ID.
func (s *Store) Get(ctx context.Context, id string) (*analysis.Analysis, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE id = $1`, pq.QuoteIdentifier(s.table))

	var payload []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&payload)
	if goerrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewAnalysisNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	var a analysis.Analysis
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("failed to decode analysis %s: %w", id, err)
	}
	return &a, nil
}

// List returns recorded analyses, newest first.
func (s *Store) List(ctx context.Context, filter analysis.HistoryFilter) ([]analysis.HistoryEntry, error) {
	query, args := listQuery(s.table, filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	entries := make([]analysis.HistoryEntry, 0, filter.EffectiveLimit())
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		var a analysis.Analysis
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("failed to decode analysis: %w", err)
		}
		entries = append(entries, a.Entry())
	}
	return entries, rows.Err()
}

func listQuery(table string, filter analysis.HistoryFilter) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT payload FROM %s", pq.QuoteIdentifier(table))

	args := make([]any, 0, 2)
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		fmt.Fprintf(&b, " WHERE session_id = $%d", len(args))
	}
	args = append(args, filter.EffectiveLimit())
	fmt.Fprintf(&b, " ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	return b.String(), args
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
