// Package clickhouse provides a ClickHouse implementation of the analysis
// history store. Analyses are append-only, so a columnar table with the full
// report in a payload column keeps both listing and reporting queries cheap.
package clickhouse

import (
	"context"
	"database/sql"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"

	"bid-review/decision/analysis"
	"bid-review/pkg/errors"
)

// Config holds ClickHouse connection configuration
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:     "localhost:9000",
		Database: "bidreview",
		Username: "default",
	}
}

// Store implements analysis.HistoryStore using ClickHouse
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewStore creates a new ClickHouse history store
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Str("database", cfg.Database).Msg("Connected to ClickHouse history store")
	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// =============================================================================
// SCHEMA
// =============================================================================

const createAnalysesTable = `
	CREATE TABLE IF NOT EXISTS analyses (
		id                 String,
		session_id         String,
		project            String,
		created_at         DateTime64(3, 'UTC'),
		input_hash         String,
		status             LowCardinality(String),
		completeness_score Float64,
		accuracy_score     Float64,
		critical_issues    UInt32,
		warnings           UInt32,
		payload            String CODEC(ZSTD(3))
	) ENGINE = ReplacingMergeTree
	ORDER BY (id)
`

// EnsureSchema creates the analyses table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createAnalysesTable); err != nil {
		return fmt.Errorf("failed to create analyses table: %w", err)
	}
	return nil
}

// =============================================================================
// HISTORY OPERATIONS
// =============================================================================

// Save inserts an analysis
func (s *Store) Save(ctx context.Context, a *analysis.Analysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	entry := a.Entry()
	query := `
		INSERT INTO analyses (
			id, session_id, project, created_at, input_hash, status,
			completeness_score, accuracy_score, critical_issues, warnings, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	return s.conn.Exec(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.Project,
		entry.CreatedAt,
		entry.InputHash,
		string(entry.Status),
		entry.CompletenessScore,
		entry.AccuracyScore,
		uint32(entry.CriticalIssues),
		uint32(entry.Warnings),
		string(payload),
	)
}

// Get retrieves an analysis by ID
func (s *Store) Get(ctx context.Context, id string) (*analysis.Analysis, error) {
	query := `
		SELECT payload
		FROM analyses FINAL
		WHERE id = ?
		LIMIT 1
	`
	var payload string
	err := s.conn.QueryRow(ctx, query, id).Scan(&payload)
	if goerrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewAnalysisNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return decodeAnalysis(payload)
}

// List returns recorded analyses, newest first
func (s *Store) List(ctx context.Context, filter analysis.HistoryFilter) ([]analysis.HistoryEntry, error) {
	query, args := listQuery(filter)
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	entries := make([]analysis.HistoryEntry, 0, filter.EffectiveLimit())
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		a, err := decodeAnalysis(payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, a.Entry())
	}
	return entries, rows.Err()
}

func listQuery(filter analysis.HistoryFilter) (string, []any) {
	query := `
		SELECT payload
		FROM analyses FINAL
	`
	var args []any
	if filter.SessionID != "" {
		query += "WHERE session_id = ?\n"
		args = append(args, filter.SessionID)
	}
	query += "ORDER BY created_at DESC, id DESC\nLIMIT ?"
	args = append(args, filter.EffectiveLimit())
	return query, args
}

// =============================================================================
// REPORTING
// =============================================================================

// StatusCount is the number of analyses that ended in a status.
type StatusCount struct {
	Status string `json:"status"`
	Count  uint64 `json:"count"`
}

// StatusCounts tallies analysis outcomes recorded since a point in time.
func (s *Store) StatusCounts(ctx context.Context, since time.Time) ([]StatusCount, error) {
	query := `
		SELECT status, count() AS n
		FROM analyses FINAL
		WHERE created_at >= ?
		GROUP BY status
		ORDER BY n DESC, status
	`
	rows, err := s.conn.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func decodeAnalysis(payload string) (*analysis.Analysis, error) {
	var a analysis.Analysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return &a, nil
}
