package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"bid-review/decision/analysis"
	"bid-review/decision/status"
	"bid-review/pkg/errors"
)

func TestSchemaQuotesTable(t *testing.T) {
	t.Parallel()

	ddl := schema("bid_analyses")
	if !strings.Contains(ddl, `CREATE TABLE IF NOT EXISTS "bid_analyses"`) {
		t.Fatalf("table not substituted:\n%s", ddl)
	}
	if !strings.Contains(ddl, `"bid_analyses_session_idx"`) || strings.Contains(ddl, "{{") {
		t.Fatalf("placeholders left:\n%s", ddl)
	}
}

func TestListQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filter   analysis.HistoryFilter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "all sessions",
			filter:   analysis.HistoryFilter{},
			wantSQL:  `SELECT payload FROM "bid_analyses" ORDER BY created_at DESC, id DESC LIMIT $1`,
			wantArgs: []any{analysis.DefaultHistoryLimit},
		},
		{
			name:     "one session",
			filter:   analysis.HistoryFilter{SessionID: "s-1", Limit: 3},
			wantSQL:  `SELECT payload FROM "bid_analyses" WHERE session_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
			wantArgs: []any{"s-1", 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q, args := listQuery(DefaultTable, tt.filter)
			if q != tt.wantSQL {
				t.Fatalf("sql\nwant %s\ngot  %s", tt.wantSQL, q)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args want=%v got=%v", tt.wantArgs, args)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Fatalf("arg %d want=%v got=%v", i, tt.wantArgs[i], args[i])
				}
			}
		})
	}
}

// Runs against a live database when DATABASE_URL is set.
func TestStore_Live(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := NewStore(ctx, Config{DSN: dsn, Table: "bid_analyses_test"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer store.Close()

	sid := uuid.New().String()
	a := &analysis.Analysis{
		ID:        uuid.New().String(),
		SessionID: sid,
		CreatedAt: time.Now().UTC(),
		Status:    status.Status{Code: status.NeedsReview, Color: status.Yellow},
	}
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("second save should upsert: %v", err)
	}

	got, err := store.Get(ctx, a.ID)
	if err != nil || got.Status.Code != status.NeedsReview {
		t.Fatalf("get: %+v %v", got, err)
	}
	list, err := store.List(ctx, analysis.HistoryFilter{SessionID: sid})
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %+v %v", list, err)
	}
	if _, err := store.Get(ctx, "absent"); errors.Code(err) != errors.ErrCodeAnalysisNotFound {
		t.Fatalf("want ANALYSIS_NOT_FOUND got %v", err)
	}
}
