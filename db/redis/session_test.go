package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bid-review/decision/lineitem"
	"bid-review/pkg/errors"
	"bid-review/session"
)

func TestKeys(t *testing.T) {
	t.Parallel()

	if got := sessionKey("abc"); got != "bidreview:session:abc" {
		t.Fatalf("sessionKey=%s", got)
	}
	if got := lockKey("abc"); got != "bidreview:session:abc:lock" {
		t.Fatalf("lockKey=%s", got)
	}
}

func TestDecodeSession(t *testing.T) {
	t.Parallel()

	sess, err := decodeSession([]byte(`{"id":"abc","requirements":[{"description":"Mobilization","quantity":"1"}],"proposal":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.ID != "abc" || len(sess.Requirements) != 1 || sess.Proposal == nil {
		t.Fatalf("session: %+v", sess)
	}
	if _, err := decodeSession([]byte(`{`)); err == nil {
		t.Fatalf("expected error for truncated value")
	}
}

// Runs against a live server when REDIS_ADDRESS is set.
func TestSessionStore_Live(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}

	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.TTL = time.Minute

	store, err := NewSessionStore(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer store.Close()

	id := uuid.New().String()
	defer store.Delete(ctx, id)

	if _, err := store.Get(ctx, id); errors.Code(err) != errors.ErrCodeSessionNotFound {
		t.Fatalf("want SESSION_NOT_FOUND got %v", err)
	}

	_, err = store.Update(ctx, id, func(s *session.Session) error {
		s.Proposal = []lineitem.LineItem{{Description: "Silt Fence", Quantity: decimal.NewFromInt(500), Unit: "LF"}}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Proposal) != 1 || !got.Proposal[0].Quantity.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("proposal: %+v", got.Proposal)
	}
}
