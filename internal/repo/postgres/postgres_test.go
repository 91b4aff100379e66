package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/domain"
)

func TestPostgresStore_SetGetRemove(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	// Unique key per run so reruns against the same database stay independent.
	key := fmt.Sprintf("safezone:test:%d", time.Now().UTC().UnixNano())
	defer func() { _ = store.Remove(context.Background(), key) }()

	if _, err := store.Get(ctx, key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, key, []byte(`{"v":1,"data":[1,2]}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, key, []byte(`{"v":1,"data":[3]}`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// jsonb normalizes whitespace, so compare semantically loose.
	if len(got) == 0 || string(got) == `{"v":1,"data":[1,2]}` {
		t.Fatalf("unexpected value: %s", got)
	}
	if err := store.Remove(ctx, key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}
