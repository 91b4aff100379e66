package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hamed0406/safezone/internal/domain"
	"github.com/hamed0406/safezone/internal/repo"
	"github.com/hamed0406/safezone/internal/repo/memory"
	pg "github.com/hamed0406/safezone/internal/repo/postgres"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.KV = memory.New()
	var _ repo.KV = (*pg.Store)(nil)
}

func TestDoc_AbsentPresentDelete(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	doc := repo.NewDoc[domain.AlertConfig](kv, repo.KeyAlertConfig)

	_, ok, err := doc.Load(ctx)
	if err != nil || ok {
		t.Fatalf("absent: ok=%v err=%v", ok, err)
	}

	want := domain.AlertConfig{Emergency: true, Sound: true}
	if err := doc.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := doc.Load(ctx)
	if err != nil || !ok || got != want {
		t.Fatalf("present: got=%+v ok=%v err=%v", got, ok, err)
	}

	if err := doc.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := doc.Load(ctx); ok {
		t.Fatalf("expected absent after delete")
	}
}

func TestDoc_CorruptAndUnknownVersion(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	doc := repo.NewDoc[domain.AlertConfig](kv, repo.KeyAlertConfig)

	_ = kv.Set(ctx, repo.KeyAlertConfig, []byte("{not json"))
	if _, _, err := doc.Load(ctx); !errors.Is(err, domain.ErrStorageCorrupt) {
		t.Fatalf("want ErrStorageCorrupt, got %v", err)
	}

	_ = kv.Set(ctx, repo.KeyAlertConfig, []byte(`{"v":2,"data":{}}`))
	if _, _, err := doc.Load(ctx); !errors.Is(err, domain.ErrStorageCorrupt) {
		t.Fatalf("want ErrStorageCorrupt for v2, got %v", err)
	}
}
