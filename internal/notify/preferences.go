package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/domain"
	"github.com/hamed0406/safezone/internal/repo"
)

// Preferences persists the user's AlertConfig.
type Preferences struct {
	doc *repo.Doc[domain.AlertConfig]
	log *zap.Logger
	mu  sync.Mutex
}

func NewPreferences(kv repo.KV, log *zap.Logger) *Preferences {
	if log == nil {
		log = zap.NewNop()
	}
	return &Preferences{doc: repo.NewDoc[domain.AlertConfig](kv, repo.KeyAlertConfig), log: log}
}

// Get returns the stored config, or defaults when absent or unreadable.
func (p *Preferences) Get(ctx context.Context) domain.AlertConfig {
	cfg, ok, err := p.doc.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrStorageCorrupt) {
			p.log.Warn("alert_config_corrupt", zap.Error(err))
		} else {
			p.log.Warn("alert_config_load_error", zap.Error(err))
		}
		return domain.DefaultAlertConfig()
	}
	if !ok {
		return domain.DefaultAlertConfig()
	}
	return cfg
}

// Save merges the patch into the current config and persists the result.
func (p *Preferences) Save(ctx context.Context, patch domain.AlertConfigPatch) (domain.AlertConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.Get(ctx).Apply(patch)
	if err := p.doc.Save(ctx, next); err != nil {
		return domain.AlertConfig{}, err
	}
	return next, nil
}
