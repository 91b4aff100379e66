package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hamed0406/safezone/internal/domain"
)

// KV is the persistent key-value port. Get returns domain.ErrNotFound for a
// missing key; Remove of a missing key is not an error.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Storage keys. The version suffix matches SchemaVersion.
const (
	KeyGeofences      = "safezone:geofences:v1"
	KeyTransitions    = "safezone:transitions:v1"
	KeyEscalation     = "safezone:escalation:v1"
	KeyEscalationMute = "safezone:escalation-mute:v1"
	KeyAlertConfig    = "safezone:alert-config:v1"
	KeySOSQueue       = "safezone:sos-queue:v1"
	KeySMSQueue       = "safezone:sms-queue:v1"
)

const SchemaVersion = 1

type envelope struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

// Doc is a typed, versioned JSON document stored under a single key.
type Doc[T any] struct {
	kv  KV
	key string
}

func NewDoc[T any](kv KV, key string) *Doc[T] {
	return &Doc[T]{kv: kv, key: key}
}

func (d *Doc[T]) Key() string { return d.key }

// Load returns (value, true, nil) when present, (zero, false, nil) when the
// key is absent, and wraps domain.ErrStorageCorrupt when the blob cannot be
// decoded or carries an unknown schema version.
func (d *Doc[T]) Load(ctx context.Context) (T, bool, error) {
	var zero T
	raw, err := d.kv.Get(ctx, d.key)
	if errors.Is(err, domain.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("get %s: %w", d.key, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, false, fmt.Errorf("decode %s: %w: %v", d.key, domain.ErrStorageCorrupt, err)
	}
	if env.V != SchemaVersion {
		return zero, false, fmt.Errorf("decode %s: %w: schema version %d", d.key, domain.ErrStorageCorrupt, env.V)
	}
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return zero, false, fmt.Errorf("decode %s: %w: %v", d.key, domain.ErrStorageCorrupt, err)
	}
	return v, true, nil
}

func (d *Doc[T]) Save(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.key, err)
	}
	raw, err := json.Marshal(envelope{V: SchemaVersion, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.key, err)
	}
	if err := d.kv.Set(ctx, d.key, raw); err != nil {
		return fmt.Errorf("set %s: %w", d.key, err)
	}
	return nil
}

func (d *Doc[T]) Delete(ctx context.Context) error {
	if err := d.kv.Remove(ctx, d.key); err != nil {
		return fmt.Errorf("remove %s: %w", d.key, err)
	}
	return nil
}
