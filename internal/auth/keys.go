package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagesnap/pagesnap/internal/cache"
)

// APIKeyRecord is the registry entry for one issued key. Records are created
// by the privileged create-key endpoint and never mutated afterwards; they
// disappear only when the registry TTL elapses.
type APIKeyRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// KeyRegistry persists API key records in the cache store under the apikey:
// keyspace. A zero ttl keeps records alive for the process (memory backend)
// or indefinitely (shared backend).
type KeyRegistry struct {
	store cache.Store
	ttl   time.Duration
}

// NewKeyRegistry wires the registry to its backing store.
func NewKeyRegistry(store cache.Store, ttl time.Duration) *KeyRegistry {
	return &KeyRegistry{store: store, ttl: ttl}
}

// CreateAPIKey mints a fresh unique id, persists the record, and returns it.
// The raw id doubles as the key material, so the caller is responsible for
// storing it securely; it cannot be recovered later.
func (r *KeyRegistry) CreateAPIKey(ctx context.Context, name string) (APIKeyRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "unnamed"
	}
	record := APIKeyRecord{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.SetJSON(ctx, cache.APIKeyPrefix+record.ID, record, r.ttl); err != nil {
		return APIKeyRecord{}, fmt.Errorf("auth: store api key: %w", err)
	}
	return record, nil
}

// GetAPIKeyRecord returns the record for id, or ok=false when the id is
// unknown or the record has expired.
func (r *KeyRegistry) GetAPIKeyRecord(ctx context.Context, id string) (APIKeyRecord, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return APIKeyRecord{}, false, nil
	}
	var record APIKeyRecord
	ok, err := r.store.GetJSON(ctx, cache.APIKeyPrefix+id, &record)
	if err != nil {
		return APIKeyRecord{}, false, fmt.Errorf("auth: lookup api key: %w", err)
	}
	return record, ok, nil
}
