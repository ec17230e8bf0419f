package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const janitorInterval = 30 * time.Second

type payloadKind uint8

const (
	kindJSON payloadKind = iota
	kindBytes
)

type memoryEntry struct {
	payload   []byte
	kind      payloadKind
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	stop    chan struct{}
	once    sync.Once
}

// NewMemory builds the in-process fallback backend. Entries expire lazily on
// read and are additionally swept by a background janitor so binary blobs do
// not linger for the full process lifetime. State is lost on restart and not
// shared across instances.
func NewMemory() Store {
	s := &memoryStore{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *memoryStore) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: memory marshal: %w", err)
	}
	s.set(key, payload, kindJSON, ttl)
	return nil
}

func (s *memoryStore) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	entry, ok := s.get(key)
	if !ok {
		return false, nil
	}
	if entry.kind != kindJSON {
		return false, fmt.Errorf("cache: memory key %q holds a binary payload", key)
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return false, fmt.Errorf("cache: memory unmarshal: %w", err)
	}
	return true, nil
}

func (s *memoryStore) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	payload := make([]byte, len(value))
	copy(payload, value)
	s.set(key, payload, kindBytes, ttl)
	return nil
}

func (s *memoryStore) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := s.get(key)
	if !ok {
		return nil, false, nil
	}
	if entry.kind != kindBytes {
		return nil, false, fmt.Errorf("cache: memory key %q holds a structured payload", key)
	}
	out := make([]byte, len(entry.payload))
	copy(out, entry.payload)
	return out, true, nil
}

func (s *memoryStore) Close(context.Context) error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *memoryStore) set(key string, payload []byte, kind payloadKind, ttl time.Duration) {
	entry := memoryEntry{payload: payload, kind: kind}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
}

func (s *memoryStore) get(key string) (memoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if entry.expired(time.Now()) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (s *memoryStore) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, entry := range s.entries {
				if entry.expired(now) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
