package cache

import (
	"context"
	"time"
)

// Store is the dual-payload key/value contract shared by both backends.
// Structured values round-trip through JSON; binary values round-trip
// byte-for-byte. The two shapes are never conflated: a value written with
// SetBytes is only readable with GetBytes and vice versa. A ttl of zero or
// less means the entry never expires.
//
// Get methods report a miss (false) for absent and expired entries alike and
// never treat a miss as an error. Backend failures propagate to the caller
// without retry.
type Store interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	Close(ctx context.Context) error
}

// Conventional keyspaces. Callers compose keys with these prefixes so the two
// payload shapes live in disjoint parts of the store.
const (
	RenderKeyPrefix = "render:"
	ImageKeyPrefix  = "image:"
	APIKeyPrefix    = "apikey:"
)
