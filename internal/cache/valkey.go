package cache

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

// ValkeyTLSConfig enables TLS on the shared backend connection.
type ValkeyTLSConfig struct {
	Enabled bool
	CAFile  string
}

// ValkeyConfig describes the shared key/value backend connection.
type ValkeyConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      ValkeyTLSConfig
}

// Payload marker bytes keep structured and binary values distinguishable in
// the shared backend, mirroring the kind tag of the memory backend.
const (
	markerJSON  = 'j'
	markerBytes = 'b'
)

type valkeyStore struct {
	client valkey.Client
}

// NewValkey connects the shared backend and verifies it with a ping before
// handing the store to callers. Native per-key expiry makes it suitable for
// multi-instance deployment.
func NewValkey(cfg ValkeyConfig) (Store, error) {
	if cfg.Address == "" {
		return nil, errors.New("cache: valkey address required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("cache: read valkey ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("cache: valkey ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("cache: valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: valkey ping: %w", err)
	}

	return &valkeyStore{client: client}, nil
}

func (s *valkeyStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: valkey marshal: %w", err)
	}
	return s.set(ctx, key, payload, markerJSON, ttl)
}

func (s *valkeyStore) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	payload, marker, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if marker != markerJSON {
		return false, fmt.Errorf("cache: valkey key %q holds a binary payload", key)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("cache: valkey unmarshal: %w", err)
	}
	return true, nil
}

func (s *valkeyStore) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.set(ctx, key, value, markerBytes, ttl)
}

func (s *valkeyStore) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	payload, marker, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if marker != markerBytes {
		return nil, false, fmt.Errorf("cache: valkey key %q holds a structured payload", key)
	}
	return payload, true, nil
}

func (s *valkeyStore) Close(context.Context) error {
	s.client.Close()
	return nil
}

func (s *valkeyStore) set(ctx context.Context, key string, payload []byte, marker byte, ttl time.Duration) error {
	tagged := make([]byte, 0, len(payload)+1)
	tagged = append(tagged, marker)
	tagged = append(tagged, payload...)

	var cmd valkey.Completed
	if ttl > 0 {
		cmd = s.client.B().Set().Key(key).Value(string(tagged)).Px(ttl).Build()
	} else {
		cmd = s.client.B().Set().Key(key).Value(string(tagged)).Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("cache: valkey set: %w", err)
	}
	return nil
}

func (s *valkeyStore) get(ctx context.Context, key string) ([]byte, byte, bool, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return nil, 0, false, nil
		}
		return nil, 0, false, fmt.Errorf("cache: valkey get: %w", err)
	}
	tagged, err := resp.AsBytes()
	if err != nil {
		return nil, 0, false, fmt.Errorf("cache: valkey get bytes: %w", err)
	}
	if len(tagged) == 0 {
		return nil, 0, false, fmt.Errorf("cache: valkey key %q holds an empty payload", key)
	}
	return tagged[1:], tagged[0], true, nil
}
