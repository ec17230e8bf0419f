package cache

import (
	"context"
	"time"

	"github.com/pagesnap/pagesnap/internal/metrics"
)

type instrumentedStore struct {
	inner    Store
	recorder *metrics.Recorder
}

// Instrument decorates a store so every operation reports its outcome and
// latency to the metrics recorder. A nil recorder returns the store unchanged.
func Instrument(inner Store, recorder *metrics.Recorder) Store {
	if recorder == nil {
		return inner
	}
	return &instrumentedStore{inner: inner, recorder: recorder}
}

func (s *instrumentedStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.SetJSON(ctx, key, value, ttl)
	s.recorder.ObserveCache(metrics.CacheOperationSet, setResult(err), time.Since(start))
	return err
}

func (s *instrumentedStore) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	start := time.Now()
	ok, err := s.inner.GetJSON(ctx, key, dest)
	s.recorder.ObserveCache(metrics.CacheOperationGet, getResult(ok, err), time.Since(start))
	return ok, err
}

func (s *instrumentedStore) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.SetBytes(ctx, key, value, ttl)
	s.recorder.ObserveCache(metrics.CacheOperationSet, setResult(err), time.Since(start))
	return err
}

func (s *instrumentedStore) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	payload, ok, err := s.inner.GetBytes(ctx, key)
	s.recorder.ObserveCache(metrics.CacheOperationGet, getResult(ok, err), time.Since(start))
	return payload, ok, err
}

func (s *instrumentedStore) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}

func setResult(err error) metrics.CacheResult {
	if err != nil {
		return metrics.CacheError
	}
	return metrics.CacheStored
}

func getResult(ok bool, err error) metrics.CacheResult {
	switch {
	case err != nil:
		return metrics.CacheError
	case ok:
		return metrics.CacheHit
	default:
		return metrics.CacheMiss
	}
}
