package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/pagesnap/pagesnap/internal/cache"
)

// ImageService is the retrieval path for screenshot blobs by token. It is a
// pure read-through: validity comes entirely from the token being unguessable
// and the blob still living within its TTL window.
type ImageService struct {
	store cache.Store
}

// NewImageService wires the service to its backing store.
func NewImageService(store cache.Store) *ImageService {
	return &ImageService{store: store}
}

// Get returns the screenshot bytes for token. Absent and expired blobs are
// both ErrImageNotFound, never a backend error.
func (s *ImageService) Get(ctx context.Context, token string) ([]byte, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrImageNotFound
	}
	blob, ok, err := s.store.GetBytes(ctx, cache.ImageKeyPrefix+token)
	if err != nil {
		return nil, fmt.Errorf("render: image lookup: %w", err)
	}
	if !ok {
		return nil, ErrImageNotFound
	}
	return blob, nil
}
