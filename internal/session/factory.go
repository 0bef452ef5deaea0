package session

import (
	"context"
	"strings"
	"time"
)

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string, ttl time.Duration, opts ...Option) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(ttl, opts...), nil
	}
	store, err := NewPostgresStore(ctx, databaseURL, ttl, opts...)
	if err != nil {
		return nil, err
	}
	return store, nil
}
