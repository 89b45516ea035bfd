package repository

import "context"

// KV is durable key-value storage scoped per owner (one Telegram chat).
// Writes are last-write-wins.
type KV interface {
	Get(ctx context.Context, owner int64, key string) ([]byte, bool, error)
	Put(ctx context.Context, owner int64, key string, value []byte) error
	Delete(ctx context.Context, owner int64, keys ...string) error
	Close() error
}
