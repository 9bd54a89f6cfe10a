// Package store provides domain.KVStore implementations backed by a gorm
// database, redis, or process memory.
package store

import (
	"context"
	"time"

	"github.com/simp-lee/carhire/internal/domain"
)

// Pruner is implemented by stores that need explicit expiry of old entries.
// Redis expires keys itself and does not implement it.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

var (
	_ domain.KVStore = (*Memory)(nil)
	_ domain.KVStore = (*Gorm)(nil)
	_ domain.KVStore = (*Redis)(nil)
	_ Pruner         = (*Memory)(nil)
	_ Pruner         = (*Gorm)(nil)
)

func storageError(op string, err error) error {
	return domain.NewAppError(domain.CodeInternal, "storage "+op+" failed", err)
}
