package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simp-lee/carhire/internal/domain"
)

var keyColumn = clause.Column{Name: "key"}

// Gorm stores entries in the kv_entries table.
type Gorm struct {
	db     *gorm.DB
	prefix string
}

// NewGorm returns a store over db. Keys are stored with prefix prepended.
func NewGorm(db *gorm.DB, prefix string) *Gorm {
	return &Gorm{db: db, prefix: prefix}
}

func (s *Gorm) Get(ctx context.Context, key string) (string, bool, error) {
	var entry domain.KVEntry
	err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: keyColumn, Value: s.prefix + key}).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageError("get", err)
	}
	return entry.Value, true, nil
}

// Set inserts or overwrites the entry.
func (s *Gorm) Set(ctx context.Context, key, value string) error {
	entry := domain.KVEntry{Key: s.prefix + key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{keyColumn},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return storageError("set", err)
	}
	return nil
}

func (s *Gorm) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: keyColumn, Value: s.prefix + key}).
		Delete(&domain.KVEntry{}).Error
	if err != nil {
		return storageError("delete", err)
	}
	return nil
}

func (s *Gorm) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Prune deletes entries under this store's prefix last updated before olderThan.
// The prefix is used as a LIKE pattern; config validation keeps wildcards out of it.
func (s *Gorm) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Where("updated_at < ?", olderThan)
	if s.prefix != "" {
		q = q.Where(clause.Like{Column: keyColumn, Value: s.prefix + "%"})
	}
	res := q.Delete(&domain.KVEntry{})
	if res.Error != nil {
		return 0, storageError("prune", res.Error)
	}
	return res.RowsAffected, nil
}
