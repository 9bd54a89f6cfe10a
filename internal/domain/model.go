package domain

import "time"

// KVEntry is one row of the durable key-value table that backs per-session
// client state (last search, language preference) when the database driver
// is used for storage.
type KVEntry struct {
	Key       string    `gorm:"primaryKey;size:255" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

// TableName pins the table name independent of gorm's pluralization rules.
func (KVEntry) TableName() string {
	return "kv_entries"
}
