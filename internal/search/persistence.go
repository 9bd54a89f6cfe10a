package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/simp-lee/carhire/internal/domain"
)

// Durable storage key names. Keys are namespaced per browser session with SessionKey.
const (
	SearchDataKey = "searchData"
	LanguageKey   = "language"
)

// SessionKey returns the store key for name within a browser session.
func SessionKey(sessionID, name string) string {
	return "session:" + sessionID + ":" + name
}

// Persistence saves and restores the last submitted SearchCriteria.
type Persistence struct {
	store  domain.KVStore
	key    string
	logger *slog.Logger
}

// NewPersistence returns a Persistence writing under key.
func NewPersistence(store domain.KVStore, key string, logger *slog.Logger) *Persistence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persistence{store: store, key: key, logger: logger}
}

// Save overwrites the stored criteria.
func (p *Persistence) Save(ctx context.Context, c domain.SearchCriteria) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode search criteria: %w", err)
	}
	if err := p.store.Set(ctx, p.key, string(b)); err != nil {
		return fmt.Errorf("save search criteria: %w", err)
	}
	return nil
}

// LoadLast returns the stored criteria. Absent, unreadable or corrupt
// entries all yield the zero SearchCriteria.
func (p *Persistence) LoadLast(ctx context.Context) domain.SearchCriteria {
	raw, found, err := p.store.Get(ctx, p.key)
	if err != nil {
		p.logger.WarnContext(ctx, "load last search failed", slog.String("key", p.key), slog.Any("error", err))
		return domain.SearchCriteria{}
	}
	if !found || raw == "" {
		return domain.SearchCriteria{}
	}

	var c domain.SearchCriteria
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		p.logger.DebugContext(ctx, "discarding malformed last search", slog.String("key", p.key), slog.Any("error", err))
		return domain.SearchCriteria{}
	}
	return c
}
