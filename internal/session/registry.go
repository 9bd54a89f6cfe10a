// Package session keeps one search coordinator per browser session and UI
// surface, and the session's language preference.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/simp-lee/carhire/internal/domain"
	"github.com/simp-lee/carhire/internal/search"
)

// Surface names.
const (
	SurfaceListing     = "listing"
	SurfaceLanding     = "landing"
	SurfaceDetail      = "detail"
	SurfaceDetailEmbed = "detail_embed"
)

// Surface is the fixed paging and debounce setup of one UI surface.
type Surface struct {
	PageSize int
	Debounce time.Duration
}

// DefaultSurfaces returns the built-in surface table.
func DefaultSurfaces() map[string]Surface {
	return map[string]Surface{
		SurfaceListing:     {PageSize: 20, Debounce: 500 * time.Millisecond},
		SurfaceLanding:     {PageSize: 9, Debounce: 300 * time.Millisecond},
		SurfaceDetail:      {PageSize: 20, Debounce: 0},
		SurfaceDetailEmbed: {PageSize: 20, Debounce: 300 * time.Millisecond},
	}
}

// Options configures a Registry.
type Options struct {
	API             domain.RentalAPI
	Locations       domain.LocationSource
	Store           domain.KVStore
	Surfaces        map[string]Surface
	MatchPolicy     search.MatchPolicy
	Languages       []string
	DefaultLanguage string
	IdleTTL         time.Duration
	Logger          *slog.Logger
}

type key struct {
	sessionID string
	surface   string
}

type entry struct {
	coord    *search.Coordinator
	lastUsed time.Time
}

// Registry creates coordinators lazily and closes them after IdleTTL without use.
type Registry struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[key]*entry
	closed  bool
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts Options) *Registry {
	if len(opts.Surfaces) == 0 {
		opts.Surfaces = DefaultSurfaces()
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = search.DefaultLanguage
	}
	if len(opts.Languages) == 0 {
		opts.Languages = []string{opts.DefaultLanguage}
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		opts:    opts,
		logger:  opts.Logger,
		now:     time.Now,
		entries: make(map[key]*entry),
	}
}

// Surfaces returns the configured surface names, sorted.
func (r *Registry) Surfaces() []string {
	names := make([]string, 0, len(r.opts.Surfaces))
	for name := range r.opts.Surfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the coordinator for (sessionID, surface), creating it on first
// use. The coordinator is not started.
func (r *Registry) Get(ctx context.Context, sessionID, surface string) (*search.Coordinator, error) {
	if sessionID == "" {
		return nil, domain.NewAppError(domain.CodeValidation, "missing session", nil)
	}
	sf, ok := r.opts.Surfaces[surface]
	if !ok {
		return nil, domain.NewAppError(domain.CodeNotFound, fmt.Sprintf("unknown surface %q", surface), nil)
	}
	k := key{sessionID: sessionID, surface: surface}

	r.mu.Lock()
	if e, ok := r.entries[k]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		return e.coord, nil
	}
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, domain.NewAppError(domain.CodeInternal, "session registry closed", nil)
	}

	lang := r.Language(ctx, sessionID)
	coord := search.New(r.opts.API, r.opts.Locations, r.Persistence(sessionID), search.Options{
		Name:        surface,
		PageSize:    sf.PageSize,
		Debounce:    sf.Debounce,
		Language:    lang,
		MatchPolicy: r.opts.MatchPolicy,
		Logger:      r.logger,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[k]; ok {
		// Lost a creation race.
		coord.Close()
		e.lastUsed = r.now()
		return e.coord, nil
	}
	r.entries[k] = &entry{coord: coord, lastUsed: r.now()}
	r.logger.DebugContext(ctx, "coordinator created", slog.String("surface", surface), slog.String("language", lang))
	return coord, nil
}

// Persistence returns the last-search persistence of a session.
func (r *Registry) Persistence(sessionID string) *search.Persistence {
	return search.NewPersistence(r.opts.Store, search.SessionKey(sessionID, search.SearchDataKey), r.logger)
}

// Language returns the session's language, or the default when unset or
// unreadable.
func (r *Registry) Language(ctx context.Context, sessionID string) string {
	v, found, err := r.opts.Store.Get(ctx, search.SessionKey(sessionID, search.LanguageKey))
	if err != nil {
		r.logger.WarnContext(ctx, "read language preference failed", slog.Any("error", err))
		return r.opts.DefaultLanguage
	}
	if !found || !slices.Contains(r.opts.Languages, v) {
		return r.opts.DefaultLanguage
	}
	return v
}

// SetLanguage stores the preference and switches every live coordinator of
// the session, which reloads their locations and first page.
func (r *Registry) SetLanguage(ctx context.Context, sessionID, language string) error {
	if !slices.Contains(r.opts.Languages, language) {
		return domain.NewAppError(domain.CodeValidation, fmt.Sprintf("unsupported language %q", language), nil)
	}
	if err := r.opts.Store.Set(ctx, search.SessionKey(sessionID, search.LanguageKey), language); err != nil {
		return err
	}

	r.mu.Lock()
	var coords []*search.Coordinator
	for k, e := range r.entries {
		if k.sessionID == sessionID {
			e.lastUsed = r.now()
			coords = append(coords, e.coord)
		}
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range coords {
		wg.Go(func() { c.SetLanguage(ctx, language) })
	}
	wg.Wait()
	return nil
}

// Languages returns the supported languages.
func (r *Registry) Languages() []string {
	return slices.Clone(r.opts.Languages)
}

// Sweep closes coordinators idle for longer than IdleTTL and returns how many
// were removed. A coordinator with an open snapshot stream counts as in use.
func (r *Registry) Sweep() int {
	now := r.now()
	cutoff := now.Add(-r.opts.IdleTTL)

	r.mu.Lock()
	var stale []*search.Coordinator
	for k, e := range r.entries {
		if e.coord.Subscribers() > 0 {
			e.lastUsed = now
			continue
		}
		if e.lastUsed.Before(cutoff) {
			stale = append(stale, e.coord)
			delete(r.entries, k)
		}
	}
	r.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	return len(stale)
}

// Len returns the number of live coordinators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close closes every coordinator. Later Get calls fail.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[key]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.coord.Close()
	}
}
