// Package search implements the car search and filter state coordinator:
// location resolution, filter state, debounced paginated fetching and
// persistence of the last submitted search.
package search

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/simp-lee/carhire/internal/domain"
)

// Defaults applied by New when Options leaves a field unset.
const (
	DefaultPageSize = 20
	DefaultDebounce = 500 * time.Millisecond
	DefaultLanguage = "en"
)

// Options configures a Coordinator.
type Options struct {
	// Name identifies the surface in logs and snapshots.
	Name     string
	PageSize int
	// Debounce is the quiet period before a search or filter change is
	// fetched. Zero fetches immediately in the caller's goroutine.
	Debounce      time.Duration
	Language      string
	MatchPolicy   MatchPolicy
	SkipLocations bool
	Logger        *slog.Logger
}

// Snapshot is a consistent copy of the coordinator's observable state.
type Snapshot struct {
	Surface     string                 `json:"surface"`
	State       State                  `json:"state"`
	Generation  uint64                 `json:"generation"`
	Language    string                 `json:"language"`
	Cars        []domain.Car           `json:"cars"`
	Locations   []domain.Location      `json:"locations"`
	Criteria    domain.SearchCriteria  `json:"criteria"`
	Filters     domain.FilterSelection `json:"filters"`
	Loading     bool                   `json:"loading"`
	InitialLoad bool                   `json:"initial_load"`
	HasNextPage bool                   `json:"has_next_page"`
	CurrentPage int                    `json:"current_page"`
	TotalCount  int                    `json:"total_count"`
	LastError   string                 `json:"last_error,omitempty"`
}

// Coordinator owns the search state of one UI surface. All methods are safe
// for concurrent use. Backend calls run without holding the state lock, and
// every response is applied only if no newer search, filter change, reset or
// language switch happened since it was dispatched.
type Coordinator struct {
	api       domain.RentalAPI
	locSource domain.LocationSource
	persist   *Persistence
	opts      Options
	logger    *slog.Logger
	debounce  *Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	started     bool
	closed      bool
	generation  uint64
	language    string
	cars        []domain.Car
	locations   []domain.Location
	criteria    domain.SearchCriteria
	filters     *FilterStore
	hasNextPage bool
	currentPage int
	totalCount  int
	initialLoad bool
	lastErr     string
	pendingCtx  context.Context
	subs        map[uint64]chan Snapshot
	nextSub     uint64
}

// New creates a Coordinator in the Uninitialized state. When locs is nil the
// location list is fetched from api directly.
func New(api domain.RentalAPI, locs domain.LocationSource, persist *Persistence, opts Options) *Coordinator {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if !opts.MatchPolicy.Valid() {
		opts.MatchPolicy = MatchFirst
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if locs == nil {
		locs = apiLocations{api: api}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		api:         api,
		locSource:   locs,
		persist:     persist,
		opts:        opts,
		logger:      opts.Logger.With(slog.String("surface", opts.Name)),
		debounce:    NewDebouncer(opts.Debounce),
		ctx:         ctx,
		cancel:      cancel,
		state:       StateUninitialized,
		language:    opts.Language,
		cars:        []domain.Car{},
		locations:   []domain.Location{},
		filters:     NewFilterStore(),
		hasNextPage: true,
		currentPage: 1,
		initialLoad: true,
		subs:        make(map[uint64]chan Snapshot),
	}
}

type apiLocations struct {
	api domain.RentalAPI
}

func (a apiLocations) Locations(ctx context.Context, language string) ([]domain.Location, error) {
	return a.api.ListLocations(ctx, language)
}

// Start performs the initial load: restore the last search, fetch locations
// and fetch the first page. It runs at most once; later calls return
// immediately. Filter changes made before Start do not trigger fetches.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	if !c.setStateLocked(StateLoadingInitial) {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	c.notifyLocked()
	c.mu.Unlock()

	ctx, cancel := c.bind(ctx)
	defer cancel()
	c.loadInitial(ctx, gen, true)
}

// Search replaces the criteria, resolves missing location ids, persists the
// result and schedules a debounced first-page fetch. Accumulated results are
// cleared immediately. It returns the criteria as stored.
func (c *Coordinator) Search(ctx context.Context, criteria domain.SearchCriteria) domain.SearchCriteria {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return criteria
	}
	criteria.PickupLocationID = c.resolveIDLocked(criteria.PickupLocationID, criteria.PickupLocation)
	criteria.DropoffLocationID = c.resolveIDLocked(criteria.DropoffLocationID, criteria.DropoffLocation)
	c.criteria = criteria
	c.started = true
	c.scheduleLocked(ctx)
	c.mu.Unlock()

	if err := c.persist.Save(ctx, criteria); err != nil {
		c.logger.ErrorContext(ctx, "persist search failed", slog.Any("error", err))
	}
	c.debounce.Trigger(c.runPending)
	return criteria
}

// LoadMore fetches the next page and appends it. It is a no-op, returning
// false, while any fetch is pending or when no next page exists.
func (c *Coordinator) LoadMore(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed || c.state != StateReady || !c.hasNextPage {
		c.mu.Unlock()
		return false
	}
	if !c.setStateLocked(StateLoadingMore) {
		c.mu.Unlock()
		return false
	}
	gen := c.generation
	page := c.currentPage + 1
	c.notifyLocked()
	c.mu.Unlock()

	ctx, cancel := c.bind(ctx)
	defer cancel()
	c.fetch(ctx, gen, page, false)
	return true
}

// UpdateFilters merges patch into the current filters.
func (c *Coordinator) UpdateFilters(ctx context.Context, patch domain.FilterPatch) {
	c.changeFilters(ctx, func(s *FilterStore) { s.Update(patch) })
}

// SetFilters replaces the filters wholesale.
func (c *Coordinator) SetFilters(ctx context.Context, sel domain.FilterSelection) {
	c.changeFilters(ctx, func(s *FilterStore) { s.Set(sel) })
}

// ClearFilters restores the default filters.
func (c *Coordinator) ClearFilters(ctx context.Context) {
	c.changeFilters(ctx, func(s *FilterStore) { s.Reset() })
}

// ToggleFilter flips value in the named facet. It reports false for an
// unknown facet, in which case nothing changes.
func (c *Coordinator) ToggleFilter(ctx context.Context, facet, value string) bool {
	if !IsToggleFacet(facet) {
		return false
	}
	c.changeFilters(ctx, func(s *FilterStore) { s.Toggle(facet, value) })
	return true
}

// changeFilters applies mutate and, once the coordinator has left the
// Uninitialized state, resets paging and schedules a debounced refetch.
func (c *Coordinator) changeFilters(ctx context.Context, mutate func(*FilterStore)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	before := c.filters.Get()
	mutate(c.filters)

	if c.state == StateUninitialized {
		c.notifyLocked()
		c.mu.Unlock()
		return
	}
	c.logger.DebugContext(ctx, "filters changed",
		slog.Any("before", before),
		slog.Any("after", c.filters.Get()),
	)
	c.scheduleLocked(ctx)
	c.mu.Unlock()

	c.debounce.Trigger(c.runPending)
}

// ResetSearch clears criteria, results and paging and returns to the
// Uninitialized state. Pending and in-flight fetches are discarded. The
// persisted last search is left untouched.
func (c *Coordinator) ResetSearch() {
	c.debounce.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.generation++
	c.criteria = domain.SearchCriteria{}
	c.cars = []domain.Car{}
	c.currentPage = 1
	c.hasNextPage = true
	c.totalCount = 0
	c.initialLoad = true
	c.lastErr = ""
	c.pendingCtx = nil
	c.setStateLocked(StateUninitialized)
	c.notifyLocked()
}

// FindLocationIDByAddress resolves address against the loaded locations.
func (c *Coordinator) FindLocationIDByAddress(address string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.MatchPolicy.Resolve(address, c.locations)
}

// SetLanguage switches the language. A started coordinator re-runs its
// initial load (locations and first page) in the new language.
func (c *Coordinator) SetLanguage(ctx context.Context, language string) {
	c.mu.Lock()
	if c.closed || language == "" || language == c.language {
		c.mu.Unlock()
		return
	}
	c.language = language
	if c.state == StateUninitialized {
		c.notifyLocked()
		c.mu.Unlock()
		return
	}
	c.pendingCtx = nil
	c.generation++
	gen := c.generation
	c.setStateLocked(StateLoadingInitial)
	c.notifyLocked()
	c.mu.Unlock()

	c.debounce.Stop()
	ctx, cancel := c.bind(ctx)
	defer cancel()
	c.loadInitial(ctx, gen, false)
}

// SeedFromCar pre-fills the pickup location from the car's current location
// when no persisted search has a resolved pickup. The seeded criteria are
// persisted. It returns the effective criteria and whether seeding happened.
func (c *Coordinator) SeedFromCar(ctx context.Context, car domain.Car) (domain.SearchCriteria, bool) {
	prior := c.persist.LoadLast(ctx)
	if prior.HasPickup() || car.CurrentLocation == 0 {
		return prior, false
	}

	c.mu.Lock()
	locs := c.locations
	lang := c.language
	c.mu.Unlock()

	if len(locs) == 0 {
		fetched, err := c.locSource.Locations(ctx, lang)
		if err != nil {
			c.logger.ErrorContext(ctx, "load locations for seeding failed", slog.Any("error", err))
			return prior, false
		}
		locs = fetched
		c.mu.Lock()
		if c.language == lang && len(c.locations) == 0 {
			c.locations = slices.Clone(fetched)
		}
		c.mu.Unlock()
	}

	idx := slices.IndexFunc(locs, func(l domain.Location) bool { return l.ID == car.CurrentLocation })
	if idx < 0 {
		return prior, false
	}
	id := locs[idx].ID
	seeded := domain.SearchCriteria{
		PickupLocation:   locs[idx].Address,
		PickupLocationID: &id,
		PickupDate:       prior.PickupDate,
		DropoffDate:      prior.DropoffDate,
	}
	if err := c.persist.Save(ctx, seeded); err != nil {
		c.logger.ErrorContext(ctx, "persist seeded search failed", slog.Any("error", err))
	}

	c.mu.Lock()
	if !c.closed {
		c.criteria = seeded
		c.notifyLocked()
	}
	c.mu.Unlock()
	return seeded, true
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot after every state change,
// and a function to cancel the subscription. Slow subscribers only see the
// latest snapshot. The channel is closed on cancel or Close.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Subscribers returns the number of open subscriptions.
func (c *Coordinator) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close stops pending work, cancels in-flight fetches and closes all
// subscriptions. Subsequent mutations are ignored.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.debounce.Stop()
	c.cancel()
}

// loadInitial restores the last search (when restore is set), fetches the
// locations and then the first page for gen.
func (c *Coordinator) loadInitial(ctx context.Context, gen uint64, restore bool) {
	if restore {
		last := c.persist.LoadLast(ctx)
		c.mu.Lock()
		if !c.closed && c.state != StateUninitialized && c.criteria.IsZero() && !last.IsZero() {
			c.criteria = last
			if gen != c.generation {
				// A filter change overtook the restore and fetched without
				// the criteria; start a generation that includes them.
				c.generation++
				gen = c.generation
				c.cars = []domain.Car{}
				c.currentPage = 1
				c.hasNextPage = true
				c.setStateLocked(StateLoadingSearch)
			}
			c.notifyLocked()
		}
		c.mu.Unlock()
	}
	if !c.opts.SkipLocations {
		c.refreshLocations(ctx)
	}
	c.fetch(ctx, gen, 1, true)
}

func (c *Coordinator) refreshLocations(ctx context.Context) {
	c.mu.Lock()
	lang := c.language
	c.mu.Unlock()

	locs, err := c.locSource.Locations(ctx, lang)
	if err != nil {
		c.logger.ErrorContext(ctx, "fetch locations failed", slog.String("language", lang), slog.Any("error", err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.language != lang {
		return
	}
	c.locations = slices.Clone(locs)
	c.notifyLocked()
}

// scheduleLocked starts a new generation for a search-triggered fetch.
func (c *Coordinator) scheduleLocked(ctx context.Context) {
	c.generation++
	c.cars = []domain.Car{}
	c.currentPage = 1
	c.hasNextPage = true
	c.pendingCtx = ctx
	c.setStateLocked(StateLoadingSearch)
	c.notifyLocked()
}

// runPending is the debounced action: fetch page one for the latest generation.
func (c *Coordinator) runPending() {
	c.mu.Lock()
	if c.closed || c.state != StateLoadingSearch {
		c.mu.Unlock()
		return
	}
	ctx := c.pendingCtx
	gen := c.generation
	c.pendingCtx = nil
	c.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := c.detach(ctx)
	defer cancel()
	c.fetch(ctx, gen, 1, true)
}

// fetch requests one page and applies it if gen is still current. Failures
// are logged and recorded as LastError; existing results are kept.
func (c *Coordinator) fetch(ctx context.Context, gen uint64, page int, replace bool) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	locs := c.locations
	params := BuildListParams(ListRequest{
		Criteria: c.criteria,
		Filters:  c.filters.Get(),
		Page:     page,
		PageSize: c.opts.PageSize,
		Language: c.language,
	}, func(address string) (int64, bool) {
		return c.opts.MatchPolicy.Resolve(address, locs)
	})
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "fetching cars",
		slog.Uint64("generation", gen),
		slog.String("params", params.Encode()),
	)
	result, err := c.api.ListCars(ctx, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.generation {
		c.logger.DebugContext(ctx, "discarding stale response",
			slog.Uint64("generation", gen),
			slog.Uint64("current", c.generation),
		)
		return
	}

	if err != nil {
		c.logger.ErrorContext(ctx, "fetch cars failed", slog.Int("page", page), slog.Any("error", err))
		c.lastErr = err.Error()
	} else {
		if replace {
			c.cars = slices.Clone(result.Cars)
		} else {
			c.cars = append(c.cars, result.Cars...)
		}
		pd := result.PageData
		if pd.CurrentPage <= 0 {
			pd.CurrentPage = page
		}
		c.currentPage = pd.CurrentPage
		c.hasNextPage = pd.HasNextPage()
		c.totalCount = pd.Count
		c.lastErr = ""
	}
	c.initialLoad = false
	c.setStateLocked(StateReady)
	c.notifyLocked()
}

func (c *Coordinator) resolveIDLocked(id *int64, address string) *int64 {
	if id != nil && *id != 0 {
		return id
	}
	if resolved, ok := c.opts.MatchPolicy.Resolve(address, c.locations); ok {
		return &resolved
	}
	return nil
}

func (c *Coordinator) setStateLocked(to State) bool {
	if !CanTransition(c.state, to) {
		c.logger.Error("invalid state transition", slog.String("from", string(c.state)), slog.String("to", string(to)))
		return false
	}
	c.state = to
	return true
}

func (c *Coordinator) snapshotLocked() Snapshot {
	return Snapshot{
		Surface:     c.opts.Name,
		State:       c.state,
		Generation:  c.generation,
		Language:    c.language,
		Cars:        slices.Clone(c.cars),
		Locations:   slices.Clone(c.locations),
		Criteria:    c.criteria,
		Filters:     c.filters.Get(),
		Loading:     c.state.Loading(),
		InitialLoad: c.initialLoad,
		HasNextPage: c.hasNextPage,
		CurrentPage: c.currentPage,
		TotalCount:  c.totalCount,
		LastError:   c.lastErr,
	}
}

// notifyLocked delivers the current snapshot to every subscriber without
// blocking. A full channel has its stale snapshot replaced.
func (c *Coordinator) notifyLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// bind returns ctx, additionally cancelled when the coordinator closes. It
// serves calls made on behalf of a request, so the request deadline applies.
func (c *Coordinator) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// detach returns a context that keeps ctx's values but is cancelled only
// when the coordinator closes. Debounced fetches outlive their request.
func (c *Coordinator) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
