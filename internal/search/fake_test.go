package search

import (
	"context"
	"net/url"
	"strconv"
	"sync"

	"github.com/simp-lee/carhire/internal/domain"
	"github.com/simp-lee/carhire/internal/store"
)

// fakeAPI is a function-field RentalAPI that records car list queries.
type fakeAPI struct {
	mu    sync.Mutex
	calls []url.Values

	listCars      func(ctx context.Context, params url.Values) (*domain.CarPage, error)
	listLocations func(ctx context.Context, language string) ([]domain.Location, error)
}

func (f *fakeAPI) ListCars(ctx context.Context, params url.Values) (*domain.CarPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	listCars := f.listCars
	f.mu.Unlock()
	if listCars == nil {
		return &domain.CarPage{Cars: []domain.Car{}, PageData: domain.PageData{CurrentPage: 1, TotalPages: 1}}, nil
	}
	return listCars(ctx, params)
}

func (f *fakeAPI) GetCar(context.Context, int64, string) (*domain.Car, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeAPI) ListLocations(ctx context.Context, language string) ([]domain.Location, error) {
	if f.listLocations == nil {
		return []domain.Location{}, nil
	}
	return f.listLocations(ctx, language)
}

func (f *fakeAPI) ListFacet(context.Context, string, string) ([]domain.FacetOption, error) {
	return []domain.FacetOption{}, nil
}

func (f *fakeAPI) CalculateQuote(context.Context, domain.QuoteRequest) (*domain.Quote, error) {
	return &domain.Quote{}, nil
}

func (f *fakeAPI) GetDiscountOffer(context.Context, int64) (string, error) {
	return "", nil
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) lastCall() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

// pagedCars serves totalPages pages of perPage cars. Car ids encode the page
// and the tag so tests can tell searches apart.
func pagedCars(totalPages, perPage int, tag int64) func(context.Context, url.Values) (*domain.CarPage, error) {
	return func(_ context.Context, params url.Values) (*domain.CarPage, error) {
		page, _ := strconv.Atoi(params.Get("page"))
		cars := make([]domain.Car, 0, perPage)
		for i := range perPage {
			cars = append(cars, domain.Car{ID: tag*1000 + int64(page)*100 + int64(i)})
		}
		return &domain.CarPage{
			Cars: cars,
			PageData: domain.PageData{
				CurrentPage: page,
				TotalPages:  totalPages,
				Count:       totalPages * perPage,
				PageSize:    perPage,
			},
		}, nil
	}
}

// memStore wraps store.Memory with error injection and an optional gate
// that holds Get until it is closed.
type memStore struct {
	*store.Memory

	mu   sync.Mutex
	err  error
	gate chan struct{}
}

func newMemStore() *memStore {
	return &memStore{Memory: store.NewMemory()}
}

func (m *memStore) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// hold makes Get block until the returned release func is called.
func (m *memStore) hold() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()
	return func() { close(gate) }
}

func (m *memStore) injected() (chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gate, m.err
}

func (m *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	gate, err := m.injected()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", false, err
	}
	return m.Memory.Get(ctx, key)
}

func (m *memStore) Set(ctx context.Context, key, value string) error {
	if _, err := m.injected(); err != nil {
		return err
	}
	return m.Memory.Set(ctx, key, value)
}

func (m *memStore) Ping(ctx context.Context) error {
	if _, err := m.injected(); err != nil {
		return err
	}
	return m.Memory.Ping(ctx)
}

func (m *memStore) put(key, value string) {
	_ = m.Memory.Set(context.Background(), key, value)
}

func (m *memStore) raw(key string) string {
	v, _, _ := m.Memory.Get(context.Background(), key)
	return v
}

func ptr[T any](v T) *T { return &v }
