package rental

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simp-lee/carhire/internal/catalog"
	"github.com/simp-lee/carhire/internal/domain"
	"github.com/simp-lee/carhire/internal/middleware"
	"github.com/simp-lee/carhire/internal/quote"
	"github.com/simp-lee/carhire/internal/search"
	"github.com/simp-lee/carhire/internal/session"
	"github.com/simp-lee/carhire/internal/store"
)

const testSessionID = "5b7c1f0e-2d8a-4c3b-9e61-0f4a7d2b8c11"

// backend is an in-process rental API serving two pages of three cars.
type backend struct {
	mu        sync.Mutex
	listCalls []url.Values
	quotes    []domain.QuoteRequest
	languages []string

	quoteErr error
}

func (b *backend) ListCars(_ context.Context, params url.Values) (*domain.CarPage, error) {
	b.mu.Lock()
	b.listCalls = append(b.listCalls, params)
	b.mu.Unlock()

	page, _ := strconv.Atoi(params.Get("page"))
	cars := make([]domain.Car, 0, 3)
	for i := range 3 {
		cars = append(cars, domain.Car{ID: int64(page*10 + i), Brand: "Fiat"})
	}
	return &domain.CarPage{
		Cars:     cars,
		PageData: domain.PageData{CurrentPage: page, TotalPages: 2, Count: 6, PageSize: 3},
	}, nil
}

func (b *backend) GetCar(_ context.Context, id int64, _ string) (*domain.Car, error) {
	if id != 5 {
		return nil, domain.NewAppError(domain.CodeNotFound, "car not found", nil)
	}
	return &domain.Car{ID: 5, Brand: "Fiat", Model: "Panda", CurrentLocation: 7}, nil
}

func (b *backend) ListLocations(_ context.Context, language string) ([]domain.Location, error) {
	b.mu.Lock()
	b.languages = append(b.languages, language)
	b.mu.Unlock()
	return []domain.Location{
		{ID: 7, Address: "Rome Airport", IsActive: true, IsPickupLocation: true, IsDropLocation: true},
		{ID: 9, Address: "Milan Central", IsActive: true, IsPickupLocation: true},
		{ID: 11, Address: "Naples Port", IsActive: false, IsPickupLocation: true, IsDropLocation: true},
	}, nil
}

func (b *backend) ListFacet(_ context.Context, kind, _ string) ([]domain.FacetOption, error) {
	return []domain.FacetOption{{ID: 1, Name: "petrol", OtherName: "Petrol"}}, nil
}

func (b *backend) CalculateQuote(_ context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes = append(b.quotes, req)
	if b.quoteErr != nil {
		return nil, b.quoteErr
	}
	return &domain.Quote{TotalDays: 2, ExtraKms: req.ExtraKms, TotalAmountWithTax: 122}, nil
}

func (b *backend) GetDiscountOffer(context.Context, int64) (string, error) {
	return "10% off weekends", nil
}

func (b *backend) lastList() url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.listCalls) == 0 {
		return nil
	}
	return b.listCalls[len(b.listCalls)-1]
}

func (b *backend) lastQuote() domain.QuoteRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.quotes[len(b.quotes)-1]
}

type testEnv struct {
	router   *gin.Engine
	api      *backend
	kv       *store.Memory
	sessions *session.Registry
}

// setupRouter wires the module over a fake backend. Every surface fetches
// synchronously so responses reflect the finished fetch.
func setupRouter(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	api := &backend{}
	kv := store.NewMemory()
	cat := catalog.New(api, 0, nil)
	t.Cleanup(cat.Close)
	sessions := session.NewRegistry(session.Options{
		API:       api,
		Locations: cat,
		Store:     kv,
		Surfaces: map[string]session.Surface{
			session.SurfaceListing: {PageSize: 3},
			session.SurfaceDetail:  {PageSize: 3},
		},
		Languages:       []string{"en", "de"},
		DefaultLanguage: "en",
	})
	t.Cleanup(sessions.Close)

	r := gin.New()
	r.Use(middleware.Session(middleware.DefaultSessionConfig()))
	NewModule(NewHandler(sessions, cat, quote.NewService(api, nil), nil, opts...)).RegisterRoutes(r.Group("/api/v1"))

	return &testEnv{router: r, api: api, kv: kv, sessions: sessions}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Session-ID", testSessionID)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), string(env.Data))
	return out
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHandler_SnapshotPerformsInitialLoad(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodGet, "/api/v1/search/listing", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	snap := decode[search.Snapshot](t, w)
	assert.Equal(t, search.StateReady, snap.State)
	assert.Equal(t, "listing", snap.Surface)
	assert.Len(t, snap.Cars, 3)
	assert.Len(t, snap.Locations, 3)
	assert.True(t, snap.HasNextPage)
	assert.False(t, snap.InitialLoad)
	assert.Equal(t, 6, snap.TotalCount)
	assert.Equal(t, "3", env.api.lastList().Get("page_size"))
}

func TestHandler_UnknownSurface(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodGet, "/api/v1/search/checkout", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_SearchResolvesAndPersists(t *testing.T) {
	env := setupRouter(t)

	body := `{"pickup_location":"rome","pickup_date":"2026-11-02T10:00","dropoff_location":"Somewhere else","dropoff_date":"2026-11-04T10:00"}`
	w := env.do(t, http.MethodPost, "/api/v1/search/listing", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	snap := decode[search.Snapshot](t, w)
	require.NotNil(t, snap.Criteria.PickupLocationID)
	assert.Equal(t, int64(7), *snap.Criteria.PickupLocationID)
	assert.Nil(t, snap.Criteria.DropoffLocationID)
	assert.Equal(t, search.StateReady, snap.State)

	last := env.api.lastList()
	assert.Equal(t, "7", last.Get("pickup_location"))
	assert.Equal(t, "Somewhere else", last.Get("dropoff_location"))
	assert.Equal(t, "2026-11-04T10:00", last.Get("drop_date"))
	assert.Equal(t, "1", last.Get("page"))

	raw, found, err := env.kv.Get(context.Background(), search.SessionKey(testSessionID, search.SearchDataKey))
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, raw, `"pickupLocationId":7`)
}

func TestHandler_SearchValidation(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/search/listing", `{"pickup_location_id":0}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, "Must be greater than or equal to 1", resp.Errors["pickup_location_id"])
}

func TestHandler_LoadMore(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/search/listing/more", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	more := decode[MoreResponse](t, w)
	assert.True(t, more.Loaded)
	assert.Len(t, more.Snapshot.Cars, 6)
	assert.Equal(t, 2, more.Snapshot.CurrentPage)
	assert.False(t, more.Snapshot.HasNextPage)

	w = env.do(t, http.MethodPost, "/api/v1/search/listing/more", "")
	require.Equal(t, http.StatusOK, w.Code)
	more = decode[MoreResponse](t, w)
	assert.False(t, more.Loaded, "no page after the last one")
	assert.Len(t, more.Snapshot.Cars, 6)
}

func TestHandler_Filters(t *testing.T) {
	env := setupRouter(t)
	env.do(t, http.MethodGet, "/api/v1/search/listing", "")

	w := env.do(t, http.MethodPatch, "/api/v1/search/listing/filters", `{"fuel":["petrol"],"price_range":[-5,200000]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	snap := decode[search.Snapshot](t, w)
	assert.Equal(t, []string{"petrol"}, snap.Filters.Fuel)
	assert.Equal(t, domain.FullPriceRange(), snap.Filters.PriceRange)
	assert.Len(t, snap.Cars, 3, "results were replaced by a fresh first page")
	assert.Equal(t, "petrol", env.api.lastList().Get("fuel_type"))

	w = env.do(t, http.MethodPost, "/api/v1/search/listing/filters/toggle", `{"facet":"transmission","value":"automatic"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	snap = decode[search.Snapshot](t, w)
	assert.Equal(t, []string{"automatic"}, snap.Filters.Transmissions)
	assert.Equal(t, []string{"petrol"}, snap.Filters.Fuel)

	w = env.do(t, http.MethodPut, "/api/v1/search/listing/filters", `{"car_types":["suv"],"price_range":[500,100]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	snap = decode[search.Snapshot](t, w)
	assert.Equal(t, []string{"suv"}, snap.Filters.CarTypes)
	assert.Empty(t, snap.Filters.Fuel)
	assert.Equal(t, domain.PriceRange{100, 100}, snap.Filters.PriceRange)

	w = env.do(t, http.MethodDelete, "/api/v1/search/listing/filters", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	snap = decode[search.Snapshot](t, w)
	assert.Equal(t, domain.DefaultFilters(), snap.Filters)
	assert.Equal(t, "", env.api.lastList().Get("car_type"))
}

func TestHandler_ToggleUnknownFacet(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/search/listing/filters/toggle", `{"facet":"colour","value":"red"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, "Must be one of: fuel transmission car_type body_type", resp.Errors["facet"])
}

func TestHandler_Reset(t *testing.T) {
	env := setupRouter(t)
	env.do(t, http.MethodPost, "/api/v1/search/listing", `{"pickup_location":"Rome Airport"}`)

	w := env.do(t, http.MethodDelete, "/api/v1/search/listing", "")
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[search.Snapshot](t, w)
	assert.Equal(t, search.StateUninitialized, snap.State)
	assert.True(t, snap.Criteria.IsZero())
	assert.Empty(t, snap.Cars)

	// The persisted last search survives a reset.
	_, found, err := env.kv.Get(context.Background(), search.SessionKey(testSessionID, search.SearchDataKey))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestHandler_Resolve(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodGet, "/api/v1/search/listing/resolve?address=milan", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ResolveResponse](t, w)
	assert.True(t, resp.Found)
	require.NotNil(t, resp.LocationID)
	assert.Equal(t, int64(9), *resp.LocationID)

	w = env.do(t, http.MethodGet, "/api/v1/search/listing/resolve?address=Paris", "")
	resp = decode[ResolveResponse](t, w)
	assert.False(t, resp.Found)
	assert.Nil(t, resp.LocationID)

	w = env.do(t, http.MethodGet, "/api/v1/search/listing/resolve", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Locations(t *testing.T) {
	env := setupRouter(t)

	tests := []struct {
		kind string
		want []int64
	}{
		{"", []int64{7, 9, 11}},
		{"all", []int64{7, 9, 11}},
		{"pickup", []int64{7, 9}},
		{"dropoff", []int64{7}},
	}
	for _, tt := range tests {
		t.Run("kind="+tt.kind, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/locations?kind="+tt.kind, "")
			require.Equal(t, http.StatusOK, w.Code)
			locs := decode[[]domain.Location](t, w)
			ids := make([]int64, 0, len(locs))
			for _, l := range locs {
				ids = append(ids, l.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	w := env.do(t, http.MethodGet, "/api/v1/locations?kind=depot", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Facet(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodGet, "/api/v1/facets/fuel_type", "")
	require.Equal(t, http.StatusOK, w.Code)
	opts := decode[[]domain.FacetOption](t, w)
	require.Len(t, opts, 1)
	assert.Equal(t, "petrol", opts[0].Name)

	w = env.do(t, http.MethodGet, "/api/v1/facets/colour", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CarSeedsPickupOnce(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodGet, "/api/v1/cars/5", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[CarResponse](t, w)
	assert.Equal(t, "Panda", resp.Car.Model)
	assert.Equal(t, "10% off weekends", resp.Offer)
	assert.True(t, resp.Seeded)
	assert.Equal(t, "Rome Airport", resp.Criteria.PickupLocation)

	w = env.do(t, http.MethodGet, "/api/v1/cars/5", "")
	resp = decode[CarResponse](t, w)
	assert.False(t, resp.Seeded, "a resolved pickup is never overwritten")
	assert.Equal(t, "Rome Airport", resp.Criteria.PickupLocation)
}

func TestHandler_CarErrors(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodGet, "/api/v1/cars/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/cars/404", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Quote(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/cars/5/quote", `{"extra_kms":50}`)
	require.Equal(t, http.StatusBadRequest, w.Code, "dates are required")

	env.do(t, http.MethodPost, "/api/v1/search/listing",
		`{"pickup_location":"Rome Airport","pickup_date":"2026-11-02T10:00","dropoff_date":"2026-11-04T10:00"}`)

	w = env.do(t, http.MethodPost, "/api/v1/cars/5/quote", `{"extra_kms":50}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	q := decode[domain.Quote](t, w)
	assert.Equal(t, 50, q.ExtraKms)
	assert.InDelta(t, 122.0, q.TotalAmountWithTax, 0.001)

	sent := env.api.lastQuote()
	assert.Equal(t, int64(5), sent.CarID)
	assert.Equal(t, int64(7), sent.PickupLocation)
	assert.Equal(t, "2026-11-02T10:00", sent.StartDate)

	w = env.do(t, http.MethodPost, "/api/v1/cars/5/quote", `{"extra_kms":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_QuoteNotAvailable(t *testing.T) {
	env := setupRouter(t)
	env.api.quoteErr = domain.ErrCarNotAvailable
	env.do(t, http.MethodPost, "/api/v1/search/listing",
		`{"pickup_location":"Rome Airport","pickup_date":"2026-11-02T10:00","dropoff_date":"2026-11-04T10:00"}`)

	w := env.do(t, http.MethodPost, "/api/v1/cars/5/quote", `{"extra_kms":0}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.NotAvailableSignal, decode[string](t, w))
}

func TestHandler_Language(t *testing.T) {
	env := setupRouter(t)
	env.do(t, http.MethodGet, "/api/v1/search/listing", "")

	w := env.do(t, http.MethodGet, "/api/v1/preferences/language", "")
	require.Equal(t, http.StatusOK, w.Code)
	lang := decode[LanguageResponse](t, w)
	assert.Equal(t, "en", lang.Language)
	assert.Equal(t, []string{"en", "de"}, lang.Languages)

	w = env.do(t, http.MethodPut, "/api/v1/preferences/language", `{"language":"de"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "de", env.api.lastList().Get("selected_language"), "live searches reload in the new language")

	w = env.do(t, http.MethodGet, "/api/v1/preferences/language", "")
	assert.Equal(t, "de", decode[LanguageResponse](t, w).Language)

	w = env.do(t, http.MethodPut, "/api/v1/preferences/language", `{"language":"fr"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_IssuesSessionWhenMissing(t *testing.T) {
	env := setupRouter(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/preferences/language", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Session-ID"))
	assert.NotEqual(t, testSessionID, w.Header().Get("X-Session-ID"))
}
