package rental

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/simp-lee/carhire/internal/catalog"
	"github.com/simp-lee/carhire/internal/domain"
	"github.com/simp-lee/carhire/internal/middleware"
	"github.com/simp-lee/carhire/internal/pkg"
	"github.com/simp-lee/carhire/internal/quote"
	"github.com/simp-lee/carhire/internal/search"
	"github.com/simp-lee/carhire/internal/session"
)

// Handler serves the search coordinators of the caller's session, plus the
// catalog, car detail, quote and language endpoints around them.
type Handler struct {
	sessions *session.Registry
	catalog  *catalog.Catalog
	quotes   *quote.Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// Option configures a Handler.
type Option func(*Handler)

// WithOriginCheck sets the Origin check of the snapshot stream upgrade.
// Without it only same-origin browsers may connect.
func WithOriginCheck(check func(r *http.Request) bool) Option {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = check
	}
}

// NewHandler creates a Handler.
func NewHandler(sessions *session.Registry, cat *catalog.Catalog, quotes *quote.Service, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		sessions: sessions,
		catalog:  cat,
		quotes:   quotes,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MoreResponse reports whether another page was fetched.
type MoreResponse struct {
	Loaded   bool            `json:"loaded"`
	Snapshot search.Snapshot `json:"snapshot"`
}

// coordinator returns the started coordinator for the :surface of the
// caller's session. On failure the error response is already written.
func (h *Handler) coordinator(c *gin.Context) (*search.Coordinator, bool) {
	coord, err := h.sessions.Get(c.Request.Context(), middleware.GetSessionID(c), c.Param("surface"))
	if err != nil {
		pkg.Error(c, err)
		return nil, false
	}
	coord.Start(c.Request.Context())
	return coord, true
}

// Snapshot handles GET /api/v1/search/:surface.
// The first call for a surface performs the initial load before answering.
func (h *Handler) Snapshot(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	pkg.Success(c, coord.Snapshot())
}

// Search handles POST /api/v1/search/:surface.
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}

	coord.Search(c.Request.Context(), req.criteria())
	pkg.Accepted(c, coord.Snapshot())
}

// LoadMore handles POST /api/v1/search/:surface/more.
func (h *Handler) LoadMore(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}

	loaded := coord.LoadMore(c.Request.Context())
	pkg.Success(c, MoreResponse{Loaded: loaded, Snapshot: coord.Snapshot()})
}

// Reset handles DELETE /api/v1/search/:surface.
func (h *Handler) Reset(c *gin.Context) {
	coord, err := h.sessions.Get(c.Request.Context(), middleware.GetSessionID(c), c.Param("surface"))
	if err != nil {
		pkg.Error(c, err)
		return
	}

	coord.ResetSearch()
	pkg.Success(c, coord.Snapshot())
}

// UpdateFilters handles PATCH /api/v1/search/:surface/filters.
func (h *Handler) UpdateFilters(c *gin.Context) {
	var patch domain.FilterPatch
	if !pkg.BindAndValidate(c, &patch) {
		return
	}
	if patch.PriceRange != nil {
		clamped := search.ClampPriceRange(*patch.PriceRange)
		patch.PriceRange = &clamped
	}
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}

	coord.UpdateFilters(c.Request.Context(), patch)
	pkg.Accepted(c, coord.Snapshot())
}

// SetFilters handles PUT /api/v1/search/:surface/filters.
func (h *Handler) SetFilters(c *gin.Context) {
	sel := domain.DefaultFilters()
	if !pkg.BindAndValidate(c, &sel) {
		return
	}
	sel.PriceRange = search.ClampPriceRange(sel.PriceRange)
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}

	coord.SetFilters(c.Request.Context(), sel)
	pkg.Accepted(c, coord.Snapshot())
}

// ClearFilters handles DELETE /api/v1/search/:surface/filters.
func (h *Handler) ClearFilters(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}

	coord.ClearFilters(c.Request.Context())
	pkg.Accepted(c, coord.Snapshot())
}

// ToggleFilter handles POST /api/v1/search/:surface/filters/toggle.
func (h *Handler) ToggleFilter(c *gin.Context) {
	var req ToggleRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}

	if !coord.ToggleFilter(c.Request.Context(), req.Facet, req.Value) {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("unknown facet %q", req.Facet), nil))
		return
	}
	pkg.Accepted(c, coord.Snapshot())
}

// Resolve handles GET /api/v1/search/:surface/resolve.
func (h *Handler) Resolve(c *gin.Context) {
	var q ResolveQuery
	if !pkg.BindQuery(c, &q) {
		return
	}
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}

	resp := ResolveResponse{Address: q.Address}
	if id, found := coord.FindLocationIDByAddress(q.Address); found {
		resp.LocationID = &id
		resp.Found = true
	}
	pkg.Success(c, resp)
}

// Locations handles GET /api/v1/locations.
func (h *Handler) Locations(c *gin.Context) {
	var q LocationsQuery
	if !pkg.BindQuery(c, &q) {
		return
	}
	ctx := c.Request.Context()
	lang := h.sessions.Language(ctx, middleware.GetSessionID(c))

	var (
		locs []domain.Location
		err  error
	)
	switch q.Kind {
	case "pickup":
		locs, err = h.catalog.PickupLocations(ctx, lang)
	case "dropoff":
		locs, err = h.catalog.DropoffLocations(ctx, lang)
	default:
		locs, err = h.catalog.Locations(ctx, lang)
	}
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, locs)
}

// Facet handles GET /api/v1/facets/:kind.
func (h *Handler) Facet(c *gin.Context) {
	ctx := c.Request.Context()
	lang := h.sessions.Language(ctx, middleware.GetSessionID(c))

	opts, err := h.catalog.Facet(ctx, c.Param("kind"), lang)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, opts)
}

// Car handles GET /api/v1/cars/:id. Opening a car seeds the detail surface's
// pickup location from the car's current location when the session has no
// resolved pickup yet.
func (h *Handler) Car(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}
	ctx := c.Request.Context()
	sid := middleware.GetSessionID(c)

	detail, err := h.quotes.CarDetail(ctx, id, h.sessions.Language(ctx, sid))
	if err != nil {
		pkg.Error(c, err)
		return
	}

	coord, err := h.sessions.Get(ctx, sid, session.SurfaceDetail)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	criteria, seeded := coord.SeedFromCar(ctx, detail.Car)

	pkg.Success(c, CarResponse{CarDetail: *detail, Criteria: criteria, Seeded: seeded})
}

// Quote handles POST /api/v1/cars/:id/quote. The dates and pickup location
// come from the session's last submitted search.
func (h *Handler) Quote(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}
	var req QuoteRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()

	criteria := h.sessions.Persistence(middleware.GetSessionID(c)).LoadLast(ctx)
	q, err := h.quotes.Calculate(ctx, id, req.ExtraKms, criteria)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, q)
}

// Language handles GET /api/v1/preferences/language.
func (h *Handler) Language(c *gin.Context) {
	lang := h.sessions.Language(c.Request.Context(), middleware.GetSessionID(c))
	pkg.Success(c, LanguageResponse{Language: lang, Languages: h.sessions.Languages()})
}

// SetLanguage handles PUT /api/v1/preferences/language. Live coordinators of
// the session reload in the new language before the response is written.
func (h *Handler) SetLanguage(c *gin.Context) {
	var req LanguageRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	if err := h.sessions.SetLanguage(c.Request.Context(), middleware.GetSessionID(c), req.Language); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, LanguageResponse{Language: req.Language, Languages: h.sessions.Languages()})
}

// parseID extracts and validates the :id path parameter.
func parseID(c *gin.Context) (int64, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %s", idStr)
	}
	return id, nil
}
