package rental

import "github.com/gin-gonic/gin"

// RentalModule implements the app.Module interface for car search.
type RentalModule struct {
	handler *Handler
}

// NewModule creates a new RentalModule.
// Panics if h is nil.
func NewModule(h *Handler) *RentalModule {
	if h == nil {
		panic("rental.NewModule: handler must not be nil")
	}
	return &RentalModule{handler: h}
}

// RegisterRoutes registers the search, catalog, car and preference routes.
func (m *RentalModule) RegisterRoutes(api *gin.RouterGroup) {
	s := api.Group("/search/:surface")
	s.GET("", m.handler.Snapshot)
	s.POST("", m.handler.Search)
	s.DELETE("", m.handler.Reset)
	s.POST("/more", m.handler.LoadMore)
	s.PATCH("/filters", m.handler.UpdateFilters)
	s.PUT("/filters", m.handler.SetFilters)
	s.DELETE("/filters", m.handler.ClearFilters)
	s.POST("/filters/toggle", m.handler.ToggleFilter)
	s.GET("/resolve", m.handler.Resolve)
	s.GET("/ws", m.handler.Stream)

	api.GET("/locations", m.handler.Locations)
	api.GET("/facets/:kind", m.handler.Facet)

	api.GET("/cars/:id", m.handler.Car)
	api.POST("/cars/:id/quote", m.handler.Quote)

	api.GET("/preferences/language", m.handler.Language)
	api.PUT("/preferences/language", m.handler.SetLanguage)
}
