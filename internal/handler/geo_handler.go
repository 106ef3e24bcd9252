package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/service"
	"github.com/noah-isme/lms-api/pkg/response"
)

// GeoHandler serves country and city lookups.
type GeoHandler struct {
	geo *service.GeoService
}

// NewGeoHandler constructs GeoHandler.
func NewGeoHandler(geo *service.GeoService) *GeoHandler {
	return &GeoHandler{geo: geo}
}

// Countries godoc
// @Summary List countries
// @Tags Lookups
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /countries/ [get]
func (h *GeoHandler) Countries(c *gin.Context) {
	countries, err := h.geo.Countries(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, countries)
}

// Cities godoc
// @Summary List cities
// @Tags Lookups
// @Produce json
// @Param country_id query string false "Filter by country"
// @Success 200 {object} response.Envelope
// @Router /cities/ [get]
func (h *GeoHandler) Cities(c *gin.Context) {
	cities, err := h.geo.Cities(c.Request.Context(), c.Query("country_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cities)
}
