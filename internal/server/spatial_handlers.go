package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wanderlist/wanderlist-api/internal/lists"
	"github.com/wanderlist/wanderlist-api/internal/places"
	"github.com/wanderlist/wanderlist-api/internal/spatial"
)

type placePayload struct {
	PlaceID    string        `json:"place_id"`
	Name       string        `json:"name"`
	City       string        `json:"city,omitempty"`
	State      string        `json:"state,omitempty"`
	Country    string        `json:"country,omitempty"`
	Category   string        `json:"category,omitempty"`
	Lat        float64       `json:"lat"`
	Lon        float64       `json:"lon"`
	DistanceKm *float64      `json:"distance_km,omitempty"`
	Status     *lists.Status `json:"status,omitempty"`
}

func (h *httpHandler) placeResponse(c *gin.Context, place places.Place, distanceKm *float64) placePayload {
	payload := placePayload{
		PlaceID:    place.PlaceID,
		Name:       place.Name,
		City:       place.City,
		State:      place.State,
		Country:    place.Country,
		Category:   place.Category,
		Lat:        place.Lat,
		Lon:        place.Lon,
		DistanceKm: distanceKm,
	}
	if userID := h.currentUser(c); userID != "" {
		status := h.lists.Status(userID, place.PlaceID)
		payload.Status = &status
	}
	return payload
}

func requireFloat(c *gin.Context, name string) (float64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s is required", name)})
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s must be a number", name)})
		return 0, false
	}
	return value, true
}

func optionalFloat(c *gin.Context, name string) (float64, bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, false, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be a number", name)
	}
	return value, true, nil
}

func queryFilters(c *gin.Context) spatial.Filters {
	return spatial.Filters{
		Categories: spatial.ParseCategories(c.Query("place_type")),
		Name:       strings.TrimSpace(c.Query("name")),
		State:      strings.TrimSpace(c.Query("state")),
	}
}

func (h *httpHandler) handleWithinRadius(c *gin.Context) {
	lat, ok := requireFloat(c, "lat")
	if !ok {
		return
	}
	lon, ok := requireFloat(c, "lon")
	if !ok {
		return
	}
	radius, _, err := optionalFloat(c, "radius")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	neighbors, err := h.engine.Radius(c.Request.Context(), spatial.RadiusQuery{
		Lat:      lat,
		Lon:      lon,
		RadiusKm: radius,
		Filters:  queryFilters(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	results := make([]placePayload, 0, len(neighbors))
	for _, neighbor := range neighbors {
		place, err := h.places.Get(neighbor.ID)
		if err != nil {
			continue
		}
		d := neighbor.DistanceKm
		results = append(results, h.placeResponse(c, place, &d))
	}
	c.JSON(http.StatusOK, gin.H{"count": len(results), "places": results})
}

func (h *httpHandler) handleNearest(c *gin.Context) {
	lat, ok := requireFloat(c, "lat")
	if !ok {
		return
	}
	lon, ok := requireFloat(c, "lon")
	if !ok {
		return
	}

	k := 0
	if raw := strings.TrimSpace(c.Query("k")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(c, fmt.Errorf("%w: %q", spatial.ErrInvalidK, raw))
			return
		}
		k = parsed
	}

	neighbors, err := h.engine.KNN(c.Request.Context(), spatial.KNNQuery{
		Lat:     lat,
		Lon:     lon,
		K:       k,
		Filters: queryFilters(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	results := make([]placePayload, 0, len(neighbors))
	for _, neighbor := range neighbors {
		place, err := h.places.Get(neighbor.ID)
		if err != nil {
			continue
		}
		d := neighbor.DistanceKm
		results = append(results, h.placeResponse(c, place, &d))
	}
	c.JSON(http.StatusOK, gin.H{"count": len(results), "places": results})
}

func (h *httpHandler) handleWithinBBox(c *gin.Context) {
	north, ok := requireFloat(c, "north")
	if !ok {
		return
	}
	south, ok := requireFloat(c, "south")
	if !ok {
		return
	}
	east, ok := requireFloat(c, "east")
	if !ok {
		return
	}
	west, ok := requireFloat(c, "west")
	if !ok {
		return
	}

	ids, err := h.engine.BBox(c.Request.Context(), spatial.BBoxQuery{
		North:   north,
		South:   south,
		East:    east,
		West:    west,
		Filters: queryFilters(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	results := make([]placePayload, 0, len(ids))
	for _, id := range ids {
		place, err := h.places.Get(id)
		if err != nil {
			continue
		}
		results = append(results, h.placeResponse(c, place, nil))
	}
	c.JSON(http.StatusOK, gin.H{"count": len(results), "places": results})
}

func (h *httpHandler) handleDistanceMatrix(c *gin.Context) {
	points, err := spatial.ParsePoints(c.Query("points"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	rows, err := h.engine.DistanceMatrix(c.Request.Context(), points)
	if err != nil {
		h.respondError(c, err)
		return
	}

	coordinates := make([][]float64, len(rows))
	matrix := make([][]float64, len(rows))
	for i, row := range rows {
		coordinates[i] = []float64{row.Point.Lat, row.Point.Lon}
		matrix[i] = row.Distances
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     len(rows),
		"points":    coordinates,
		"matrix_km": matrix,
	})
}

func (h *httpHandler) handleDensity(c *gin.Context) {
	lat, ok := requireFloat(c, "lat")
	if !ok {
		return
	}
	lon, ok := requireFloat(c, "lon")
	if !ok {
		return
	}
	radius, present, err := optionalFloat(c, "radius")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !present {
		radius = spatial.DefaultRadiusKm
	}

	report, err := h.engine.Density(c.Request.Context(), lat, lon, radius)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"center":               []float64{report.Center.Lat, report.Center.Lon},
		"radius_km":            report.RadiusKm,
		"count":                report.Count,
		"area_km2":             report.AreaKm2,
		"density_per_1000_km2": report.DensityPer1000Km2,
	})
}

func (h *httpHandler) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.places.Summarize())
}

func (h *httpHandler) handleExportCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="places.csv"`)
	if err := h.places.ExportCSV(c.Writer); err != nil {
		h.logger.Error("csv export failed", zap.Error(err))
	}
}

func (h *httpHandler) handleExportGeoJSON(c *gin.Context) {
	payload, err := h.places.ExportGeoJSON()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", payload)
}

func (h *httpHandler) handleGetPlace(c *gin.Context) {
	place, err := h.places.Get(c.Param("place_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.placeResponse(c, place, nil))
}
