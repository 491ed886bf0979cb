package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wanderlist/wanderlist-api/internal/places"
)

type placeRequestPayload struct {
	Name     string   `json:"name"`
	City     string   `json:"city"`
	State    string   `json:"state"`
	Country  string   `json:"country"`
	Category string   `json:"category"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
}

func (p placeRequestPayload) toInput() (places.Input, bool) {
	if strings.TrimSpace(p.Name) == "" || p.Lat == nil || p.Lon == nil {
		return places.Input{}, false
	}
	return places.Input{
		Name:     p.Name,
		City:     p.City,
		State:    p.State,
		Country:  p.Country,
		Category: p.Category,
		Lat:      *p.Lat,
		Lon:      *p.Lon,
	}, true
}

func (h *httpHandler) handleCreatePlace(c *gin.Context) {
	var request placeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	input, ok := request.toInput()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, lat and lon are required"})
		return
	}

	place, err := h.places.Create(c.Request.Context(), input, h.currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.placeResponse(c, place, nil))
}

func (h *httpHandler) handleUpdatePlace(c *gin.Context) {
	var request placeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	input, ok := request.toInput()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, lat and lon are required"})
		return
	}

	place, err := h.places.Update(c.Request.Context(), c.Param("place_id"), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.placeResponse(c, place, nil))
}

func (h *httpHandler) handleDeletePlace(c *gin.Context) {
	if err := h.places.Delete(c.Request.Context(), c.Param("place_id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
