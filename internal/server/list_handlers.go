package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wanderlist/wanderlist-api/internal/lists"
)

type listAddRequestPayload struct {
	PlaceID  string `json:"place_id"`
	Note     string `json:"note"`
	Priority int    `json:"priority"`
	Rating   int    `json:"rating"`
}

type listEntryPayload struct {
	Place    placePayload `json:"place"`
	Note     string       `json:"note,omitempty"`
	Priority int          `json:"priority,omitempty"`
	Rating   int          `json:"rating,omitempty"`
	AddedAt  int64        `json:"added_at_s"`
}

// handleListGet serves GET /api/user/{visited,wishlist,liked}.
func (h *httpHandler) handleListGet(kind lists.ListKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := h.currentUser(c)
		entries := h.lists.List(userID, kind)

		results := make([]listEntryPayload, 0, len(entries))
		for _, entry := range entries {
			place, err := h.places.Get(entry.PlaceID)
			if err != nil {
				continue
			}
			results = append(results, listEntryPayload{
				Place:    h.placeResponse(c, place, nil),
				Note:     entry.Metadata.Note,
				Priority: entry.Metadata.Priority,
				Rating:   entry.Metadata.Rating,
				AddedAt:  entry.Metadata.AddedAt.Unix(),
			})
		}
		c.JSON(http.StatusOK, gin.H{"count": len(results), "places": results})
	}
}

// handleListAdd serves POST /api/user/{visited,wishlist,liked}. Re-adding a
// place updates its metadata instead of duplicating it.
func (h *httpHandler) handleListAdd(kind lists.ListKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := h.currentUser(c)

		var request listAddRequestPayload
		if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.PlaceID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}

		if _, err := h.places.Get(request.PlaceID); err != nil {
			h.respondError(c, err)
			return
		}

		entry, err := h.lists.Add(c.Request.Context(), userID, request.PlaceID, kind, lists.Metadata{
			Note:     request.Note,
			Priority: request.Priority,
			Rating:   request.Rating,
		})
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"place_id":   entry.PlaceID,
			"list":       string(kind),
			"note":       entry.Metadata.Note,
			"priority":   entry.Metadata.Priority,
			"rating":     entry.Metadata.Rating,
			"added_at_s": entry.Metadata.AddedAt.Unix(),
		})
	}
}

// handleListRemove serves DELETE /api/user/{kind}/:place_id. Removing an
// absent entry still reports success.
func (h *httpHandler) handleListRemove(kind lists.ListKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := h.currentUser(c)
		placeID := c.Param("place_id")

		if err := h.lists.Remove(c.Request.Context(), userID, placeID, kind); err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"place_id": placeID, "list": string(kind), "removed": true})
	}
}

// handlePlaceStatus serves GET /api/user/place-status/:place_id. Unknown
// places yield all-false flags rather than 404.
func (h *httpHandler) handlePlaceStatus(c *gin.Context) {
	userID := h.currentUser(c)
	placeID := c.Param("place_id")
	c.JSON(http.StatusOK, h.lists.Status(userID, placeID))
}
