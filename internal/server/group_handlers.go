package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wanderlist/wanderlist-api/internal/groups"
	"github.com/wanderlist/wanderlist-api/internal/lists"
	"github.com/wanderlist/wanderlist-api/internal/spatial"
)

type groupPayload struct {
	GroupID     string `json:"group_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   int64  `json:"created_at_s"`
}

func groupResponse(group groups.Group) groupPayload {
	return groupPayload{
		GroupID:     group.GroupID,
		Name:        group.Name,
		Description: group.Description,
		CreatedBy:   group.CreatedBy,
		CreatedAt:   group.CreatedAtSeconds,
	}
}

type createGroupRequestPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *httpHandler) handleCreateGroup(c *gin.Context) {
	var request createGroupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	group, err := h.groups.Create(c.Request.Context(), request.Name, request.Description, h.currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, groupResponse(group))
}

func (h *httpHandler) handleListGroups(c *gin.Context) {
	userGroups, err := h.groups.ListForUser(c.Request.Context(), h.currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	results := make([]groupPayload, 0, len(userGroups))
	for _, group := range userGroups {
		results = append(results, groupResponse(group))
	}
	c.JSON(http.StatusOK, gin.H{"count": len(results), "groups": results})
}

func (h *httpHandler) handleGetGroup(c *gin.Context) {
	group, err := h.groups.Get(c.Request.Context(), c.Param("group_id"), h.currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupResponse(group))
}

func (h *httpHandler) handleDeleteGroup(c *gin.Context) {
	if err := h.groups.Delete(c.Request.Context(), c.Param("group_id"), h.currentUser(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *httpHandler) handleGroupMembers(c *gin.Context) {
	members, err := h.groups.Members(c.Request.Context(), c.Param("group_id"), h.currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	type memberPayload struct {
		UserID  string `json:"user_id"`
		Role    string `json:"role"`
		AddedAt int64  `json:"added_at_s"`
	}
	results := make([]memberPayload, 0, len(members))
	for _, member := range members {
		results = append(results, memberPayload{
			UserID:  member.UserID,
			Role:    member.Role,
			AddedAt: member.AddedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(results), "members": results})
}

type addMemberRequestPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *httpHandler) handleAddGroupMember(c *gin.Context) {
	var request addMemberRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	role := groups.RoleMember
	if strings.EqualFold(strings.TrimSpace(request.Role), string(groups.RoleAdmin)) {
		role = groups.RoleAdmin
	}

	err := h.groups.AddMember(c.Request.Context(), c.Param("group_id"), h.currentUser(c), request.UserID, role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user_id": request.UserID, "role": string(role)})
}

func (h *httpHandler) handleRemoveGroupMember(c *gin.Context) {
	err := h.groups.RemoveMember(c.Request.Context(), c.Param("group_id"), h.currentUser(c), c.Param("user_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

type aggregatedPlacePayload struct {
	Place        placePayload            `json:"place"`
	MemberStatus map[string]lists.Status `json:"member_status"`
	Counts       groups.StatusCounts     `json:"counts"`
}

// handleGroupPlaces serves GET /api/groups/:group_id/places: the union of
// every member's lists with a per-member status matrix. Query parameters
// narrow the view: place_type filters by category; status=visited|wishlist|
// liked keeps places where at least one member (scope=any, the default) or
// every member (scope=all) has the place on that list; unvisited=true drops
// places any member has visited.
func (h *httpHandler) handleGroupPlaces(c *gin.Context) {
	groupID := c.Param("group_id")
	memberIDs, err := h.groups.MemberIDs(c.Request.Context(), groupID, h.currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	opts := groups.AggregateOptions{
		Categories: spatial.ParseCategories(c.Query("place_type")),
	}

	var predicates []groups.Predicate
	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		kind, err := lists.ParseListKind(rawStatus)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if strings.EqualFold(strings.TrimSpace(c.Query("scope")), "all") {
			all := make([]groups.Predicate, 0, len(memberIDs))
			for _, memberID := range memberIDs {
				all = append(all, groups.MemberHas(memberID, kind))
			}
			predicates = append(predicates, groups.And(all...))
		} else {
			predicates = append(predicates, groups.AnyMemberHas(memberIDs, kind))
		}
	}
	if strings.EqualFold(strings.TrimSpace(c.Query("unvisited")), "true") {
		predicates = append(predicates, groups.Not(groups.AnyMemberHas(memberIDs, lists.ListVisited)))
	}
	if len(predicates) > 0 {
		opts.Predicate = groups.And(predicates...)
	}

	aggregated := h.aggregator.GroupPlaces(c.Request.Context(), memberIDs, opts)

	results := make([]aggregatedPlacePayload, 0, len(aggregated))
	for _, entry := range aggregated {
		place, err := h.places.Get(entry.PlaceID)
		if err != nil {
			continue
		}
		results = append(results, aggregatedPlacePayload{
			Place:        h.placeResponse(c, place, nil),
			MemberStatus: entry.Statuses,
			Counts:       entry.Counts,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(results),
		"members": memberIDs,
		"places":  results,
	})
}
