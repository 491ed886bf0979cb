package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wanderlist/wanderlist-api/internal/accounts"
	"github.com/wanderlist/wanderlist-api/internal/geo"
	"github.com/wanderlist/wanderlist-api/internal/groups"
	"github.com/wanderlist/wanderlist-api/internal/lists"
	"github.com/wanderlist/wanderlist-api/internal/places"
	"github.com/wanderlist/wanderlist-api/internal/spatial"
)

const userIDContextKey = "wanderlist_user_id"

var (
	errMissingEngine     = errors.New("spatial engine dependency required")
	errMissingPlaces     = errors.New("places service dependency required")
	errMissingLists      = errors.New("lists service dependency required")
	errMissingGroups     = errors.New("groups service dependency required")
	errMissingAggregator = errors.New("group aggregator dependency required")
	errMissingAccounts   = errors.New("accounts service dependency required")
	errMissingTokens     = errors.New("token manager dependency required")
	errInvalidAuth       = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates the bearer tokens protecting the API.
type TokenManager interface {
	IssueToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies carries everything the HTTP layer needs.
type Dependencies struct {
	Engine     *spatial.Engine
	Places     *places.Service
	Lists      *lists.Service
	Groups     *groups.Service
	Aggregator *groups.Aggregator
	Accounts   *accounts.Service
	Tokens     TokenManager
	Logger     *zap.Logger
}

// NewHTTPHandler wires the gin router. Discovery endpoints are public and
// enrich results with list status when a valid bearer token is present; the
// /api surface requires one.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Engine == nil {
		return nil, errMissingEngine
	}
	if deps.Places == nil {
		return nil, errMissingPlaces
	}
	if deps.Lists == nil {
		return nil, errMissingLists
	}
	if deps.Groups == nil {
		return nil, errMissingGroups
	}
	if deps.Aggregator == nil {
		return nil, errMissingAggregator
	}
	if deps.Accounts == nil {
		return nil, errMissingAccounts
	}
	if deps.Tokens == nil {
		return nil, errMissingTokens
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		engine:     deps.Engine,
		places:     deps.Places,
		lists:      deps.Lists,
		groups:     deps.Groups,
		aggregator: deps.Aggregator,
		accounts:   deps.Accounts,
		tokens:     deps.Tokens,
		logger:     logger,
	}

	router.GET("/health", handler.handleHealth)

	discovery := router.Group("/")
	discovery.Use(handler.identifyRequest)
	discovery.GET("/within_radius", handler.handleWithinRadius)
	discovery.GET("/nearest", handler.handleNearest)
	discovery.GET("/within_bbox", handler.handleWithinBBox)
	discovery.GET("/distance_matrix", handler.handleDistanceMatrix)
	discovery.GET("/analytics/density", handler.handleDensity)
	discovery.GET("/stats", handler.handleStats)
	discovery.GET("/export/csv", handler.handleExportCSV)
	discovery.GET("/export/geojson", handler.handleExportGeoJSON)
	discovery.GET("/places/:place_id", handler.handleGetPlace)

	router.POST("/api/users/register", handler.handleRegister)
	router.POST("/api/users/login", handler.handleLogin)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	for _, kind := range []lists.ListKind{lists.ListVisited, lists.ListWishlist, lists.ListLiked} {
		kind := kind
		protected.GET("/user/"+string(kind), handler.handleListGet(kind))
		protected.POST("/user/"+string(kind), handler.handleListAdd(kind))
		protected.DELETE("/user/"+string(kind)+"/:place_id", handler.handleListRemove(kind))
	}
	protected.GET("/user/place-status/:place_id", handler.handlePlaceStatus)

	protected.POST("/places", handler.handleCreatePlace)
	protected.PUT("/places/:place_id", handler.handleUpdatePlace)
	protected.DELETE("/places/:place_id", handler.handleDeletePlace)

	protected.POST("/groups", handler.handleCreateGroup)
	protected.GET("/groups", handler.handleListGroups)
	protected.GET("/groups/:group_id", handler.handleGetGroup)
	protected.DELETE("/groups/:group_id", handler.handleDeleteGroup)
	protected.GET("/groups/:group_id/members", handler.handleGroupMembers)
	protected.POST("/groups/:group_id/members", handler.handleAddGroupMember)
	protected.DELETE("/groups/:group_id/members/:user_id", handler.handleRemoveGroupMember)
	protected.GET("/groups/:group_id/places", handler.handleGroupPlaces)

	return router, nil
}

type httpHandler struct {
	engine     *spatial.Engine
	places     *places.Service
	lists      *lists.Service
	groups     *groups.Service
	aggregator *groups.Aggregator
	accounts   *accounts.Service
	tokens     TokenManager
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "places": h.places.Count()})
}

// authorizeRequest rejects requests without a valid bearer token.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuth.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuth.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

// identifyRequest resolves the user from a bearer token when one is present
// but lets anonymous requests through. Invalid tokens are treated as
// anonymous rather than rejected.
func (h *httpHandler) identifyRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" {
			if subject, err := h.tokens.ValidateToken(token); err == nil {
				c.Set(userIDContextKey, subject)
			}
		}
	}
	c.Next()
}

func (h *httpHandler) currentUser(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}

// respondError maps domain errors to HTTP statuses. Anything unrecognized is
// logged and reported as an opaque 500.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, geo.ErrInvalidCoordinate),
		errors.Is(err, geo.ErrInvalidBoundingBox),
		errors.Is(err, spatial.ErrInvalidRadius),
		errors.Is(err, spatial.ErrInvalidK),
		errors.Is(err, spatial.ErrTooFewPoints),
		errors.Is(err, spatial.ErrTooManyPoints),
		errors.Is(err, lists.ErrInvalidListKind),
		errors.Is(err, places.ErrInvalidPlaceName),
		errors.Is(err, groups.ErrInvalidGroupName),
		errors.Is(err, accounts.ErrInvalidUsername),
		errors.Is(err, accounts.ErrWeakPassword):
		status = http.StatusBadRequest
	case errors.Is(err, accounts.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, groups.ErrNotAdmin):
		status = http.StatusForbidden
	case errors.Is(err, groups.ErrGroupNotFound),
		errors.Is(err, groups.ErrNotMember),
		errors.Is(err, places.ErrPlaceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, accounts.ErrUsernameTaken),
		errors.Is(err, groups.ErrAlreadyMember),
		errors.Is(err, groups.ErrLastAdmin):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
