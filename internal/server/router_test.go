package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wanderlist/wanderlist-api/internal/accounts"
	"github.com/wanderlist/wanderlist-api/internal/auth"
	"github.com/wanderlist/wanderlist-api/internal/database"
	"github.com/wanderlist/wanderlist-api/internal/groups"
	"github.com/wanderlist/wanderlist-api/internal/lists"
	"github.com/wanderlist/wanderlist-api/internal/places"
	"github.com/wanderlist/wanderlist-api/internal/spatial"
)

type sequenceIDs struct {
	prefix string
	next   int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("%s-%03d", s.prefix, s.next), nil
}

type testServer struct {
	handler http.Handler
	places  *places.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db"), nil)
	require.NoError(t, err)

	store := lists.NewStore(nil)
	listsService, err := lists.NewService(lists.ServiceConfig{Database: db, Store: store})
	require.NoError(t, err)

	index := spatial.NewIndex()
	placesService, err := places.NewService(places.ServiceConfig{
		Database:    db,
		Index:       index,
		IDProvider:  &sequenceIDs{prefix: "place"},
		Memberships: listsService,
	})
	require.NoError(t, err)

	engine, err := spatial.NewEngine(spatial.EngineConfig{Index: index, Places: placesService})
	require.NoError(t, err)

	groupsService, err := groups.NewService(groups.ServiceConfig{
		Database:   db,
		IDProvider: &sequenceIDs{prefix: "group"},
	})
	require.NoError(t, err)

	aggregator, err := groups.NewAggregator(groups.AggregatorConfig{
		Memberships: store,
		Places:      placesService,
	})
	require.NoError(t, err)

	accountsService, err := accounts.NewService(accounts.ServiceConfig{
		Database:   db,
		IDProvider: &sequenceIDs{prefix: "user"},
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)

	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "wanderlist-auth",
		Audience:      "wanderlist-api",
		TokenTTL:      time.Hour,
	})
	require.NoError(t, err)

	handler, err := NewHTTPHandler(Dependencies{
		Engine:     engine,
		Places:     placesService,
		Lists:      listsService,
		Groups:     groupsService,
		Aggregator: aggregator,
		Accounts:   accountsService,
		Tokens:     tokens,
	})
	require.NoError(t, err)

	return &testServer{handler: handler, places: placesService}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	ts.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return payload
}

func (ts *testServer) seedPlace(t *testing.T, name, state, category string, lat, lon float64) places.Place {
	t.Helper()
	place, err := ts.places.Create(context.Background(), places.Input{
		Name:     name,
		State:    state,
		Category: category,
		Lat:      lat,
		Lon:      lon,
	}, "seed")
	require.NoError(t, err)
	return place
}

func (ts *testServer) registerUser(t *testing.T, username string) string {
	t.Helper()
	recorder := ts.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"username": username,
		"password": "long enough password",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	payload := decodeBody(t, recorder)
	token, ok := payload["access_token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)
	return token
}

func (ts *testServer) userID(t *testing.T, payload map[string]any) string {
	t.Helper()
	user, ok := payload["user"].(map[string]any)
	require.True(t, ok)
	id, ok := user["user_id"].(string)
	require.True(t, ok)
	return id
}
