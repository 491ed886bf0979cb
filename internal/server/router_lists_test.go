package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListLifecycle(t *testing.T) {
	ts := newTestServer(t)
	place := ts.seedPlace(t, "Crater Lake", "Oregon", "park", 42.94, -122.1)
	token := ts.registerUser(t, "alice")

	// Add to wishlist with a priority.
	recorder := ts.do(t, http.MethodPost, "/api/user/wishlist", token, map[string]any{
		"place_id": place.PlaceID,
		"note":     "summer trip",
		"priority": 3,
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	require.EqualValues(t, 3, payload["priority"])

	// The wishlist returns the enriched place.
	recorder = ts.do(t, http.MethodGet, "/api/user/wishlist", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload = decodeBody(t, recorder)
	require.EqualValues(t, 1, payload["count"])
	entry := payload["places"].([]any)[0].(map[string]any)
	require.Equal(t, "summer trip", entry["note"])
	require.Equal(t, "Crater Lake", entry["place"].(map[string]any)["name"])

	// Status reflects the wishlist membership.
	recorder = ts.do(t, http.MethodGet, "/api/user/place-status/"+place.PlaceID, token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload = decodeBody(t, recorder)
	require.Equal(t, true, payload["in_wishlist"])
	require.Equal(t, false, payload["visited"])

	// Remove, twice: both succeed.
	recorder = ts.do(t, http.MethodDelete, "/api/user/wishlist/"+place.PlaceID, token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = ts.do(t, http.MethodDelete, "/api/user/wishlist/"+place.PlaceID, token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = ts.do(t, http.MethodGet, "/api/user/wishlist", token, nil)
	payload = decodeBody(t, recorder)
	require.EqualValues(t, 0, payload["count"])
}

func TestListAddUnknownPlace(t *testing.T) {
	ts := newTestServer(t)
	token := ts.registerUser(t, "alice")

	recorder := ts.do(t, http.MethodPost, "/api/user/visited", token, map[string]any{
		"place_id": "missing",
	})
	require.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = ts.do(t, http.MethodPost, "/api/user/visited", token, map[string]any{})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestPlaceStatusDefaultsFalse(t *testing.T) {
	ts := newTestServer(t)
	token := ts.registerUser(t, "alice")

	recorder := ts.do(t, http.MethodGet, "/api/user/place-status/never-seen", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	require.Equal(t, false, payload["visited"])
	require.Equal(t, false, payload["in_wishlist"])
	require.Equal(t, false, payload["liked"])
}

func TestSpatialResultsCarryStatusWhenAuthenticated(t *testing.T) {
	ts := newTestServer(t)
	place := ts.seedPlace(t, "Liked Spot", "", "", 0, 0.01)
	token := ts.registerUser(t, "alice")

	recorder := ts.do(t, http.MethodPost, "/api/user/liked", token, map[string]any{
		"place_id": place.PlaceID,
		"rating":   5,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = ts.do(t, http.MethodGet, "/within_radius?lat=0&lon=0", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	entry := payload["places"].([]any)[0].(map[string]any)
	status := entry["status"].(map[string]any)
	require.Equal(t, true, status["liked"])
	require.Equal(t, false, status["visited"])
}

func TestDeletePlaceCascadesToLists(t *testing.T) {
	ts := newTestServer(t)
	place := ts.seedPlace(t, "Doomed", "", "", 0, 0.01)
	token := ts.registerUser(t, "alice")

	recorder := ts.do(t, http.MethodPost, "/api/user/visited", token, map[string]any{
		"place_id": place.PlaceID,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = ts.do(t, http.MethodDelete, "/api/places/"+place.PlaceID, token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = ts.do(t, http.MethodGet, "/api/user/place-status/"+place.PlaceID, token, nil)
	payload := decodeBody(t, recorder)
	require.Equal(t, false, payload["visited"])

	recorder = ts.do(t, http.MethodGet, "/within_radius?lat=0&lon=0", token, nil)
	payload = decodeBody(t, recorder)
	require.EqualValues(t, 0, payload["count"])
}
