package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	recorder := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	require.Equal(t, "ok", payload["status"])
}

func TestWithinRadiusEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPlace(t, "Near Cafe", "Oregon", "cafe", 0, 0.05)
	ts.seedPlace(t, "Far Museum", "Oregon", "museum", 0, 0.5)

	// Default 10 km radius finds only the nearby place.
	recorder := ts.do(t, http.MethodGet, "/within_radius?lat=0&lon=0", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	require.EqualValues(t, 1, payload["count"])
	placesList := payload["places"].([]any)
	first := placesList[0].(map[string]any)
	require.Equal(t, "Near Cafe", first["name"])
	require.NotNil(t, first["distance_km"])
	require.Nil(t, first["status"])

	// A wider radius with a category filter finds the museum.
	recorder = ts.do(t, http.MethodGet, "/within_radius?lat=0&lon=0&radius=100&place_type=museum", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload = decodeBody(t, recorder)
	require.EqualValues(t, 1, payload["count"])
}

func TestWithinRadiusValidation(t *testing.T) {
	ts := newTestServer(t)

	recorder := ts.do(t, http.MethodGet, "/within_radius?lon=0", "", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = ts.do(t, http.MethodGet, "/within_radius?lat=abc&lon=0", "", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = ts.do(t, http.MethodGet, "/within_radius?lat=91&lon=0", "", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestNearestEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPlace(t, "First", "", "", 0, 0.01)
	ts.seedPlace(t, "Second", "", "", 0, 0.02)
	ts.seedPlace(t, "Third", "", "", 0, 0.03)

	recorder := ts.do(t, http.MethodGet, "/nearest?lat=0&lon=0&k=2", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	require.EqualValues(t, 2, payload["count"])
	placesList := payload["places"].([]any)
	require.Equal(t, "First", placesList[0].(map[string]any)["name"])
	require.Equal(t, "Second", placesList[1].(map[string]any)["name"])

	recorder = ts.do(t, http.MethodGet, "/nearest?lat=0&lon=0&k=nope", "", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestWithinBBoxEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPlace(t, "Inside", "", "", 5, 5)
	ts.seedPlace(t, "Outside", "", "", 50, 50)

	recorder := ts.do(t, http.MethodGet, "/within_bbox?north=10&south=0&east=10&west=0", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	require.EqualValues(t, 1, payload["count"])

	// Inverted corners are rejected, not repaired.
	recorder = ts.do(t, http.MethodGet, "/within_bbox?north=0&south=10&east=10&west=0", "", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestDistanceMatrixEndpoint(t *testing.T) {
	ts := newTestServer(t)

	// Semicolons must be percent-encoded; a literal one is dropped by the
	// query parser.
	recorder := ts.do(t, http.MethodGet, "/distance_matrix?points=0,0%3B0,1", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	require.EqualValues(t, 2, payload["count"])
	matrix := payload["matrix_km"].([]any)
	require.Len(t, matrix, 2)
	row := matrix[0].([]any)
	require.Zero(t, row[0].(float64))
	require.InDelta(t, 111.195, row[1].(float64), 1)

	recorder = ts.do(t, http.MethodGet, "/distance_matrix?points=0,0%3B91,0", "", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Contains(t, recorder.Body.String(), "point 2")

	recorder = ts.do(t, http.MethodGet, "/distance_matrix?points=0,0", "", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestDensityEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPlace(t, "A", "", "", 0, 0.1)
	ts.seedPlace(t, "B", "", "", 0, 0.2)

	recorder := ts.do(t, http.MethodGet, "/analytics/density?lat=0&lon=0&radius=100", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	require.EqualValues(t, 2, payload["count"])
	require.InDelta(t, 31415.9, payload["area_km2"].(float64), 1)

	recorder = ts.do(t, http.MethodGet, "/analytics/density?lat=0&lon=0&radius=-1", "", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPlace(t, "A", "Oregon", "", 44, -120)
	ts.seedPlace(t, "B", "Oregon", "", 45, -121)

	recorder := ts.do(t, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	require.EqualValues(t, 2, payload["count"])
}

func TestExportEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPlace(t, "Exported", "Oregon", "park", 44, -120)

	recorder := ts.do(t, http.MethodGet, "/export/csv", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(recorder.Body.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "Exported")

	recorder = ts.do(t, http.MethodGet, "/export/geojson", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	require.Equal(t, "FeatureCollection", payload["type"])
}

func TestGetPlaceEndpoint(t *testing.T) {
	ts := newTestServer(t)
	place := ts.seedPlace(t, "Lookup", "", "", 10, 10)

	recorder := ts.do(t, http.MethodGet, "/places/"+place.PlaceID, "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	require.Equal(t, "Lookup", payload["name"])

	recorder = ts.do(t, http.MethodGet, "/places/missing", "", nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}
