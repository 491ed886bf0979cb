package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	recorder := ts.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"username": "Alice",
		"email":    "alice@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	payload := decodeBody(t, recorder)
	require.Equal(t, "Bearer", payload["token_type"])
	require.NotEmpty(t, ts.userID(t, payload))

	recorder = ts.do(t, http.MethodPost, "/api/users/login", "", map[string]any{
		"username": "alice",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = ts.do(t, http.MethodPost, "/api/users/login", "", map[string]any{
		"username": "alice",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRegisterValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	recorder := ts.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"username": "bob",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	ts.registerUser(t, "carol")
	recorder = ts.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"username": "carol",
		"password": "long enough password",
	})
	require.Equal(t, http.StatusConflict, recorder.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	recorder := ts.do(t, http.MethodGet, "/api/user/visited", "", nil)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = ts.do(t, http.MethodGet, "/api/user/visited", "not-a-real-token", nil)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	token := ts.registerUser(t, "dave")
	recorder = ts.do(t, http.MethodGet, "/api/user/visited", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestDiscoveryIgnoresInvalidToken(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPlace(t, "Open", "", "", 0, 0.01)

	// A bad bearer token on a public endpoint degrades to anonymous.
	recorder := ts.do(t, http.MethodGet, "/within_radius?lat=0&lon=0", "garbage", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	require.EqualValues(t, 1, payload["count"])
}
