package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brixsport/go-auth-client/session"
	"github.com/brixsport/go-auth-client/transport"
)

const (
	testEmail    = "jane@campus.edu"
	testPassword = "password123"
)

type authServer struct {
	loginStatus    int
	refreshStatus  int
	validateStatus int
	logoutStatus   int

	lastLoginBody   map[string]string
	lastRefreshBody map[string]string
	lastBearer      string
}

func newAuthServer(t *testing.T) (*authServer, *transport.HTTPTransport) {
	t.Helper()

	as := &authServer{
		loginStatus:    http.StatusOK,
		refreshStatus:  http.StatusOK,
		validateStatus: http.StatusOK,
		logoutStatus:   http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&as.lastLoginBody)
		if as.loginStatus != http.StatusOK {
			w.WriteHeader(as.loginStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"accessToken":  "access-1",
			"refreshToken": "refresh-1",
			"user":         &session.UserProfile{ID: "user-1", Email: testEmail, Role: session.RoleLogger},
		})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&as.lastRefreshBody)
		if as.refreshStatus != http.StatusOK {
			w.WriteHeader(as.refreshStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessToken":  "access-2",
			"refreshToken": "refresh-2",
		})
	})
	mux.HandleFunc("GET /auth/validate", func(w http.ResponseWriter, r *http.Request) {
		as.lastBearer = r.Header.Get("Authorization")
		if as.validateStatus != http.StatusOK {
			w.WriteHeader(as.validateStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"user": &session.UserProfile{ID: "user-1", Email: testEmail, Role: session.RoleLogger},
		})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		as.lastBearer = r.Header.Get("Authorization")
		w.WriteHeader(as.logoutStatus)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return as, transport.NewHTTPTransport(server.URL)
}

func TestLoginSuccess(t *testing.T) {
	as, tr := newAuthServer(t)

	sess, err := tr.Login(context.Background(), transport.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, "access-1", sess.AccessToken)
	require.Equal(t, "refresh-1", sess.RefreshToken)
	require.Equal(t, "user-1", sess.User.ID)
	require.Equal(t, testEmail, as.lastLoginBody["email"])
	require.Equal(t, testPassword, as.lastLoginBody["password"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	as, tr := newAuthServer(t)
	as.loginStatus = http.StatusUnauthorized

	_, err := tr.Login(context.Background(), transport.Credentials{Email: testEmail, Password: "wrong"})
	require.ErrorIs(t, err, transport.InvalidCredentialsErr)
}

func TestLoginServerErrorIsNetwork(t *testing.T) {
	as, tr := newAuthServer(t)
	as.loginStatus = http.StatusInternalServerError

	_, err := tr.Login(context.Background(), transport.Credentials{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, transport.NetworkErr)
}

func TestRefreshSuccess(t *testing.T) {
	as, tr := newAuthServer(t)

	pair, err := tr.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "access-2", pair.AccessToken)
	require.Equal(t, "refresh-2", pair.RefreshToken)
	require.Equal(t, "refresh-1", as.lastRefreshBody["refreshToken"])
}

func TestRefreshRejected(t *testing.T) {
	as, tr := newAuthServer(t)
	as.refreshStatus = http.StatusUnauthorized

	_, err := tr.Refresh(context.Background(), "refresh-1")
	require.ErrorIs(t, err, transport.RefreshRejectedErr)
}

func TestValidateSuccessSendsBearer(t *testing.T) {
	as, tr := newAuthServer(t)

	profile, err := tr.Validate(context.Background(), "access-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", profile.ID)
	require.Equal(t, "Bearer access-1", as.lastBearer)
}

func TestValidateUnauthorized(t *testing.T) {
	as, tr := newAuthServer(t)
	as.validateStatus = http.StatusUnauthorized

	_, err := tr.Validate(context.Background(), "access-1")
	require.ErrorIs(t, err, transport.UnauthorizedErr)
}

func TestLogoutBestEffort(t *testing.T) {
	as, tr := newAuthServer(t)

	require.NoError(t, tr.Logout(context.Background(), "access-1", "refresh-1"))
	require.Equal(t, "Bearer access-1", as.lastBearer)

	as.logoutStatus = http.StatusInternalServerError
	err := tr.Logout(context.Background(), "access-1", "refresh-1")
	require.ErrorIs(t, err, transport.NetworkErr)
}

func TestUnreachableServerIsNetwork(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	serverURL := server.URL
	server.Close()

	tr := transport.NewHTTPTransport(serverURL)

	_, err := tr.Login(context.Background(), transport.Credentials{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, transport.NetworkErr)

	_, err = tr.Refresh(context.Background(), "refresh-1")
	require.ErrorIs(t, err, transport.NetworkErr)

	_, err = tr.Validate(context.Background(), "access-1")
	require.ErrorIs(t, err, transport.NetworkErr)
}
