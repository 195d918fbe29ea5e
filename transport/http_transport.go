package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/brixsport/go-auth-client/session"
)

// DefaultHTTPTimeout bounds every auth service request; the scheduler
// treats no-response-within-the-window identically to a network failure.
const DefaultHTTPTimeout = 30 * time.Second

const (
	loginPath    = "/auth/login"
	refreshPath  = "/auth/refresh"
	validatePath = "/auth/validate"
	logoutPath   = "/auth/logout"
)

var _ Transport = (*HTTPTransport)(nil)

// HTTPTransport implements the auth service wire contract over HTTP:
//
//	POST /auth/login    {email, password}        -> 200 {accessToken, refreshToken, user} | 401
//	POST /auth/refresh  {refreshToken}           -> 200 {accessToken, refreshToken}       | 401
//	GET  /auth/validate (bearer accessToken)     -> 200 {user}                            | 401
//	POST /auth/logout   (bearer) {refreshToken}  -> 200 (best-effort)
type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type HTTPTransportOption func(*HTTPTransport)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

func NewHTTPTransport(baseURL string, options ...HTTPTransportOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

type loginResponse struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	User         *session.UserProfile `json:"user"`
}

func (t *HTTPTransport) Login(ctx context.Context, creds Credentials) (*session.Session, error) {
	body, status, err := t.postJSON(ctx, loginPath, "", creds)
	if err != nil {
		return nil, errors.Wrapf(NetworkErr, "[HTTPTransport.Login] %v", err)
	}
	if status == http.StatusUnauthorized {
		return nil, errors.Wrap(InvalidCredentialsErr, "[HTTPTransport.Login]")
	}
	if status != http.StatusOK {
		return nil, errors.Wrapf(NetworkErr, "[HTTPTransport.Login] unexpected status %d", status)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(NetworkErr, "[HTTPTransport.Login] parse response: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, errors.Wrap(NetworkErr, "[HTTPTransport.Login] incomplete token pair in response")
	}

	return &session.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	}, nil
}

func (t *HTTPTransport) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	payload := struct {
		RefreshToken string `json:"refreshToken"`
	}{RefreshToken: refreshToken}

	body, status, err := t.postJSON(ctx, refreshPath, "", payload)
	if err != nil {
		return nil, errors.Wrapf(NetworkErr, "[HTTPTransport.Refresh] %v", err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, errors.Wrap(RefreshRejectedErr, "[HTTPTransport.Refresh]")
	}
	if status != http.StatusOK {
		return nil, errors.Wrapf(NetworkErr, "[HTTPTransport.Refresh] unexpected status %d", status)
	}

	var pair TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return nil, errors.Wrapf(NetworkErr, "[HTTPTransport.Refresh] parse response: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, errors.Wrap(NetworkErr, "[HTTPTransport.Refresh] incomplete token pair in response")
	}
	return &pair, nil
}

func (t *HTTPTransport) Validate(ctx context.Context, accessToken string) (*session.UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+validatePath, nil)
	if err != nil {
		return nil, errors.Wrapf(NetworkErr, "[HTTPTransport.Validate] create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, status, err := t.do(req)
	if err != nil {
		return nil, errors.Wrapf(NetworkErr, "[HTTPTransport.Validate] %v", err)
	}
	if status == http.StatusUnauthorized {
		return nil, errors.Wrap(UnauthorizedErr, "[HTTPTransport.Validate]")
	}
	if status != http.StatusOK {
		return nil, errors.Wrapf(NetworkErr, "[HTTPTransport.Validate] unexpected status %d", status)
	}

	var resp struct {
		User *session.UserProfile `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(NetworkErr, "[HTTPTransport.Validate] parse response: %v", err)
	}
	if resp.User == nil || resp.User.ID == "" {
		return nil, errors.Wrap(NetworkErr, "[HTTPTransport.Validate] missing user in response")
	}
	return resp.User, nil
}

func (t *HTTPTransport) Logout(ctx context.Context, accessToken, refreshToken string) error {
	payload := struct {
		RefreshToken string `json:"refreshToken"`
	}{RefreshToken: refreshToken}

	_, status, err := t.postJSON(ctx, logoutPath, accessToken, payload)
	if err != nil {
		return errors.Wrapf(NetworkErr, "[HTTPTransport.Logout] %v", err)
	}
	if status != http.StatusOK {
		return errors.Wrapf(NetworkErr, "[HTTPTransport.Logout] unexpected status %d", status)
	}
	return nil
}

func (t *HTTPTransport) postJSON(ctx context.Context, path, bearer string, payload interface{}) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return t.do(req)
}

func (t *HTTPTransport) do(req *http.Request) ([]byte, int, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "read response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		t.logger.Debug().
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Msg("auth service request failed")
	}
	return body, resp.StatusCode, nil
}
