package lms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/learningops/lmsync/internal/config"
)

// Token is a cached OAuth bearer token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// TokenManager acquires and caches an OAuth client-credentials token,
// refreshing proactively before expiry. Refreshes are serialized so that
// concurrent pipelines hitting an expired cache perform a single HTTP call.
type TokenManager struct {
	cfg        config.LMSConfig
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	token *Token
}

// NewTokenManager creates a token manager with an empty cache.
func NewTokenManager(cfg config.LMSConfig, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
		now:    time.Now,
	}
}

// tokenResponse is the token endpoint's success body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a bearer token valid for at least the configured safety
// margin, refreshing synchronously when the cached one is too close to expiry.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != nil && m.now().Before(m.token.ExpiresAt.Add(-m.cfg.TokenSafetyMargin)) {
		return m.token.AccessToken, nil
	}

	token, err := m.refresh(ctx)
	if err != nil {
		return "", err
	}
	m.token = token

	return token.AccessToken, nil
}

// Clear invalidates the cached token unconditionally. Called by the client
// after a downstream 401.
func (m *TokenManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
}

// refresh performs one token-endpoint round trip. Callers hold m.mu. Retry
// policy deliberately lives in the client, not here.
func (m *TokenManager) refresh(ctx context.Context) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", m.cfg.Scope)

	endpoint := strings.TrimRight(m.cfg.BaseURL, "/") + "/oauth/token"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Msg: fmt.Sprintf("build token request: %v", err)}
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(m.cfg.ClientID + ":" + m.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Msg: fmt.Sprintf("token request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthError{Status: resp.StatusCode, Msg: fmt.Sprintf("read token response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AuthError{Status: resp.StatusCode, Msg: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &AuthError{Status: resp.StatusCode, Msg: fmt.Sprintf("malformed token response: %v", err)}
	}

	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return nil, &AuthError{Status: resp.StatusCode, Msg: "malformed token response: missing access_token or expires_in"}
	}

	token := &Token{
		AccessToken: tr.AccessToken,
		ExpiresAt:   m.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}

	m.logger.Info("oauth token refreshed", "expires_at", token.ExpiresAt)

	return token, nil
}
