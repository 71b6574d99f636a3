// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth manages the lifetime of Atlassian OAuth 2.0 credentials:
// expiry checks, refresh-token exchange and persistence of refreshed tokens.
package oauth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
	gwerrors "github.com/yanintorres/mcp-atlassian/pkg/errors"
	"github.com/yanintorres/mcp-atlassian/pkg/logger"
	"github.com/yanintorres/mcp-atlassian/pkg/networking"
)

const (
	// DefaultMargin is how long before the real expiry a token is considered
	// expired, so that a refresh finishes before the upstream token lapses.
	DefaultMargin = 300 * time.Second

	// ExchangeTimeout bounds a single refresh-token exchange.
	ExchangeTimeout = 15 * time.Second
)

// TokenPersister is called with the refreshed credential after every
// successful refresh. Failures are logged and never fail the refresh.
type TokenPersister func(ctx context.Context, o *types.OAuth) error

// Manager computes token expiry and performs refresh-token exchanges.
//
// A Manager holds no token state of its own and is safe for concurrent use.
// Callers are responsible for not refreshing the same *types.OAuth from two
// goroutines at once.
type Manager struct {
	margin    time.Duration
	tokenURL  string
	client    *http.Client
	clientSet bool
	now       func() time.Time
	persister TokenPersister
}

// Option configures a Manager.
type Option func(*Manager)

// WithMargin overrides DefaultMargin.
func WithMargin(d time.Duration) Option {
	return func(m *Manager) {
		m.margin = d
	}
}

// WithTokenURL overrides the Atlassian token endpoint.
func WithTokenURL(u string) Option {
	return func(m *Manager) {
		m.tokenURL = u
	}
}

// WithHTTPClient sets the client used for the token exchange. It takes
// precedence over any client later supplied with WithDefaultHTTPClient.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.client = c
		m.clientSet = c != nil
	}
}

// WithClock replaces time.Now for expiry computation.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithPersister sets the callback invoked after each successful refresh.
func WithPersister(p TokenPersister) Option {
	return func(m *Manager) {
		m.persister = p
	}
}

// NewManager returns a Manager with the given options applied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		margin:   DefaultMargin,
		tokenURL: atlassian.TokenURL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.client == nil {
		m.client = defaultExchangeClient()
	}
	return m
}

// NewExchangeClient builds a client for the token endpoint that goes
// through the given proxies. Empty proxies defer to the environment.
func NewExchangeClient(httpProxy, httpsProxy, socksProxy, noProxy string) (*http.Client, error) {
	return networking.NewHttpClientBuilder().
		WithTimeout(ExchangeTimeout).
		WithProxy(httpProxy, httpsProxy, socksProxy, noProxy).
		Build()
}

func defaultExchangeClient() *http.Client {
	c, err := NewExchangeClient("", "", "", "")
	if err != nil {
		// Unreachable without explicit proxies.
		return &http.Client{Timeout: ExchangeTimeout}
	}
	return c
}

// WithPersister returns a copy of m that persists refreshed tokens with p.
func (m *Manager) WithPersister(p TokenPersister) *Manager {
	cp := *m
	cp.persister = p
	return &cp
}

// WithDefaultHTTPClient returns a copy of m that exchanges tokens with c,
// unless a client was fixed with the WithHTTPClient option.
func (m *Manager) WithDefaultHTTPClient(c *http.Client) *Manager {
	if m.clientSet || c == nil {
		return m
	}
	cp := *m
	cp.client = c
	return &cp
}

// IsExpired reports whether o must be refreshed before use. An unknown
// expiry counts as expired.
func (m *Manager) IsExpired(o *types.OAuth) bool {
	if o == nil || o.ExpiresAt.IsZero() {
		return true
	}
	return !m.now().Add(m.margin).Before(o.ExpiresAt)
}

// NeedsRefresh reports whether EnsureValid would attempt a refresh or fail
// for o. It does no I/O and is cheap enough for a lock-free fast path.
func (m *Manager) NeedsRefresh(o *types.OAuth) bool {
	if o == nil || (o.RefreshToken == "" && o.ExpiresAt.IsZero()) {
		return false
	}
	return m.IsExpired(o)
}

// EnsureValid refreshes o in place when it is expired and can be refreshed.
//
// A credential with neither a refresh token nor an expiry is used as is;
// an upstream rejection surfaces later from the identity check. On failure
// the stale token fields are left untouched.
func (m *Manager) EnsureValid(ctx context.Context, o *types.OAuth) error {
	if o == nil {
		return gwerrors.NewConfigurationError("no OAuth credentials to validate", nil)
	}
	if !m.NeedsRefresh(o) {
		return nil
	}
	if !o.Refreshable() {
		if o.RefreshToken == "" {
			return gwerrors.NewAuthenticationError("access token expired and no refresh token is available", nil)
		}
		return gwerrors.NewAuthenticationError("cannot refresh access token without a client id and secret", nil)
	}
	if err := gwerrors.FromContext(ctx, "token refresh cancelled"); err != nil {
		return err
	}

	logger.Debugw("refreshing OAuth access token",
		"client_id", o.ClientID, "expires_at", o.ExpiresAt, "margin", m.margin)

	tok, err := m.exchange(ctx, o)
	if err != nil {
		return classifyRefreshError(ctx, err)
	}
	if tok.AccessToken == "" {
		return gwerrors.NewAuthenticationError("token endpoint returned no access token", nil)
	}

	o.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		o.RefreshToken = tok.RefreshToken
	}
	o.ExpiresAt = m.expiry(tok)

	logger.Infow("refreshed OAuth access token",
		"client_id", o.ClientID, "access_token", types.Mask(o.AccessToken), "expires_at", o.ExpiresAt)

	if m.persister != nil {
		if err := m.persister(ctx, o); err != nil {
			logger.Warnf("Failed to persist refreshed OAuth token: %v", err)
		} else {
			logger.Debugf("Successfully persisted refreshed OAuth token")
		}
	}
	return nil
}

func (m *Manager) exchange(ctx context.Context, o *types.OAuth) (*oauth2.Token, error) {
	cfg := &oauth2.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		RedirectURL:  o.RedirectURI,
		Scopes:       strings.Fields(o.Scope),
		Endpoint: oauth2.Endpoint{
			TokenURL:  m.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)

	// An empty access token is never valid, so the source always exchanges.
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: o.RefreshToken}).Token()
}

func (m *Manager) expiry(tok *oauth2.Token) time.Time {
	if tok.ExpiresIn > 0 {
		return m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return tok.Expiry
}

// classifyRefreshError maps a failed exchange onto the error taxonomy.
// Rejections by the token endpoint are authentication errors; outages and
// transport failures are upstream errors the caller may retry.
func classifyRefreshError(ctx context.Context, err error) error {
	if cerr := gwerrors.FromContext(ctx, "token refresh cancelled"); cerr != nil {
		return cerr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return gwerrors.NewCancelledError("token refresh cancelled", err)
	}

	var r *oauth2.RetrieveError
	if errors.As(err, &r) {
		if r.ErrorCode == "temporarily_unavailable" {
			return gwerrors.NewUpstreamError("token endpoint unavailable", err)
		}
		if isAuthenticationError(r) {
			return gwerrors.NewAuthenticationError("token refresh rejected", err)
		}
		if r.Response != nil && r.Response.StatusCode >= http.StatusInternalServerError {
			return gwerrors.NewUpstreamError("token endpoint unavailable", err)
		}
		return gwerrors.NewAuthenticationError("token refresh failed", err)
	}
	return gwerrors.NewUpstreamError("token refresh failed", err)
}

func isAuthenticationError(r *oauth2.RetrieveError) bool {
	if r.Response != nil {
		switch r.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusBadRequest:
			return true
		}
	}
	switch r.ErrorCode {
	case "invalid_grant", "invalid_client", "invalid_token", "unauthorized_client":
		return true
	}
	body := strings.ToLower(string(r.Body))
	return strings.Contains(body, "invalid_grant") ||
		strings.Contains(body, "invalid_client") ||
		strings.Contains(body, "invalid_token")
}
