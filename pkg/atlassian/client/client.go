// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client is the authenticated HTTP client for one Atlassian service.
// It only implements the identity-confirmation call; the CRUD surface builds
// on HTTPClient and BaseURL.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
	"github.com/yanintorres/mcp-atlassian/pkg/config"
	gwerrors "github.com/yanintorres/mcp-atlassian/pkg/errors"
	"github.com/yanintorres/mcp-atlassian/pkg/logger"
	"github.com/yanintorres/mcp-atlassian/pkg/networking"
	"github.com/yanintorres/mcp-atlassian/pkg/versions"
)

// identityResponseLimit bounds the "who am I" body.
const identityResponseLimit = 64 * 1024

// Client talks to one Atlassian service with one credential.
type Client struct {
	cfg     *config.ServiceConfig
	http    *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*options)

type options struct {
	base        *http.Client
	tokenSource oauth2.TokenSource
	limiter     *rate.Limiter
}

// WithHTTPClient uses c as the transport base instead of building one from
// the service config. Intended for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.base = c
	}
}

// WithTokenSource supplies OAuth tokens at request time instead of the
// access token captured in the config. The process-global handle uses this
// so refreshed tokens are picked up without rebuilding the client.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *options) {
		o.tokenSource = ts
	}
}

// WithRateLimiter throttles identity calls through l.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(o *options) {
		o.limiter = l
	}
}

// New returns a client for cfg. cfg is owned by the client afterwards.
func New(cfg *config.ServiceConfig, opts ...Option) (*Client, error) {
	if cfg == nil || cfg.Auth == nil {
		return nil, gwerrors.NewConfigurationError("no credentials configured", nil)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	base := o.base
	if base == nil {
		headers := map[string]string{"User-Agent": versions.UserAgent()}
		maps.Copy(headers, cfg.ExtraHeaders)

		var err error
		base, err = networking.NewHttpClientBuilder().
			WithTLSVerify(cfg.TLSVerify).
			WithProxy(cfg.Proxy.HTTPProxy, cfg.Proxy.HTTPSProxy, cfg.Proxy.SOCKSProxy, cfg.Proxy.NoProxy).
			WithHeaders(headers).
			Build()
		if err != nil {
			return nil, gwerrors.NewConfigurationError("failed to create HTTP client", err).WithService(string(cfg.Service))
		}
	}

	transport, err := authTransport(cfg.Auth, base.Transport, o.tokenSource)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   base.Timeout,
		},
		limiter: o.limiter,
	}, nil
}

// authTransport wraps base with the credential of v.
func authTransport(v types.Variant, base http.RoundTripper, ts oauth2.TokenSource) (http.RoundTripper, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	switch a := v.(type) {
	case *types.Basic:
		return &basicAuthTransport{base: base, username: a.Username, secret: a.Secret}, nil
	case *types.PersonalToken:
		return &oauth2.Transport{Base: base, Source: staticSource(a.Token)}, nil
	case *types.OAuth:
		if ts == nil {
			ts = staticSource(a.AccessToken)
		}
		return &oauth2.Transport{Base: base, Source: ts}, nil
	case *types.BareToken:
		return &oauth2.Transport{Base: base, Source: staticSource(a.AccessToken)}, nil
	default:
		return nil, gwerrors.NewConfigurationError(fmt.Sprintf("unsupported auth type %q", v.Type()), nil)
	}
}

func staticSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

type basicAuthTransport struct {
	base     http.RoundTripper
	username string
	secret   string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	newReq := req.Clone(req.Context())
	newReq.SetBasicAuth(t.username, t.secret)
	return t.base.RoundTrip(newReq)
}

// Config returns the service config the client was built from.
func (c *Client) Config() *config.ServiceConfig {
	return c.cfg
}

// HTTPClient returns the authenticated HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// BaseURL returns the URL REST paths are appended to.
func (c *Client) BaseURL() string {
	return strings.TrimRight(c.cfg.APIBaseURL(), "/")
}

// Myself performs the identity-confirmation call.
//
// A rejected credential, a non-JSON body or a body without an account id is
// an authentication error. Outages are upstream errors.
func (c *Client) Myself(ctx context.Context) (*atlassian.Identity, error) {
	svc := string(c.cfg.Service)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if cerr := gwerrors.FromContext(ctx, "identity check cancelled"); cerr != nil {
				return nil, cerr.WithService(svc)
			}
			return nil, gwerrors.NewUpstreamError("rate limit wait failed", err).WithService(svc)
		}
	}

	endpoint := c.BaseURL() + atlassian.IdentityPath(c.cfg.Service, c.cfg.BaseURL, c.cfg.ViaGateway())
	logger.Debugw("confirming identity", "service", svc, "url", endpoint, "auth_type", string(c.cfg.AuthType()))

	result, err := networking.FetchJSON[json.RawMessage](ctx, c.http, endpoint,
		networking.WithHeader("Cache-Control", "no-cache"),
		networking.WithMaxResponseSize(identityResponseLimit))
	if err != nil {
		return nil, classifyIdentityError(ctx, err).WithService(svc)
	}

	id, err := atlassian.ParseIdentity(result.Data)
	if err != nil {
		return nil, gwerrors.NewAuthenticationError("identity response rejected", err).WithService(svc)
	}
	return id, nil
}

func classifyIdentityError(ctx context.Context, err error) *gwerrors.Error {
	if cerr := gwerrors.FromContext(ctx, "identity check cancelled"); cerr != nil {
		return cerr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return gwerrors.NewCancelledError("identity check cancelled", err)
	}

	// A failed token source surfaces through the transport.
	var gwErr *gwerrors.Error
	if errors.As(err, &gwErr) {
		return gwErr
	}

	if networking.IsHTTPError(err, 0) {
		status := networking.StatusCode(err)
		msg := fmt.Sprintf("identity endpoint returned status %d", status)
		if status >= http.StatusInternalServerError || networking.IsHTTPError(err, http.StatusTooManyRequests) {
			return gwerrors.NewUpstreamError(msg, err)
		}
		return gwerrors.NewAuthenticationError(msg, err)
	}

	if errors.Is(err, networking.ErrUnexpectedContentType) || errors.Is(err, networking.ErrInvalidJSON) {
		return gwerrors.NewAuthenticationError("identity response rejected", err)
	}
	return gwerrors.NewUpstreamError("identity request failed", err)
}
