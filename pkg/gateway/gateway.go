// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gateway resolves the credential of every inbound operation into a
// validated, ready-to-use handle for one Atlassian service.
//
// Operations that carry their own credentials get a handle built from an
// isolated copy of the base configuration, confirmed against the service
// and cached for the remainder of that operation only. Operations without
// credentials share one lazily created process-global handle whose OAuth
// token is refreshed under a single-writer discipline.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/atlassian/client"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/bundle"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/oauth"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/resolver"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
	"github.com/yanintorres/mcp-atlassian/pkg/config"
	gwerrors "github.com/yanintorres/mcp-atlassian/pkg/errors"
	"github.com/yanintorres/mcp-atlassian/pkg/logger"
	"github.com/yanintorres/mcp-atlassian/pkg/tenant"
)

const (
	// DefaultIdentityRate is the sustained rate of identity-confirmation
	// calls per second across all operations.
	DefaultIdentityRate = 10

	// DefaultIdentityBurst is the burst size for identity calls.
	DefaultIdentityBurst = 20

	// globalCreateTimeout bounds the shared creation of a global handle.
	globalCreateTimeout = 60 * time.Second
)

var errNoGlobalCredential = errors.New("no global credential configured, supply per-request credentials")

// Handle is a credential bound to a confirmed upstream identity.
type Handle struct {
	Service  atlassian.Service
	Config   *config.ServiceConfig
	Identity atlassian.Identity
	Client   *client.Client

	// Global is set for handles built from the process-wide credential.
	Global bool
}

// Summary is the secret-free view of a handle returned to callers.
type Summary struct {
	Service     atlassian.Service `json:"service"`
	AccountID   string            `json:"account_id"`
	Email       string            `json:"email,omitempty"`
	DisplayName string            `json:"display_name,omitempty"`
	AuthType    types.AuthType    `json:"auth_type"`
	Global      bool              `json:"global"`
}

// Summary returns the secret-free view of h.
func (h *Handle) Summary() Summary {
	return Summary{
		Service:     h.Service,
		AccountID:   h.Identity.AccountID,
		Email:       h.Identity.Email,
		DisplayName: h.Identity.DisplayName,
		AuthType:    h.Config.AuthType(),
		Global:      h.Global,
	}
}

// Gateway resolves operation credentials into handles.
type Gateway struct {
	base      *config.BaseContext
	manager   *oauth.Manager
	managers  map[atlassian.Service]*oauth.Manager
	persister oauth.TokenPersister
	validator Validator

	group   singleflight.Group
	mu      sync.RWMutex
	globals map[atlassian.Service]*globalHandle
}

// Option configures a Gateway.
type Option func(*gatewayOptions)

type gatewayOptions struct {
	manager    *oauth.Manager
	persister  oauth.TokenPersister
	validator  Validator
	limiter    *rate.Limiter
	httpClient *http.Client
}

// WithManager sets the OAuth lifecycle manager.
func WithManager(m *oauth.Manager) Option {
	return func(o *gatewayOptions) {
		o.manager = m
	}
}

// WithPersister stores refreshed global tokens with p. Per-operation tokens
// are never persisted.
func WithPersister(p oauth.TokenPersister) Option {
	return func(o *gatewayOptions) {
		o.persister = p
	}
}

// WithValidator replaces the identity-call validator.
func WithValidator(v Validator) Option {
	return func(o *gatewayOptions) {
		o.validator = v
	}
}

// WithRateLimiter throttles identity calls through l.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(o *gatewayOptions) {
		o.limiter = l
	}
}

// WithHTTPClient makes the default validator use c for identity calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *gatewayOptions) {
		o.httpClient = c
	}
}

// New returns a Gateway over base.
func New(base *config.BaseContext, opts ...Option) (*Gateway, error) {
	if base == nil {
		return nil, gwerrors.NewConfigurationError("no base context", nil)
	}
	var o gatewayOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.manager == nil {
		o.manager = oauth.NewManager()
	}
	if o.validator == nil {
		if o.limiter == nil {
			o.limiter = rate.NewLimiter(DefaultIdentityRate, DefaultIdentityBurst)
		}
		o.validator = &identityValidator{limiter: o.limiter, httpClient: o.httpClient}
	}

	// Token exchanges go through the same proxies as the service itself.
	managers := make(map[atlassian.Service]*oauth.Manager)
	for _, svc := range base.Available() {
		cfg, ok := base.ServiceConfig(svc)
		if !ok {
			continue
		}
		c, err := oauth.NewExchangeClient(cfg.Proxy.HTTPProxy, cfg.Proxy.HTTPSProxy, cfg.Proxy.SOCKSProxy, cfg.Proxy.NoProxy)
		if err != nil {
			return nil, gwerrors.NewConfigurationError("failed to create token exchange client", err).WithService(string(svc))
		}
		managers[svc] = o.manager.WithDefaultHTTPClient(c)
	}

	return &Gateway{
		base:      base,
		manager:   o.manager,
		managers:  managers,
		persister: o.persister,
		validator: o.validator,
		globals:   make(map[atlassian.Service]*globalHandle),
	}, nil
}

// Base returns the process base context.
func (g *Gateway) Base() *config.BaseContext {
	return g.base
}

// Resolve returns the handle for svc given the operation's transport
// metadata. Metadata without an Authorization field selects the global
// credential. A malformed Authorization field is a validation error and
// never falls back to the global credential.
func (g *Gateway) Resolve(ctx context.Context, svc atlassian.Service, md http.Header) (*Handle, error) {
	if !svc.Valid() {
		return nil, gwerrors.NewValidationError(fmt.Sprintf("unknown service %q", svc), nil)
	}
	b, err := bundle.Parse(md)
	if err != nil {
		return nil, withService(err, svc)
	}
	return g.ResolveBundle(ctx, svc, b)
}

// ResolveBundle is Resolve for an already parsed bundle. A nil bundle
// selects the global credential.
func (g *Gateway) ResolveBundle(ctx context.Context, svc atlassian.Service, b *bundle.Bundle) (*Handle, error) {
	if b == nil {
		return g.resolveGlobal(ctx, svc)
	}
	if strings.TrimSpace(b.Token) == "" {
		return nil, gwerrors.NewValidationError("User Atlassian token found in state but is empty", nil).
			WithService(string(svc))
	}

	sc := scopeFrom(ctx)
	if sc != nil {
		if h := sc.get(svc); h != nil {
			return h, nil
		}
	}

	h, err := g.resolveUser(ctx, svc, b)
	if err != nil {
		return nil, err
	}
	if sc != nil {
		sc.put(svc, h)
	}
	return h, nil
}

func (g *Gateway) resolveUser(ctx context.Context, svc atlassian.Service, b *bundle.Bundle) (*Handle, error) {
	base, _ := g.base.ServiceConfig(svc)

	in, err := tenant.Inputs(svc, base, tenant.Credentials{
		AuthType: b.AuthType(),
		Token:    b.Token,
		TenantID: b.TenantID,
	})
	if err != nil {
		return nil, err
	}
	v, err := resolver.Resolve(svc, in)
	if err != nil {
		return nil, withService(err, svc)
	}
	cfg, err := tenant.Derive(svc, base, v)
	if err != nil {
		return nil, err
	}

	logger.Debugw("resolving per-operation credential",
		"service", string(svc), "auth_type", string(cfg.AuthType()), "token", types.Mask(b.Token))

	msg := fmt.Sprintf("Invalid user %s token or configuration", svc.DisplayName())
	if o, ok := cfg.Auth.(*types.OAuth); ok {
		if err := g.managerFor(svc).EnsureValid(ctx, o); err != nil {
			return nil, invalidCredential(svc, msg, err)
		}
	}

	c, id, err := g.validator.Validate(ctx, cfg, nil)
	if err != nil {
		return nil, invalidCredential(svc, msg, err)
	}

	identity := *id
	if b.Email != "" {
		identity.Email = b.Email
	}
	return &Handle{
		Service:  svc,
		Config:   cfg,
		Identity: identity,
		Client:   c,
	}, nil
}

func (g *Gateway) resolveGlobal(ctx context.Context, svc atlassian.Service) (*Handle, error) {
	gh, err := g.global(ctx, svc)
	if err != nil {
		return nil, err
	}
	if err := gh.ensureValid(ctx); err != nil {
		return nil, err
	}
	return gh.handle()
}

// global returns the process-global handle for svc, creating and validating
// it on first use. Concurrent first callers share one creation, which runs
// detached from any single caller's cancellation and is bounded by
// globalCreateTimeout instead. A caller whose context ends stops waiting
// without affecting the others. Failed creations are not remembered.
func (g *Gateway) global(ctx context.Context, svc atlassian.Service) (*globalHandle, error) {
	if gh := g.loadGlobal(svc); gh != nil {
		return gh, nil
	}

	ch := g.group.DoChan(string(svc), func() (interface{}, error) {
		// Double-check after winning the flight.
		if gh := g.loadGlobal(svc); gh != nil {
			return gh, nil
		}
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), globalCreateTimeout)
		defer cancel()

		gh, err := g.createGlobal(flightCtx, svc)
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.globals[svc] = gh
		g.mu.Unlock()
		return gh, nil
	})

	select {
	case <-ctx.Done():
		return nil, gwerrors.FromContext(ctx, "waiting for global credential cancelled").WithService(string(svc))
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*globalHandle), nil
	}
}

// managerFor returns the OAuth manager whose token exchanges honour the
// proxy settings of svc.
func (g *Gateway) managerFor(svc atlassian.Service) *oauth.Manager {
	if m, ok := g.managers[svc]; ok {
		return m
	}
	return g.manager
}

func (g *Gateway) loadGlobal(svc atlassian.Service) *globalHandle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.globals[svc]
}

func (g *Gateway) createGlobal(ctx context.Context, svc atlassian.Service) (*globalHandle, error) {
	notAvailable := fmt.Sprintf("%s client (fetcher) not available", svc.DisplayName())

	base, ok := g.base.ServiceConfig(svc)
	if !ok {
		return nil, gwerrors.NewConfigurationError(notAvailable, g.base.Problem(svc)).WithService(string(svc))
	}
	if !hasGlobalCredential(base.Auth) {
		return nil, gwerrors.NewConfigurationError(notAvailable,
			errNoGlobalCredential).WithService(string(svc))
	}

	manager := g.managerFor(svc)
	if g.persister != nil {
		manager = manager.WithPersister(g.persister)
	}
	gh := newGlobalHandle(svc, base, manager)
	if err := gh.ensureValid(ctx); err != nil {
		return nil, err
	}

	cfg, err := gh.cfg.Load().Clone()
	if err != nil {
		return nil, gwerrors.NewConfigurationError("failed to copy global config", err).WithService(string(svc))
	}
	var ts oauth2.TokenSource
	if _, isOAuth := cfg.Auth.(*types.OAuth); isOAuth {
		ts = gh
	}

	msg := fmt.Sprintf("Invalid %s token or configuration", svc.DisplayName())
	c, id, err := g.validator.Validate(ctx, cfg, ts)
	if err != nil {
		return nil, invalidCredential(svc, msg, err)
	}

	gh.client = c
	gh.identity = *id
	logger.Infow("validated global credential",
		"service", string(svc), "auth_type", string(cfg.AuthType()), "account_id", id.AccountID)
	return gh, nil
}

// hasGlobalCredential reports whether v can authenticate without any
// per-operation input. A minimal OAuth base carries only a tenant id.
func hasGlobalCredential(v types.Variant) bool {
	switch a := v.(type) {
	case nil:
		return false
	case *types.OAuth:
		return a.AccessToken != "" || a.RefreshToken != ""
	default:
		return true
	}
}

// ServiceStatus describes one service for status reporting. It never
// carries secrets.
type ServiceStatus struct {
	Service         atlassian.Service `json:"service"`
	Available       bool              `json:"available"`
	URL             string            `json:"url,omitempty"`
	AuthType        types.AuthType    `json:"auth_type,omitempty"`
	IsCloud         bool              `json:"is_cloud"`
	GlobalValidated bool              `json:"global_validated"`
	Problem         string            `json:"problem,omitempty"`
}

// Status reports the base configuration state of every service.
func (g *Gateway) Status() []ServiceStatus {
	out := make([]ServiceStatus, 0, len(atlassian.Services))
	for _, svc := range atlassian.Services {
		st := ServiceStatus{Service: svc}
		if cfg, ok := g.base.ServiceConfig(svc); ok {
			st.Available = true
			st.URL = cfg.BaseURL
			st.AuthType = cfg.AuthType()
			st.IsCloud = cfg.IsCloud()
		}
		if err := g.base.Problem(svc); err != nil {
			st.Problem = err.Error()
		}
		st.GlobalValidated = g.loadGlobal(svc) != nil
		out = append(out, st)
	}
	return out
}

// invalidCredential wraps a failed refresh or identity check. Cancellation
// and upstream outages keep their type so callers can tell them apart from
// a rejected credential.
func invalidCredential(svc atlassian.Service, msg string, err error) error {
	switch gwerrors.TypeOf(err) {
	case gwerrors.ErrCancelled:
		return withService(err, svc)
	case gwerrors.ErrUpstream:
		return gwerrors.NewUpstreamError(msg, err).WithService(string(svc))
	case gwerrors.ErrConfiguration:
		return gwerrors.NewConfigurationError(msg, err).WithService(string(svc))
	}
	if gwerrors.IsCancelled(err) {
		return gwerrors.NewCancelledError(msg, err).WithService(string(svc))
	}
	return gwerrors.NewAuthenticationError(msg, err).WithService(string(svc))
}

func withService(err error, svc atlassian.Service) error {
	if e, ok := err.(*gwerrors.Error); ok {
		return e.WithService(string(svc))
	}
	return err
}
