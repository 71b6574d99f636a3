// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"sync/atomic"

	"golang.org/x/oauth2"
	"golang.org/x/sync/semaphore"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/atlassian/client"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/oauth"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
	"github.com/yanintorres/mcp-atlassian/pkg/config"
	gwerrors "github.com/yanintorres/mcp-atlassian/pkg/errors"
	"github.com/yanintorres/mcp-atlassian/pkg/logger"
)

// globalHandle is the process-wide handle built from the base credential.
//
// The current config is published through an atomic pointer and never
// written after it is stored; a refresh builds a new config and swaps it in.
// Readers therefore never lock. Refreshes are serialized by a weighted
// semaphore of size one so that waiting for a refresh honours cancellation.
type globalHandle struct {
	svc      atlassian.Service
	manager  *oauth.Manager
	cfg      atomic.Pointer[config.ServiceConfig]
	refresh  *semaphore.Weighted
	client   *client.Client
	identity atlassian.Identity
}

func newGlobalHandle(svc atlassian.Service, base *config.ServiceConfig, m *oauth.Manager) *globalHandle {
	g := &globalHandle{
		svc:     svc,
		manager: m,
		refresh: semaphore.NewWeighted(1),
	}
	g.cfg.Store(base)
	return g
}

// Token implements oauth2.TokenSource over the current config, so the
// upstream client always sends the latest refreshed access token.
func (g *globalHandle) Token() (*oauth2.Token, error) {
	tok := types.AccessToken(g.cfg.Load().Auth)
	if tok == "" {
		return nil, gwerrors.NewAuthenticationError("global access token is empty", nil).WithService(string(g.svc))
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}

// ensureValid refreshes the global OAuth token when it is about to expire.
// Concurrent callers that find it expiring wait for a single refresh.
func (g *globalHandle) ensureValid(ctx context.Context) error {
	if !g.needsRefresh() {
		return nil
	}

	if err := g.refresh.Acquire(ctx, 1); err != nil {
		return gwerrors.NewCancelledError("waiting for token refresh cancelled", err).WithService(string(g.svc))
	}
	defer g.refresh.Release(1)

	// Another caller may have refreshed while we waited.
	if !g.needsRefresh() {
		return nil
	}

	next, err := g.cfg.Load().Clone()
	if err != nil {
		return gwerrors.NewConfigurationError("failed to copy global config", err).WithService(string(g.svc))
	}
	o := next.Auth.(*types.OAuth)
	if err := g.manager.EnsureValid(ctx, o); err != nil {
		logger.Warnw("global token refresh failed", "service", string(g.svc), "error", err)
		return withService(err, g.svc)
	}
	g.cfg.Store(next)
	return nil
}

func (g *globalHandle) needsRefresh() bool {
	o, ok := g.cfg.Load().Auth.(*types.OAuth)
	return ok && g.manager.NeedsRefresh(o)
}

// handle returns a snapshot of the global handle for one caller.
func (g *globalHandle) handle() (*Handle, error) {
	cfg, err := g.cfg.Load().Clone()
	if err != nil {
		return nil, gwerrors.NewConfigurationError("failed to copy global config", err).WithService(string(g.svc))
	}
	return &Handle{
		Service:  g.svc,
		Config:   cfg,
		Identity: g.identity,
		Client:   g.client,
		Global:   true,
	}, nil
}
