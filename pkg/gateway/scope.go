// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"sync"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
)

// ScopeContextKey is the key used to store the per-operation handle cache.
type ScopeContextKey struct{}

type scope struct {
	mu      sync.Mutex
	handles map[atlassian.Service]*Handle
}

// WithScope returns a context carrying an empty handle cache for one
// operation. Handles resolved with the returned context are reused for the
// rest of that operation and disappear with it. A context that already has a
// scope is returned unchanged.
func WithScope(ctx context.Context) context.Context {
	if scopeFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, ScopeContextKey{}, &scope{
		handles: make(map[atlassian.Service]*Handle),
	})
}

func scopeFrom(ctx context.Context) *scope {
	s, _ := ctx.Value(ScopeContextKey{}).(*scope)
	return s
}

func (s *scope) get(svc atlassian.Service) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[svc]
}

func (s *scope) put(svc atlassian.Service, h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[svc] = h
}
