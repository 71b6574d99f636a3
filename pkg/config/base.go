// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/logger"
)

// ErrReadOnlyMode is returned for write operations while read-only mode is on.
var ErrReadOnlyMode = errors.New("read-only mode")

// Policy holds the process-wide operation policy flags.
type Policy struct {
	// ReadOnly disables every write operation.
	ReadOnly bool

	// EnabledTools, when non-empty, is the allowlist of exposed tools.
	EnabledTools []string
}

// IsToolEnabled reports whether the named tool may be exposed.
func (p Policy) IsToolEnabled(name string) bool {
	if len(p.EnabledTools) == 0 {
		return true
	}
	return slices.Contains(p.EnabledTools, name)
}

// CheckWrite returns an error naming action when read-only mode is on.
func (p Policy) CheckWrite(action string) error {
	if !p.ReadOnly {
		return nil
	}
	return fmt.Errorf("Cannot %s in read-only mode: %w", action, ErrReadOnlyMode) //nolint:staticcheck // user-facing message
}

func (p Policy) clone() Policy {
	p.EnabledTools = slices.Clone(p.EnabledTools)
	return p
}

// ParseToolList splits a comma separated tool list, dropping empty entries.
func ParseToolList(s string) []string {
	var tools []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			tools = append(tools, name)
		}
	}
	return tools
}

// BaseContext is the process-wide configuration loaded once at startup.
//
// It is never written after construction. Accessors hand out deep copies so
// no caller can reach the stored configs.
type BaseContext struct {
	services map[atlassian.Service]*ServiceConfig
	problems map[atlassian.Service]error
	policy   Policy
}

// NewBaseContext builds a BaseContext from already validated service
// configs. Nil configs are skipped. The configs are copied.
func NewBaseContext(policy Policy, configs ...*ServiceConfig) (*BaseContext, error) {
	b := &BaseContext{
		services: make(map[atlassian.Service]*ServiceConfig),
		problems: make(map[atlassian.Service]error),
		policy:   policy.clone(),
	}
	for _, c := range configs {
		if c == nil {
			continue
		}
		if !c.Service.Valid() {
			return nil, fmt.Errorf("unknown service %q in base config", c.Service)
		}
		if _, dup := b.services[c.Service]; dup {
			return nil, fmt.Errorf("duplicate base config for %s", c.Service)
		}
		cp, err := c.Clone()
		if err != nil {
			return nil, err
		}
		b.services[c.Service] = cp
	}
	return b, nil
}

// ServiceConfig returns a private copy of the base config for s.
func (b *BaseContext) ServiceConfig(s atlassian.Service) (*ServiceConfig, bool) {
	c, ok := b.services[s]
	if !ok {
		return nil, false
	}
	cp, err := c.Clone()
	if err != nil {
		logger.Errorf("failed to copy %s base config: %v", s, err)
		return nil, false
	}
	return cp, true
}

// Available lists the services that have a base config, in stable order.
func (b *BaseContext) Available() []atlassian.Service {
	var out []atlassian.Service
	for _, s := range atlassian.Services {
		if _, ok := b.services[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Problem returns why s has no base config, if it was configured at all.
func (b *BaseContext) Problem(s atlassian.Service) error {
	return b.problems[s]
}

// Policy returns a copy of the policy flags.
func (b *BaseContext) Policy() Policy {
	return b.policy.clone()
}

// WithPolicy returns a new BaseContext sharing the service configs but with
// a different policy. Intended for startup, before the context is published.
func (b *BaseContext) WithPolicy(p Policy) *BaseContext {
	return &BaseContext{
		services: b.services,
		problems: b.problems,
		policy:   p.clone(),
	}
}
