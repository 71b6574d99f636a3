// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config holds the per-service configuration and the process-wide
// base context loaded once at startup.
package config

import (
	"fmt"

	"github.com/mitchellh/copystructure"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
)

// ProxySettings holds outbound proxy configuration for one service.
type ProxySettings struct {
	HTTPProxy  string `json:"http_proxy,omitempty"`
	HTTPSProxy string `json:"https_proxy,omitempty"`
	SOCKSProxy string `json:"socks_proxy,omitempty"`
	NoProxy    string `json:"no_proxy,omitempty"`
}

// IsZero reports whether no proxy is configured.
func (p ProxySettings) IsZero() bool {
	return p == ProxySettings{}
}

// ServiceConfig is the full configuration needed to talk to one service.
//
// A ServiceConfig is treated as immutable once built: code that needs
// different credentials derives a new one with WithAuth or Clone and never
// writes to a config it did not create.
type ServiceConfig struct {
	Service      atlassian.Service
	BaseURL      string
	Auth         types.Variant
	TLSVerify    bool
	Proxy        ProxySettings
	ExtraHeaders map[string]string
}

// Clone returns a deep copy of c. The auth variant and header map are never
// shared with the receiver.
func (c *ServiceConfig) Clone() (*ServiceConfig, error) {
	ret := &ServiceConfig{
		Service:   c.Service,
		BaseURL:   c.BaseURL,
		TLSVerify: c.TLSVerify,
		Proxy:     c.Proxy,
	}

	if c.Auth != nil {
		ret.Auth = c.Auth.Clone()
	}

	switch {
	case c.ExtraHeaders == nil:
	case len(c.ExtraHeaders) == 0:
		ret.ExtraHeaders = make(map[string]string)
	default:
		headers, err := copystructure.Copy(c.ExtraHeaders)
		if err != nil {
			return nil, fmt.Errorf("failed to copy extra headers: %w", err)
		}
		ret.ExtraHeaders = headers.(map[string]string)
	}

	return ret, nil
}

// WithAuth returns a deep copy of c whose auth variant is a copy of v.
func (c *ServiceConfig) WithAuth(v types.Variant) (*ServiceConfig, error) {
	ret, err := c.Clone()
	if err != nil {
		return nil, err
	}
	ret.Auth = nil
	if v != nil {
		ret.Auth = v.Clone()
	}
	return ret, nil
}

// AuthType returns the tag of the configured variant, or "" when none.
func (c *ServiceConfig) AuthType() types.AuthType {
	if c.Auth == nil {
		return ""
	}
	return c.Auth.Type()
}

// ViaGateway reports whether requests go through the Atlassian API gateway,
// which is the case for tenant-bound OAuth credentials.
func (c *ServiceConfig) ViaGateway() bool {
	return types.TenantID(c.Auth) != ""
}

// APIBaseURL returns the URL REST paths are appended to.
func (c *ServiceConfig) APIBaseURL() string {
	if tenant := types.TenantID(c.Auth); tenant != "" {
		return atlassian.GatewayURL(c.Service, tenant)
	}
	return c.BaseURL
}

// IsCloud reports whether the service is Atlassian Cloud.
func (c *ServiceConfig) IsCloud() bool {
	return c.ViaGateway() || atlassian.IsCloudURL(c.BaseURL)
}

// String returns a representation safe for logs.
func (c *ServiceConfig) String() string {
	auth := "none"
	if c.Auth != nil {
		auth = c.Auth.String()
	}
	return fmt.Sprintf("ServiceConfig{Service:%s, BaseURL:%q, Auth:%s, TLSVerify:%t}",
		c.Service, c.BaseURL, auth, c.TLSVerify)
}
