// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/stacklok/toolhive-core/env"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/resolver"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
	"github.com/yanintorres/mcp-atlassian/pkg/logger"
)

// Shared environment variable names.
const (
	EnvOAuthClientID     = "ATLASSIAN_OAUTH_CLIENT_ID"
	EnvOAuthClientSecret = "ATLASSIAN_OAUTH_CLIENT_SECRET"
	EnvOAuthRedirectURI  = "ATLASSIAN_OAUTH_REDIRECT_URI"
	EnvOAuthScope        = "ATLASSIAN_OAUTH_SCOPE"
	EnvOAuthCloudID      = "ATLASSIAN_OAUTH_CLOUD_ID"
	EnvOAuthAccessToken  = "ATLASSIAN_OAUTH_ACCESS_TOKEN"
	EnvOAuthRefreshToken = "ATLASSIAN_OAUTH_REFRESH_TOKEN"
	EnvOAuthEnable       = "ATLASSIAN_OAUTH_ENABLE"

	EnvReadOnlyMode = "READ_ONLY_MODE"
	EnvEnabledTools = "ENABLED_TOOLS"
)

// Service-specific variable suffixes, prefixed with JIRA_ or CONFLUENCE_.
const (
	suffixURL           = "URL"
	suffixUsername      = "USERNAME"
	suffixAPIToken      = "API_TOKEN"
	suffixPersonalToken = "PERSONAL_TOKEN"
	suffixAuthType      = "AUTH_TYPE"
	suffixSSLVerify     = "SSL_VERIFY"
	suffixCustomHeaders = "CUSTOM_HEADERS"
	suffixHTTPProxy     = "HTTP_PROXY"
	suffixHTTPSProxy    = "HTTPS_PROXY"
	suffixSOCKSProxy    = "SOCKS_PROXY"
	suffixNoProxy       = "NO_PROXY"
)

// StoredTokens is an OAuth token set previously persisted for a client.
type StoredTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CloudID      string
}

// TokenLoader looks up persisted tokens for an OAuth client id.
type TokenLoader func(clientID string) (*StoredTokens, bool)

type loadOptions struct {
	tokenLoader TokenLoader
}

// LoadOption customizes LoadFromEnv.
type LoadOption func(*loadOptions)

// WithTokenLoader fills missing OAuth tokens from a credential store.
func WithTokenLoader(l TokenLoader) LoadOption {
	return func(o *loadOptions) {
		o.tokenLoader = l
	}
}

// LoadFromEnv builds the BaseContext from environment variables.
//
// A service without a consistent credential set is left out and the reason
// is recorded; that is never fatal for the process.
func LoadFromEnv(r env.Reader, opts ...LoadOption) *BaseContext {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	b := &BaseContext{
		services: make(map[atlassian.Service]*ServiceConfig),
		problems: make(map[atlassian.Service]error),
		policy: Policy{
			ReadOnly:     IsTruthy(r.Getenv(EnvReadOnlyMode)),
			EnabledTools: ParseToolList(r.Getenv(EnvEnabledTools)),
		},
	}

	for _, s := range atlassian.Services {
		cfg, configured, err := loadService(r, s, o)
		switch {
		case err != nil:
			logger.Warnf("%s is not available: %v", s.DisplayName(), err)
			b.problems[s] = err
		case !configured:
			logger.Debugf("%s is not configured", s.DisplayName())
		default:
			logger.Infow("loaded base configuration",
				"service", string(s), "auth_type", string(cfg.AuthType()), "url", cfg.BaseURL)
			b.services[s] = cfg
		}
	}

	return b
}

func loadService(r env.Reader, s atlassian.Service, o loadOptions) (*ServiceConfig, bool, error) {
	get := func(suffix string) string {
		return strings.TrimSpace(r.Getenv(s.EnvPrefix() + suffix))
	}

	in := resolver.Inputs{
		URL:           get(suffixURL),
		Username:      get(suffixUsername),
		APIToken:      get(suffixAPIToken),
		PersonalToken: get(suffixPersonalToken),
		Override:      types.AuthType(get(suffixAuthType)),
		OAuth: resolver.OAuthInputs{
			ClientID:     strings.TrimSpace(r.Getenv(EnvOAuthClientID)),
			ClientSecret: strings.TrimSpace(r.Getenv(EnvOAuthClientSecret)),
			RedirectURI:  strings.TrimSpace(r.Getenv(EnvOAuthRedirectURI)),
			Scope:        strings.TrimSpace(r.Getenv(EnvOAuthScope)),
			CloudID:      strings.TrimSpace(r.Getenv(EnvOAuthCloudID)),
			AccessToken:  strings.TrimSpace(r.Getenv(EnvOAuthAccessToken)),
			RefreshToken: strings.TrimSpace(r.Getenv(EnvOAuthRefreshToken)),
		},
	}
	byoOAuth := IsTruthy(r.Getenv(EnvOAuthEnable))

	if in.URL == "" && in.Username == "" && in.APIToken == "" && in.PersonalToken == "" {
		// Shared OAuth settings alone do not configure a service.
		return nil, false, nil
	}
	if in.URL != "" {
		if _, err := url.ParseRequestURI(in.URL); err != nil {
			return nil, true, fmt.Errorf("invalid %s%s %q: %w", s.EnvPrefix(), suffixURL, in.URL, err)
		}
	}

	stored := applyStoredTokens(&in.OAuth, o.tokenLoader)

	variant, err := resolver.Resolve(s, in)
	if err != nil {
		if !byoOAuth {
			return nil, true, err
		}
		// Minimal base: callers bring their own tokens per operation.
		variant = &types.OAuth{
			RedirectURI: in.OAuth.RedirectURI,
			Scope:       in.OAuth.Scope,
			TenantID:    in.OAuth.CloudID,
		}
	}
	if oa, ok := variant.(*types.OAuth); ok && stored != nil && oa.AccessToken == stored.AccessToken {
		oa.ExpiresAt = stored.ExpiresAt
	}

	if in.URL == "" && types.TenantID(variant) == "" {
		return nil, true, fmt.Errorf("%s%s is required unless OAuth with a cloud id is configured", s.EnvPrefix(), suffixURL)
	}

	proxy := ProxySettings{
		HTTPProxy:  get(suffixHTTPProxy),
		HTTPSProxy: get(suffixHTTPSProxy),
		SOCKSProxy: get(suffixSOCKSProxy),
		NoProxy:    get(suffixNoProxy),
	}
	global := ProxySettings{
		HTTPProxy:  strings.TrimSpace(r.Getenv("HTTP_PROXY")),
		HTTPSProxy: strings.TrimSpace(r.Getenv("HTTPS_PROXY")),
		SOCKSProxy: strings.TrimSpace(r.Getenv("SOCKS_PROXY")),
		NoProxy:    strings.TrimSpace(r.Getenv("NO_PROXY")),
	}
	if err := mergo.Merge(&proxy, global); err != nil {
		return nil, true, fmt.Errorf("failed to merge proxy settings: %w", err)
	}

	return &ServiceConfig{
		Service:      s,
		BaseURL:      strings.TrimRight(in.URL, "/"),
		Auth:         variant,
		TLSVerify:    sslVerify(get(suffixSSLVerify)),
		Proxy:        proxy,
		ExtraHeaders: ParseCustomHeaders(get(suffixCustomHeaders)),
	}, true, nil
}

// applyStoredTokens fills missing OAuth tokens from the loader. It returns
// the stored record when one was used.
func applyStoredTokens(o *resolver.OAuthInputs, loader TokenLoader) *StoredTokens {
	if loader == nil || o.ClientID == "" || (o.AccessToken != "" && o.RefreshToken != "") {
		return nil
	}
	stored, ok := loader(o.ClientID)
	if !ok || stored == nil {
		return nil
	}
	if o.AccessToken == "" {
		o.AccessToken = stored.AccessToken
	}
	if o.RefreshToken == "" {
		o.RefreshToken = stored.RefreshToken
	}
	if o.CloudID == "" {
		o.CloudID = stored.CloudID
	}
	logger.Debugf("loaded stored OAuth tokens for client %s", o.ClientID)
	return stored
}

// IsTruthy reports whether s is one of true, 1, yes, y, on (any case).
func IsTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// sslVerify defaults to true and only an explicit negative disables it.
func sslVerify(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "false", "0", "no", "n", "off":
		return false
	default:
		return true
	}
}

// ParseCustomHeaders parses "K=V,K2=V2". Entries are split on the first
// '=', trimmed, and skipped when they have no '=' or an empty key. Empty
// values are kept.
func ParseCustomHeaders(s string) map[string]string {
	headers := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return headers
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			logger.Warnf("ignoring malformed custom header entry %q", pair)
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			logger.Warnf("ignoring custom header entry with empty name %q", pair)
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}
