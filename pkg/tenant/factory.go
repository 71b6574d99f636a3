// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tenant builds the isolated, per-operation service configuration
// for one caller from the shared base configuration.
//
// Nothing here performs I/O. Every config returned is a fresh deep copy, so
// concurrent operations never share an auth variant with each other or with
// the base context.
package tenant

import (
	"fmt"
	"strings"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/resolver"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
	"github.com/yanintorres/mcp-atlassian/pkg/config"
	gwerrors "github.com/yanintorres/mcp-atlassian/pkg/errors"
)

// Credentials is the raw credential material declared by one caller.
type Credentials struct {
	// AuthType is the declared type: oauth or pat.
	AuthType types.AuthType

	// Token is the access token or personal access token.
	Token string

	// TenantID overrides the cloud id of the base configuration.
	TenantID string
}

// Inputs turns a caller's credentials into resolver inputs, borrowing the
// client credentials and cloud id of the base OAuth configuration when there
// is one. base may be nil when the service has no base configuration.
func Inputs(svc atlassian.Service, base *config.ServiceConfig, c Credentials) (resolver.Inputs, error) {
	token := strings.TrimSpace(c.Token)
	tenantID := strings.TrimSpace(c.TenantID)

	in := resolver.Inputs{}
	if base != nil {
		in.URL = base.BaseURL
	}

	switch types.AuthType(strings.ToLower(string(c.AuthType))) {
	case types.AuthTypeOAuth, types.AuthTypeBareToken:
		if token == "" {
			return resolver.Inputs{}, configError(svc, "OAuth access token missing in credentials")
		}
		in.OAuth.AccessToken = token
		in.OAuth.CloudID = tenantID

		switch baseAuth := baseAuth(base).(type) {
		case *types.OAuth:
			in.OAuth.ClientID = baseAuth.ClientID
			in.OAuth.ClientSecret = baseAuth.ClientSecret
			in.OAuth.RedirectURI = baseAuth.RedirectURI
			in.OAuth.Scope = baseAuth.Scope
			if in.OAuth.CloudID == "" {
				in.OAuth.CloudID = baseAuth.TenantID
			}
		case *types.BareToken:
			if in.OAuth.CloudID == "" {
				in.OAuth.CloudID = baseAuth.TenantID
			}
		default:
			if in.OAuth.CloudID == "" {
				return resolver.Inputs{}, configError(svc, fmt.Sprintf(
					"Global OAuth config for %s is missing: missing tenant id (cloud id) for the OAuth token",
					svc.DisplayName()))
			}
		}
		if in.OAuth.CloudID == "" {
			return resolver.Inputs{}, configError(svc, "missing tenant id")
		}

	case types.AuthTypePersonalToken:
		if token == "" {
			return resolver.Inputs{}, configError(svc, "PAT missing in credentials")
		}
		in.PersonalToken = token
		in.Override = types.AuthTypePersonalToken

	default:
		return resolver.Inputs{}, configError(svc, fmt.Sprintf("Unsupported auth_type '%s'", c.AuthType))
	}

	return in, nil
}

// Derive returns a new ServiceConfig that copies every non-auth field of
// base and carries a private copy of v. A nil base stands for a service
// without base configuration.
func Derive(svc atlassian.Service, base *config.ServiceConfig, v types.Variant) (*config.ServiceConfig, error) {
	if v == nil {
		return nil, configError(svc, "no credentials resolved")
	}
	if err := validate(svc, v); err != nil {
		return nil, err
	}

	if base == nil {
		base = &config.ServiceConfig{Service: svc, TLSVerify: true}
	}
	cfg, err := base.WithAuth(v)
	if err != nil {
		return nil, gwerrors.NewConfigurationError("failed to copy base configuration", err).WithService(string(svc))
	}
	cfg.Service = svc

	if cfg.APIBaseURL() == "" {
		return nil, configError(svc, fmt.Sprintf("%s URL is not configured", svc.DisplayName()))
	}
	return cfg, nil
}

func validate(svc atlassian.Service, v types.Variant) error {
	switch a := v.(type) {
	case *types.OAuth:
		if a.TenantID == "" {
			return configError(svc, "missing tenant id")
		}
		if a.AccessToken == "" {
			return configError(svc, "OAuth access token missing in credentials")
		}
	case *types.BareToken:
		if a.TenantID == "" {
			return configError(svc, "missing tenant id")
		}
		if a.AccessToken == "" {
			return configError(svc, "OAuth access token missing in credentials")
		}
	case *types.PersonalToken:
		if a.Token == "" {
			return configError(svc, "PAT missing in credentials")
		}
	case *types.Basic:
		if a.Username == "" || a.Secret == "" {
			return configError(svc, "username and API token missing in credentials")
		}
	default:
		return configError(svc, fmt.Sprintf("Unsupported auth_type '%s'", v.Type()))
	}
	return nil
}

func baseAuth(base *config.ServiceConfig) types.Variant {
	if base == nil {
		return nil
	}
	return base.Auth
}

func configError(svc atlassian.Service, msg string) error {
	return gwerrors.NewConfigurationError(msg, nil).WithService(string(svc))
}
