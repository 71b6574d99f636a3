// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package resolver decides which single authentication variant applies to a
// service given a set of raw inputs.
//
// The same decision is used for environment-sourced inputs at startup and for
// inputs built from a per-operation credential bundle. Precedence is fixed:
//
//  1. OAuth, when a cloud id is present together with either both client
//     credentials (OAuth) or an access token without client credentials
//     (BareToken).
//  2. PersonalToken, when a personal token is present and the URL is not an
//     Atlassian Cloud URL.
//  3. Basic, when a username and an API token are present.
//
// Anything else is a configuration error. Resolve is pure and total.
package resolver

import (
	"fmt"
	"strings"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
	gwerrors "github.com/yanintorres/mcp-atlassian/pkg/errors"
)

// OAuthInputs is the raw OAuth field set.
type OAuthInputs struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	CloudID      string
	AccessToken  string
	RefreshToken string
}

// Present reports whether any OAuth field that can select the OAuth branch is set.
func (o OAuthInputs) Present() bool {
	return o.ClientID != "" || o.ClientSecret != "" || o.AccessToken != "" || o.RefreshToken != ""
}

// Inputs is everything the resolver may look at for one service.
type Inputs struct {
	// URL is the service base URL, used to tell Cloud from Server/DC.
	URL string

	Username      string
	APIToken      string
	PersonalToken string

	OAuth OAuthInputs

	// Override restricts resolution to one auth type. Empty means the
	// default precedence applies.
	Override types.AuthType
}

// Resolve returns the variant selected for svc, or a configuration error.
func Resolve(svc atlassian.Service, in Inputs) (types.Variant, error) {
	in = normalize(in)

	if in.Override != "" {
		return resolveOverride(svc, in)
	}

	if v := tryOAuth(in); v != nil {
		return v, nil
	}
	if v := tryPersonalToken(in); v != nil {
		return v, nil
	}
	if v := tryBasic(in); v != nil {
		return v, nil
	}
	return nil, missingError(svc, in)
}

func resolveOverride(svc atlassian.Service, in Inputs) (types.Variant, error) {
	var v types.Variant
	switch in.Override {
	case types.AuthTypeOAuth, types.AuthTypeBareToken:
		v = tryOAuth(in)
		if v != nil && v.Type() != in.Override {
			v = nil
		}
	case types.AuthTypePersonalToken:
		v = tryPersonalToken(in)
	case types.AuthTypeBasic:
		v = tryBasic(in)
	default:
		return nil, gwerrors.NewConfigurationError(
			fmt.Sprintf("unsupported auth type %q for %s", in.Override, svc.DisplayName()), nil,
		).WithService(string(svc))
	}
	if v == nil {
		return nil, gwerrors.NewConfigurationError(
			fmt.Sprintf("%s auth type %q was requested but %s", svc.DisplayName(), in.Override, requirement(in.Override, in)), nil,
		).WithService(string(svc))
	}
	return v, nil
}

func tryOAuth(in Inputs) types.Variant {
	o := in.OAuth
	if o.CloudID == "" {
		return nil
	}
	hasClient := o.ClientID != "" && o.ClientSecret != ""
	noClient := o.ClientID == "" && o.ClientSecret == ""
	switch {
	case hasClient:
		return &types.OAuth{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			RedirectURI:  o.RedirectURI,
			Scope:        o.Scope,
			TenantID:     o.CloudID,
			AccessToken:  o.AccessToken,
			RefreshToken: o.RefreshToken,
		}
	case noClient && o.AccessToken != "":
		return &types.BareToken{
			TenantID:    o.CloudID,
			AccessToken: o.AccessToken,
		}
	default:
		return nil
	}
}

func tryPersonalToken(in Inputs) types.Variant {
	if in.PersonalToken == "" || atlassian.IsCloudURL(in.URL) {
		return nil
	}
	return &types.PersonalToken{Token: in.PersonalToken}
}

func tryBasic(in Inputs) types.Variant {
	if in.Username == "" || in.APIToken == "" {
		return nil
	}
	return &types.Basic{Username: in.Username, Secret: in.APIToken}
}

func missingError(svc atlassian.Service, in Inputs) error {
	var msg string
	switch {
	case in.OAuth.Present() && in.OAuth.CloudID == "":
		msg = fmt.Sprintf("missing tenant id: OAuth credentials for %s need a cloud id", svc.DisplayName())
	case in.PersonalToken != "" && atlassian.IsCloudURL(in.URL) && in.Username == "":
		msg = fmt.Sprintf("personal access tokens are not accepted for the %s Cloud URL %s; "+
			"provide a username with an API token or OAuth credentials", svc.DisplayName(), in.URL)
	default:
		msg = fmt.Sprintf("no authentication method configured for %s: provide a username and API token, "+
			"a personal access token (Server/Data Center only), or OAuth credentials with a cloud id "+
			"(client id and secret, or an access token)", svc.DisplayName())
	}
	return gwerrors.NewConfigurationError(msg, nil).WithService(string(svc))
}

func requirement(t types.AuthType, in Inputs) string {
	switch t {
	case types.AuthTypeOAuth:
		if in.OAuth.CloudID == "" {
			return "the cloud id (tenant id) is missing"
		}
		return "client id and client secret are both required"
	case types.AuthTypeBareToken:
		if in.OAuth.CloudID == "" {
			return "the cloud id (tenant id) is missing"
		}
		return "an access token without client credentials is required"
	case types.AuthTypePersonalToken:
		if in.PersonalToken != "" {
			return "personal access tokens are not accepted for Cloud URLs"
		}
		return "no personal access token was provided"
	default:
		return "a username and API token are both required"
	}
}

func normalize(in Inputs) Inputs {
	trim := strings.TrimSpace
	in.URL = trim(in.URL)
	in.Username = trim(in.Username)
	in.APIToken = trim(in.APIToken)
	in.PersonalToken = trim(in.PersonalToken)
	in.OAuth = OAuthInputs{
		ClientID:     trim(in.OAuth.ClientID),
		ClientSecret: trim(in.OAuth.ClientSecret),
		RedirectURI:  trim(in.OAuth.RedirectURI),
		Scope:        trim(in.OAuth.Scope),
		CloudID:      trim(in.OAuth.CloudID),
		AccessToken:  trim(in.OAuth.AccessToken),
		RefreshToken: trim(in.OAuth.RefreshToken),
	}
	in.Override = types.AuthType(strings.ToLower(trim(string(in.Override))))
	return in
}
