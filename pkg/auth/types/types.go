// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package types provides the authentication variants a service
// configuration can carry.
//
// This package is a leaf package with no dependencies on the rest of pkg/auth,
// so config, resolver, tenant and oauth can all share it without import cycles.
//
// A Variant is a closed tagged union: exactly one of *Basic, *PersonalToken,
// *OAuth or *BareToken. Consumers switch on the concrete type; the unexported
// marker method keeps the set closed.
package types

import (
	"fmt"
	"time"
)

// AuthType identifies an authentication variant.
type AuthType string

const (
	// AuthTypeBasic is username plus API token or password.
	AuthTypeBasic AuthType = "basic"

	// AuthTypePersonalToken is a Server/Data Center personal access token.
	AuthTypePersonalToken AuthType = "pat"

	// AuthTypeOAuth is an OAuth 2.0 (3LO) credential, possibly refreshable.
	AuthTypeOAuth AuthType = "oauth"

	// AuthTypeBareToken is an OAuth access token supplied without client
	// credentials or refresh capability.
	AuthTypeBareToken AuthType = "bare_token"
)

// Variant is one authentication method.
type Variant interface {
	// Type returns the tag of the variant.
	Type() AuthType

	// Clone returns a deep copy that shares no state with the receiver.
	Clone() Variant

	fmt.Stringer

	variant()
}

// Basic authenticates with a username and a secret (API token or password).
type Basic struct {
	Username string
	Secret   string
}

// Type implements Variant.
func (*Basic) Type() AuthType { return AuthTypeBasic }

// Clone implements Variant.
func (b *Basic) Clone() Variant {
	c := *b
	return &c
}

func (b *Basic) String() string {
	return fmt.Sprintf("Basic{Username:%q, Secret:%s}", b.Username, Mask(b.Secret))
}

func (*Basic) variant() {}

// PersonalToken authenticates with a personal access token.
type PersonalToken struct {
	Token string
}

// Type implements Variant.
func (*PersonalToken) Type() AuthType { return AuthTypePersonalToken }

// Clone implements Variant.
func (p *PersonalToken) Clone() Variant {
	c := *p
	return &c
}

func (p *PersonalToken) String() string {
	return fmt.Sprintf("PersonalToken{Token:%s}", Mask(p.Token))
}

func (*PersonalToken) variant() {}

// OAuth is an OAuth 2.0 credential bound to one Atlassian cloud tenant.
//
// ClientID and ClientSecret are empty in "bring your own token" mode. A zero
// ExpiresAt means the expiry is unknown.
type OAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	TenantID     string

	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Type implements Variant.
func (*OAuth) Type() AuthType { return AuthTypeOAuth }

// Clone implements Variant.
func (o *OAuth) Clone() Variant {
	return o.CloneOAuth()
}

// CloneOAuth is Clone without the interface conversion.
func (o *OAuth) CloneOAuth() *OAuth {
	c := *o
	return &c
}

// HasClientCredentials reports whether both client id and secret are set.
func (o *OAuth) HasClientCredentials() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// Refreshable reports whether a refresh-token exchange can be attempted.
func (o *OAuth) Refreshable() bool {
	return o.RefreshToken != "" && o.HasClientCredentials()
}

func (o *OAuth) String() string {
	return fmt.Sprintf("OAuth{ClientID:%q, TenantID:%q, AccessToken:%s, RefreshToken:%s, ExpiresAt:%s}",
		o.ClientID, o.TenantID, Mask(o.AccessToken), Mask(o.RefreshToken), formatExpiry(o.ExpiresAt))
}

func (*OAuth) variant() {}

// BareToken is an access token handed over by a caller with nothing to
// refresh it with.
type BareToken struct {
	TenantID    string
	AccessToken string
}

// Type implements Variant.
func (*BareToken) Type() AuthType { return AuthTypeBareToken }

// Clone implements Variant.
func (b *BareToken) Clone() Variant {
	c := *b
	return &c
}

func (b *BareToken) String() string {
	return fmt.Sprintf("BareToken{TenantID:%q, AccessToken:%s}", b.TenantID, Mask(b.AccessToken))
}

func (*BareToken) variant() {}

// TenantID returns the cloud tenant id carried by v, or "" for variants that
// are not tenant-bound.
func TenantID(v Variant) string {
	switch t := v.(type) {
	case *OAuth:
		return t.TenantID
	case *BareToken:
		return t.TenantID
	default:
		return ""
	}
}

// AccessToken returns the bearer token carried by v, or "" for Basic.
func AccessToken(v Variant) string {
	switch t := v.(type) {
	case *OAuth:
		return t.AccessToken
	case *BareToken:
		return t.AccessToken
	case *PersonalToken:
		return t.Token
	default:
		return ""
	}
}

// Mask hides all but the edges of a secret so it can be logged.
func Mask(s string) string {
	switch {
	case s == "":
		return `""`
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "..." + s[len(s)-4:]
	}
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "unset"
	}
	return t.UTC().Format(time.RFC3339)
}
