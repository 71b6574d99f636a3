// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bundle extracts the raw per-operation credential bundle from
// inbound transport metadata.
package bundle

import (
	"errors"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
	gwerrors "github.com/yanintorres/mcp-atlassian/pkg/errors"
)

// Metadata header names.
const (
	HeaderAuthorization = "Authorization"
	HeaderCloudID       = "X-Atlassian-Cloud-Id"
	HeaderUserEmail     = "X-Atlassian-User-Email"
)

// Scheme is an accepted authorization scheme.
type Scheme string

const (
	// SchemeBearer carries an OAuth access token.
	SchemeBearer Scheme = "Bearer"

	// SchemeToken carries a personal access token.
	SchemeToken Scheme = "Token"
)

// Sentinel parse failures. Parse wraps them in a validation error.
var (
	ErrEmptyAuthHeader    = errors.New("empty authorization header")
	ErrUnsupportedScheme  = errors.New("unsupported authorization scheme, expected 'Bearer <token>' or 'Token <token>'")
	ErrEmptyBearerToken   = errors.New("empty bearer token")
	ErrEmptyPersonalToken = errors.New("empty personal access token")
)

// Bundle is the raw, unvalidated credential material of one operation.
type Bundle struct {
	Scheme Scheme
	Token  string

	// TenantID is the optional cloud id override.
	TenantID string

	// Email is the optional caller-asserted account email.
	Email string
}

// AuthType returns the auth variant the scheme asks for.
func (b *Bundle) AuthType() types.AuthType {
	if b.Scheme == SchemeToken {
		return types.AuthTypePersonalToken
	}
	return types.AuthTypeOAuth
}

// String implements fmt.Stringer with the token redacted.
func (b *Bundle) String() string {
	if b == nil {
		return "<nil>"
	}
	return string(b.Scheme) + " " + types.Mask(b.Token)
}

// Parse extracts a Bundle from md.
//
// It returns (nil, nil) when md carries no Authorization field, meaning the
// operation should use the process-global credential. A present field must
// use one of the two schemes and carry a non-empty token.
func Parse(md http.Header) (*Bundle, error) {
	values, present := md[textproto.CanonicalMIMEHeaderKey(HeaderAuthorization)]
	if !present {
		return nil, nil
	}

	raw := ""
	if len(values) > 0 {
		raw = values[0]
	}
	if strings.TrimSpace(raw) == "" {
		return nil, invalid(ErrEmptyAuthHeader)
	}

	scheme, token, err := splitScheme(raw)
	if err != nil {
		return nil, invalid(err)
	}

	return &Bundle{
		Scheme:   scheme,
		Token:    token,
		TenantID: strings.TrimSpace(md.Get(HeaderCloudID)),
		Email:    strings.TrimSpace(md.Get(HeaderUserEmail)),
	}, nil
}

func splitScheme(raw string) (Scheme, string, error) {
	for _, s := range []struct {
		scheme Scheme
		empty  error
	}{
		{SchemeBearer, ErrEmptyBearerToken},
		{SchemeToken, ErrEmptyPersonalToken},
	} {
		prefix := string(s.scheme)
		if raw == prefix {
			return "", "", s.empty
		}
		if strings.HasPrefix(raw, prefix+" ") {
			token := strings.TrimSpace(raw[len(prefix)+1:])
			if token == "" {
				return "", "", s.empty
			}
			return s.scheme, token, nil
		}
	}
	return "", "", ErrUnsupportedScheme
}

func invalid(err error) error {
	return gwerrors.NewValidationError(err.Error(), err)
}
