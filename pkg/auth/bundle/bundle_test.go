// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
	gwerrors "github.com/yanintorres/mcp-atlassian/pkg/errors"
)

func TestParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		headers       map[string]string
		expected      *Bundle
		expectedError error
	}{
		{
			name:     "no_authorization_header",
			headers:  map[string]string{HeaderCloudID: "ignored"},
			expected: nil,
		},
		{
			name:     "bearer_token",
			headers:  map[string]string{HeaderAuthorization: "Bearer abc"},
			expected: &Bundle{Scheme: SchemeBearer, Token: "abc"},
		},
		{
			name: "bearer_token_with_tenant",
			headers: map[string]string{
				HeaderAuthorization: "Bearer abc",
				HeaderCloudID:       " T1 ",
			},
			expected: &Bundle{Scheme: SchemeBearer, Token: "abc", TenantID: "T1"},
		},
		{
			name: "personal_token_with_email",
			headers: map[string]string{
				HeaderAuthorization: "Token pat-123",
				HeaderUserEmail:     "jane@example.com",
			},
			expected: &Bundle{Scheme: SchemeToken, Token: "pat-123", Email: "jane@example.com"},
		},
		{
			name:     "token_with_surrounding_spaces",
			headers:  map[string]string{HeaderAuthorization: "Bearer   abc  "},
			expected: &Bundle{Scheme: SchemeBearer, Token: "abc"},
		},
		{
			name:          "empty_bearer_token",
			headers:       map[string]string{HeaderAuthorization: "Bearer "},
			expectedError: ErrEmptyBearerToken,
		},
		{
			name:          "bearer_without_separator",
			headers:       map[string]string{HeaderAuthorization: "Bearer"},
			expectedError: ErrEmptyBearerToken,
		},
		{
			name:          "empty_personal_token",
			headers:       map[string]string{HeaderAuthorization: "Token    "},
			expectedError: ErrEmptyPersonalToken,
		},
		{
			name:          "blank_header",
			headers:       map[string]string{HeaderAuthorization: "  "},
			expectedError: ErrEmptyAuthHeader,
		},
		{
			name:          "basic_scheme",
			headers:       map[string]string{HeaderAuthorization: "Basic dXNlcjpwYXNz"},
			expectedError: ErrUnsupportedScheme,
		},
		{
			name:          "lowercase_bearer",
			headers:       map[string]string{HeaderAuthorization: "bearer abc"},
			expectedError: ErrUnsupportedScheme,
		},
		{
			name:          "bare_value",
			headers:       map[string]string{HeaderAuthorization: "abc"},
			expectedError: ErrUnsupportedScheme,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			md := http.Header{}
			for k, v := range tc.headers {
				md.Set(k, v)
			}

			got, err := Parse(md)
			if tc.expectedError != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedError)
				assert.True(t, gwerrors.IsValidation(err), "expected validation error, got %v", err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParse_EmptyBearerMessage(t *testing.T) {
	t.Parallel()

	md := http.Header{}
	md.Set(HeaderAuthorization, "Bearer ")
	_, err := Parse(md)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty bearer token")
}

func TestBundle_AuthType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, types.AuthTypeOAuth, (&Bundle{Scheme: SchemeBearer}).AuthType())
	assert.Equal(t, types.AuthTypePersonalToken, (&Bundle{Scheme: SchemeToken}).AuthType())
}

func TestBundle_StringRedacts(t *testing.T) {
	t.Parallel()

	b := &Bundle{Scheme: SchemeBearer, Token: "a-very-secret-access-token"}
	assert.NotContains(t, b.String(), "secret")
	assert.Contains(t, b.String(), "Bearer")
}

func TestMetadataContext(t *testing.T) {
	t.Parallel()

	assert.Empty(t, MetadataFromContext(context.Background()))

	h := http.Header{}
	h.Set(HeaderAuthorization, "Bearer abc")
	h.Set(HeaderCloudID, "T1")
	h.Set("Cookie", "session=1")

	ctx := WithMetadata(context.Background(), h)
	h.Set(HeaderAuthorization, "Bearer changed")

	md := MetadataFromContext(ctx)
	assert.Equal(t, "Bearer abc", md.Get(HeaderAuthorization))
	assert.Equal(t, "T1", md.Get(HeaderCloudID))
	assert.Empty(t, md.Get("Cookie"))
}
