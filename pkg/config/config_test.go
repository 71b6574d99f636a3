// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-core/env/mocks"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
	gwerrors "github.com/yanintorres/mcp-atlassian/pkg/errors"
)

func newEnv(t *testing.T, vars map[string]string) *mocks.MockReader {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockEnv := mocks.NewMockReader(ctrl)
	mockEnv.EXPECT().Getenv(gomock.Any()).DoAndReturn(func(key string) string {
		return vars[key]
	}).AnyTimes()
	return mockEnv
}

func TestLoadFromEnv_Basic(t *testing.T) {
	t.Parallel()

	base := LoadFromEnv(newEnv(t, map[string]string{
		"JIRA_URL":            "https://example.atlassian.net/",
		"JIRA_USERNAME":       "jane@example.com",
		"JIRA_API_TOKEN":      "api-token",
		"JIRA_SSL_VERIFY":     "false",
		"JIRA_CUSTOM_HEADERS": "X-Team=core, X-Empty=",
		"HTTPS_PROXY":         "http://proxy.corp:3128",
		"JIRA_HTTP_PROXY":     "http://jira-proxy.corp:3128",
		"READ_ONLY_MODE":      "yes",
		"ENABLED_TOOLS":       "jira_get_current_user, ,atlassian_auth_status",
	}))

	assert.Equal(t, []atlassian.Service{atlassian.Jira}, base.Available())

	cfg, ok := base.ServiceConfig(atlassian.Jira)
	require.True(t, ok)

	want := &ServiceConfig{
		Service:   atlassian.Jira,
		BaseURL:   "https://example.atlassian.net",
		Auth:      &types.Basic{Username: "jane@example.com", Secret: "api-token"},
		TLSVerify: false,
		Proxy: ProxySettings{
			HTTPProxy:  "http://jira-proxy.corp:3128",
			HTTPSProxy: "http://proxy.corp:3128",
		},
		ExtraHeaders: map[string]string{"X-Team": "core", "X-Empty": ""},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("ServiceConfig mismatch (-want +got):\n%s", diff)
	}

	policy := base.Policy()
	assert.True(t, policy.ReadOnly)
	assert.Equal(t, []string{"jira_get_current_user", "atlassian_auth_status"}, policy.EnabledTools)
}

func TestLoadFromEnv_PrecedenceAndServices(t *testing.T) {
	t.Parallel()

	base := LoadFromEnv(newEnv(t, map[string]string{
		"JIRA_URL":                      "https://jira.corp.example",
		"JIRA_USERNAME":                 "jdoe",
		"JIRA_API_TOKEN":                "password",
		"JIRA_PERSONAL_TOKEN":           "pat",
		"CONFLUENCE_URL":                "https://example.atlassian.net/wiki",
		"ATLASSIAN_OAUTH_CLIENT_ID":     "client",
		"ATLASSIAN_OAUTH_CLIENT_SECRET": "secret",
		"ATLASSIAN_OAUTH_CLOUD_ID":      "cloud-1",
		"ATLASSIAN_OAUTH_REFRESH_TOKEN": "refresh",
	}))

	assert.Equal(t, []atlassian.Service{atlassian.Jira, atlassian.Confluence}, base.Available())

	jira, ok := base.ServiceConfig(atlassian.Jira)
	require.True(t, ok)
	assert.Equal(t, types.AuthTypeOAuth, jira.AuthType(), "shared OAuth wins over PAT and basic")

	conf, ok := base.ServiceConfig(atlassian.Confluence)
	require.True(t, ok)
	oa, ok := conf.Auth.(*types.OAuth)
	require.True(t, ok)
	assert.Equal(t, "cloud-1", oa.TenantID)
	assert.Equal(t, "refresh", oa.RefreshToken)
	assert.Equal(t, "https://api.atlassian.com/ex/confluence/cloud-1", conf.APIBaseURL())
	assert.True(t, conf.TLSVerify)
}

func TestLoadFromEnv_PersonalToken(t *testing.T) {
	t.Parallel()

	base := LoadFromEnv(newEnv(t, map[string]string{
		"CONFLUENCE_URL":            "https://wiki.corp.example",
		"CONFLUENCE_PERSONAL_TOKEN": "pat",
		"CONFLUENCE_USERNAME":       "jdoe",
		"CONFLUENCE_API_TOKEN":      "pw",
	}))

	cfg, ok := base.ServiceConfig(atlassian.Confluence)
	require.True(t, ok)
	assert.Equal(t, &types.PersonalToken{Token: "pat"}, cfg.Auth)
	assert.False(t, cfg.IsCloud())
}

func TestLoadFromEnv_UnavailableIsNotFatal(t *testing.T) {
	t.Parallel()

	base := LoadFromEnv(newEnv(t, map[string]string{
		"JIRA_URL":             "https://example.atlassian.net",
		"JIRA_PERSONAL_TOKEN":  "pat",
		"CONFLUENCE_URL":       "https://wiki.corp.example",
		"CONFLUENCE_USERNAME":  "jdoe",
		"CONFLUENCE_API_TOKEN": "pw",
	}))

	assert.Equal(t, []atlassian.Service{atlassian.Confluence}, base.Available())
	_, ok := base.ServiceConfig(atlassian.Jira)
	assert.False(t, ok)

	problem := base.Problem(atlassian.Jira)
	require.Error(t, problem)
	assert.True(t, gwerrors.IsConfiguration(problem))
	assert.NoError(t, base.Problem(atlassian.Confluence))
}

func TestLoadFromEnv_NothingConfigured(t *testing.T) {
	t.Parallel()

	base := LoadFromEnv(newEnv(t, map[string]string{
		"ATLASSIAN_OAUTH_CLIENT_ID": "only-shared-settings",
	}))

	assert.Empty(t, base.Available())
	assert.NoError(t, base.Problem(atlassian.Jira))
}

func TestLoadFromEnv_MinimalOAuthBase(t *testing.T) {
	t.Parallel()

	base := LoadFromEnv(newEnv(t, map[string]string{
		"JIRA_URL":               "https://example.atlassian.net",
		"ATLASSIAN_OAUTH_ENABLE": "true",
	}))

	cfg, ok := base.ServiceConfig(atlassian.Jira)
	require.True(t, ok)
	oa, ok := cfg.Auth.(*types.OAuth)
	require.True(t, ok)
	assert.Empty(t, oa.ClientID)
	assert.Empty(t, oa.ClientSecret)
	assert.Empty(t, oa.AccessToken)
	assert.Equal(t, "https://example.atlassian.net", cfg.APIBaseURL())
}

func TestLoadFromEnv_InvalidURL(t *testing.T) {
	t.Parallel()

	base := LoadFromEnv(newEnv(t, map[string]string{
		"JIRA_URL":       "not a url",
		"JIRA_USERNAME":  "u",
		"JIRA_API_TOKEN": "t",
	}))

	assert.Empty(t, base.Available())
	require.Error(t, base.Problem(atlassian.Jira))
	assert.Contains(t, base.Problem(atlassian.Jira).Error(), "JIRA_URL")
}

func TestLoadFromEnv_TokenLoader(t *testing.T) {
	t.Parallel()

	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	var askedFor string
	loader := func(clientID string) (*StoredTokens, bool) {
		askedFor = clientID
		return &StoredTokens{
			AccessToken:  "stored-access",
			RefreshToken: "stored-refresh",
			ExpiresAt:    expiry,
			CloudID:      "stored-cloud",
		}, true
	}

	base := LoadFromEnv(newEnv(t, map[string]string{
		"JIRA_URL":                      "https://example.atlassian.net",
		"ATLASSIAN_OAUTH_CLIENT_ID":     "client",
		"ATLASSIAN_OAUTH_CLIENT_SECRET": "secret",
	}), WithTokenLoader(loader))

	assert.Equal(t, "client", askedFor)

	cfg, ok := base.ServiceConfig(atlassian.Jira)
	require.True(t, ok)
	want := &types.OAuth{
		ClientID:     "client",
		ClientSecret: "secret",
		TenantID:     "stored-cloud",
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    expiry,
	}
	assert.Equal(t, want, cfg.Auth)
}

func TestBaseContext_HandsOutCopies(t *testing.T) {
	t.Parallel()

	base, err := NewBaseContext(Policy{EnabledTools: []string{"a"}}, &ServiceConfig{
		Service:      atlassian.Jira,
		BaseURL:      "https://example.atlassian.net",
		Auth:         &types.OAuth{TenantID: "t", AccessToken: "base-token"},
		ExtraHeaders: map[string]string{"X-A": "1"},
	})
	require.NoError(t, err)

	first, ok := base.ServiceConfig(atlassian.Jira)
	require.True(t, ok)
	first.Auth.(*types.OAuth).AccessToken = "mutated"
	first.ExtraHeaders["X-A"] = "2"

	second, ok := base.ServiceConfig(atlassian.Jira)
	require.True(t, ok)
	assert.Equal(t, "base-token", second.Auth.(*types.OAuth).AccessToken)
	assert.Equal(t, "1", second.ExtraHeaders["X-A"])

	p := base.Policy()
	p.EnabledTools[0] = "b"
	assert.Equal(t, []string{"a"}, base.Policy().EnabledTools)
}

func TestNewBaseContext_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewBaseContext(Policy{}, &ServiceConfig{Service: "bitbucket"})
	assert.Error(t, err)

	_, err = NewBaseContext(Policy{}, &ServiceConfig{Service: atlassian.Jira}, &ServiceConfig{Service: atlassian.Jira})
	assert.Error(t, err)

	b, err := NewBaseContext(Policy{}, nil)
	require.NoError(t, err)
	assert.Empty(t, b.Available())
}

func TestServiceConfig_WithAuth(t *testing.T) {
	t.Parallel()

	base := &ServiceConfig{
		Service:      atlassian.Jira,
		BaseURL:      "https://example.atlassian.net",
		Auth:         &types.Basic{Username: "u", Secret: "s"},
		TLSVerify:    true,
		Proxy:        ProxySettings{HTTPSProxy: "http://p"},
		ExtraHeaders: map[string]string{"X": "1"},
	}
	v := &types.BareToken{TenantID: "T1", AccessToken: "abc"}

	got, err := base.WithAuth(v)
	require.NoError(t, err)

	assert.Equal(t, base.BaseURL, got.BaseURL)
	assert.Equal(t, base.Proxy, got.Proxy)
	assert.Equal(t, base.ExtraHeaders, got.ExtraHeaders)
	assert.Equal(t, v, got.Auth)
	assert.NotSame(t, v, got.Auth)
	assert.True(t, got.ViaGateway())
	assert.Equal(t, "https://api.atlassian.com/ex/jira/T1", got.APIBaseURL())

	got.ExtraHeaders["X"] = "2"
	assert.Equal(t, "1", base.ExtraHeaders["X"])
	assert.Equal(t, types.AuthTypeBasic, base.AuthType())
}

func TestServiceConfig_StringRedacts(t *testing.T) {
	t.Parallel()

	c := &ServiceConfig{Service: atlassian.Jira, Auth: &types.PersonalToken{Token: "super-secret-pat-value"}}
	assert.NotContains(t, c.String(), "super-secret-pat-value")
}

func TestPolicy(t *testing.T) {
	t.Parallel()

	open := Policy{}
	assert.True(t, open.IsToolEnabled("anything"))
	assert.NoError(t, open.CheckWrite("create issue"))

	restricted := Policy{ReadOnly: true, EnabledTools: []string{"jira_get_current_user"}}
	assert.True(t, restricted.IsToolEnabled("jira_get_current_user"))
	assert.False(t, restricted.IsToolEnabled("confluence_get_current_user"))

	err := restricted.CheckWrite("create issue")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadOnlyMode)
	assert.Contains(t, err.Error(), "Cannot create issue in read-only mode")
}

func TestParseCustomHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"single", "X-A=1", map[string]string{"X-A": "1"}},
		{"multiple with spaces", " X-A = 1 , X-B=2 ", map[string]string{"X-A": "1", "X-B": "2"}},
		{"value with equals", "X-Sig=a=b=c", map[string]string{"X-Sig": "a=b=c"}},
		{"empty value kept", "X-Empty=", map[string]string{"X-Empty": ""}},
		{"no equals skipped", "X-A=1,garbage", map[string]string{"X-A": "1"}},
		{"empty key skipped", "=v,X-A=1", map[string]string{"X-A": "1"}},
		{"trailing comma", "X-A=1,", map[string]string{"X-A": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseCustomHeaders(tt.input))
		})
	}
}

func TestIsTruthy(t *testing.T) {
	t.Parallel()

	for _, v := range []string{"true", "TRUE", "1", "yes", "Y", "on", " On "} {
		assert.True(t, IsTruthy(v), v)
	}
	for _, v := range []string{"", "false", "0", "no", "off", "maybe"} {
		assert.False(t, IsTruthy(v), v)
	}
}

func TestSSLVerify(t *testing.T) {
	t.Parallel()

	assert.True(t, sslVerify(""))
	assert.True(t, sslVerify("garbage"))
	assert.True(t, sslVerify("true"))
	assert.False(t, sslVerify("false"))
	assert.False(t, sslVerify("OFF"))
	assert.False(t, sslVerify("0"))
}
