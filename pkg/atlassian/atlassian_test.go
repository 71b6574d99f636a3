// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package atlassian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCloudURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.atlassian.net", true},
		{"https://example.atlassian.net/wiki", true},
		{"https://EXAMPLE.Atlassian.NET", true},
		{"https://example.jira.com", true},
		{"https://example.jira-dev.com", true},
		{"https://api.atlassian.com/ex/jira/abc", true},
		{"https://jira.example.com", false},
		{"https://confluence.corp.internal/confluence", false},
		{"http://localhost:8080", false},
		{"http://127.0.0.1:8090", false},
		{"http://[::1]:8090", false},
		{"https://atlassian.net.evil.example", false},
		{"", false},
		{"://bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsCloudURL(tt.url))
		})
	}
}

func TestGatewayURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://api.atlassian.com/ex/jira/cloud-123", GatewayURL(Jira, "cloud-123"))
	assert.Equal(t, "https://api.atlassian.com/ex/confluence/cloud-123", GatewayURL(Confluence, "cloud-123"))
}

func TestIdentityPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		service    Service
		baseURL    string
		viaGateway bool
		want       string
	}{
		{"jira cloud", Jira, "https://x.atlassian.net", false, "/rest/api/2/myself"},
		{"jira server", Jira, "https://jira.corp", false, "/rest/api/2/myself"},
		{"confluence cloud without wiki", Confluence, "https://x.atlassian.net", false, "/wiki/rest/api/user/current"},
		{"confluence cloud with wiki", Confluence, "https://x.atlassian.net/wiki/", false, "/rest/api/user/current"},
		{"confluence server", Confluence, "https://wiki.corp", false, "/rest/api/user/current"},
		{"confluence via gateway", Confluence, GatewayURL(Confluence, "c"), true, "/wiki/rest/api/user/current"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IdentityPath(tt.service, tt.baseURL, tt.viaGateway))
		})
	}
}

func TestParseService(t *testing.T) {
	t.Parallel()

	s, err := ParseService(" Jira ")
	require.NoError(t, err)
	assert.Equal(t, Jira, s)
	assert.Equal(t, "Jira", s.DisplayName())
	assert.Equal(t, "JIRA_", s.EnvPrefix())

	s, err = ParseService("confluence")
	require.NoError(t, err)
	assert.Equal(t, "CONFLUENCE_", s.EnvPrefix())

	_, err = ParseService("bitbucket")
	assert.Error(t, err)
}

func TestParseIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    *Identity
		wantErr error
	}{
		{
			name: "cloud myself",
			body: `{"accountId":"5b10a2844c20165700ede21g","emailAddress":"jane@example.com","displayName":"Jane Doe"}`,
			want: &Identity{AccountID: "5b10a2844c20165700ede21g", Email: "jane@example.com", DisplayName: "Jane Doe"},
		},
		{
			name: "server myself uses key",
			body: `{"key":"JIRAUSER10000","name":"jdoe","emailAddress":"jdoe@corp"}`,
			want: &Identity{AccountID: "JIRAUSER10000", Email: "jdoe@corp"},
		},
		{
			name: "confluence current user",
			body: `{"type":"known","accountId":"abc","email":"a@b.c","displayName":"A"}`,
			want: &Identity{AccountID: "abc", Email: "a@b.c", DisplayName: "A"},
		},
		{
			name:    "array body",
			body:    `[{"accountId":"abc"}]`,
			wantErr: ErrNotAnObject,
		},
		{
			name:    "not json",
			body:    `<html>login</html>`,
			wantErr: ErrNotAnObject,
		},
		{
			name:    "anonymous user",
			body:    `{"type":"anonymous","displayName":"Anonymous"}`,
			wantErr: ErrNoAccountID,
		},
		{
			name:    "non string account id",
			body:    `{"accountId":42}`,
			wantErr: ErrNoAccountID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseIdentity([]byte(tt.body))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
