// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package atlassian

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	// TokenURL is the Atlassian OAuth 2.0 token endpoint.
	TokenURL = "https://auth.atlassian.com/oauth/token"

	// GatewayBaseURL is the API gateway OAuth clients talk to.
	GatewayBaseURL = "https://api.atlassian.com"
)

var cloudHostSuffixes = []string{
	".atlassian.net",
	".jira.com",
	".jira-dev.com",
}

// IsCloudURL reports whether rawURL points at an Atlassian Cloud site.
// Loopback and localhost addresses are never cloud.
func IsCloudURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || host == "localhost" {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return false
	}
	if host == "api.atlassian.com" {
		return true
	}
	for _, suffix := range cloudHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// GatewayURL returns the per-tenant API base for OAuth access to s.
func GatewayURL(s Service, cloudID string) string {
	return fmt.Sprintf("%s/ex/%s/%s", GatewayBaseURL, s, url.PathEscape(cloudID))
}

// IdentityPath returns the "who am I" path for s relative to baseURL.
//
// Confluence Cloud serves its REST API under /wiki; OAuth gateway URLs always
// need it, site URLs need it unless already present.
func IdentityPath(s Service, baseURL string, viaGateway bool) string {
	switch s {
	case Jira:
		return "/rest/api/2/myself"
	case Confluence:
		trimmed := strings.TrimRight(baseURL, "/")
		if viaGateway || (IsCloudURL(baseURL) && !strings.HasSuffix(trimmed, "/wiki")) {
			return "/wiki/rest/api/user/current"
		}
		return "/rest/api/user/current"
	default:
		return ""
	}
}
