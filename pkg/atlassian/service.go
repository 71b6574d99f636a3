// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package atlassian holds the Atlassian-specific knowledge shared by the
// credential pipeline: the backing services, cloud URL rules, the OAuth
// gateway endpoints and the shape of "who am I" responses.
//
// It is a leaf package; the HTTP client lives in pkg/atlassian/client.
package atlassian

import (
	"fmt"
	"strings"
)

// Service identifies one backing service behind the gateway.
type Service string

const (
	// Jira is Jira Software / Jira Service Management.
	Jira Service = "jira"

	// Confluence is Confluence wiki.
	Confluence Service = "confluence"
)

// Services lists every supported service in a stable order.
var Services = []Service{Jira, Confluence}

// DisplayName returns the human-facing product name used in error messages.
func (s Service) DisplayName() string {
	switch s {
	case Jira:
		return "Jira"
	case Confluence:
		return "Confluence"
	default:
		return string(s)
	}
}

// EnvPrefix returns the prefix of the service-specific environment variables.
func (s Service) EnvPrefix() string {
	return strings.ToUpper(string(s)) + "_"
}

// Valid reports whether s is a supported service.
func (s Service) Valid() bool {
	return s == Jira || s == Confluence
}

// ParseService converts a user-supplied name into a Service.
func ParseService(name string) (Service, error) {
	s := Service(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown service %q (expected %q or %q)", name, Jira, Confluence)
	}
	return s, nil
}
