// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/yanintorres/mcp-atlassian/pkg/api/errors"
	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	gwerrors "github.com/yanintorres/mcp-atlassian/pkg/errors"
	"github.com/yanintorres/mcp-atlassian/pkg/gateway"
)

// ServiceRoutes defines the per-service routes.
type ServiceRoutes struct {
	gateway *gateway.Gateway
}

// ServiceRouter creates the per-service routes.
func ServiceRouter(g *gateway.Gateway) http.Handler {
	routes := ServiceRoutes{gateway: g}

	r := chi.NewRouter()
	r.Get("/status", apierrors.ErrorHandler(routes.getStatus))
	r.Get("/{service}/identity", apierrors.ErrorHandler(routes.getIdentity))
	return r
}

// getIdentity
//
//	@Summary		Get the current user
//	@Description	Resolve the request's credentials and return the confirmed identity
//	@Tags			identity
//	@Produce		json
//	@Param			service	path		string	true	"Service name (jira or confluence)"
//	@Success		200		{object}	gateway.Summary
//	@Failure		400		{string}	string	"Bad Request"
//	@Failure		401		{string}	string	"Unauthorized"
//	@Failure		499		{string}	string	"Client Closed Request"
//	@Failure		500		{string}	string	"Internal Server Error"
//	@Failure		502		{string}	string	"Bad Gateway"
//	@Router			/api/v1/{service}/identity [get]
func (s *ServiceRoutes) getIdentity(w http.ResponseWriter, r *http.Request) error {
	svc, err := atlassian.ParseService(chi.URLParam(r, "service"))
	if err != nil {
		return apierrors.WithStatus(gwerrors.NewValidationError(err.Error(), err))
	}

	ctx := gateway.WithScope(r.Context())
	h, err := s.gateway.Resolve(ctx, svc, r.Header)
	if err != nil {
		return apierrors.WithStatus(err)
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(h.Summary())
}

// getStatus
//
//	@Summary		Get service status
//	@Description	Report which services have a base configuration. Never returns secrets.
//	@Tags			identity
//	@Produce		json
//	@Success		200	{array}	gateway.ServiceStatus
//	@Router			/api/v1/status [get]
func (s *ServiceRoutes) getStatus(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(s.gateway.Status())
}
