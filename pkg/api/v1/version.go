// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yanintorres/mcp-atlassian/pkg/logger"
	"github.com/yanintorres/mcp-atlassian/pkg/versions"
)

// VersionRouter sets up the version route.
func VersionRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", getVersion)
	return r
}

type versionResponse struct {
	Version string `json:"version"`
}

//	 getVersion
//		@Summary		Get server version
//		@Description	Returns the version of the gateway
//		@Tags			system
//		@Produce		json
//		@Success		200	{object}	versionResponse
//		@Router			/api/v1/version [get]
func getVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(versionResponse{Version: versions.GetVersionInfo().Version}); err != nil {
		logger.Errorf("Failed to marshal version info: %v", err)
		http.Error(w, "Failed to marshal version info", http.StatusInternalServerError)
	}
}
