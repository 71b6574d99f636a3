// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanintorres/mcp-atlassian/pkg/config"
	"github.com/yanintorres/mcp-atlassian/pkg/gateway"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	base, err := config.NewBaseContext(config.Policy{})
	require.NoError(t, err)
	g, err := gateway.New(base)
	require.NoError(t, err)

	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.Copy(io.Discard, r.Body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		w.Header().Set("X-Test-Handler", "mcp")
		w.WriteHeader(http.StatusAccepted)
	})
	return NewRouter(g, mcp)
}

func TestNewRouter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		method      string
		path        string
		body        io.Reader
		wantStatus  int
		wantHandler string
		wantJSON    bool
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusNoContent},
		{name: "version", method: http.MethodGet, path: "/api/v1/version", wantStatus: http.StatusOK, wantJSON: true},
		{name: "status", method: http.MethodGet, path: "/api/v1/status", wantStatus: http.StatusOK, wantJSON: true},
		{name: "identity without credentials", method: http.MethodGet, path: "/api/v1/jira/identity", wantStatus: http.StatusInternalServerError},
		{name: "mcp endpoint", method: http.MethodPost, path: "/mcp", body: strings.NewReader(`{}`), wantStatus: http.StatusAccepted, wantHandler: "mcp"},
		{name: "mcp subpath", method: http.MethodDelete, path: "/mcp/session", wantStatus: http.StatusAccepted, wantHandler: "mcp"},
		{name: "unknown", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, tt.body))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantHandler, rec.Header().Get("X-Test-Handler"))
			if tt.wantJSON {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestNewRouter_Version(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Contains(t, got["version"], "build-")
}

func TestRequestBodySizeLimitMiddleware(t *testing.T) {
	t.Parallel()

	const limit = 1024

	readAll := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name          string
		size          int
		contentLength int64
		wantStatus    int
	}{
		{name: "empty", size: 0, wantStatus: http.StatusOK},
		{name: "below limit", size: limit - 1, wantStatus: http.StatusOK},
		{name: "at limit", size: limit, wantStatus: http.StatusOK},
		{name: "declared too large", size: limit + 1, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "understated length", size: limit + 100, contentLength: limit - 1, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(make([]byte, tt.size)))
			if tt.contentLength != 0 {
				req.ContentLength = tt.contentLength
			}
			rec := httptest.NewRecorder()
			requestBodySizeLimitMiddleware(limit)(readAll).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
