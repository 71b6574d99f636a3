// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the gateway as an MCP server over stdio or
// streamable HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/bundle"
	gwerrors "github.com/yanintorres/mcp-atlassian/pkg/errors"
	"github.com/yanintorres/mcp-atlassian/pkg/gateway"
	"github.com/yanintorres/mcp-atlassian/pkg/logger"
	"github.com/yanintorres/mcp-atlassian/pkg/versions"
)

// Tool names.
const (
	ToolJiraCurrentUser       = "jira_get_current_user"
	ToolConfluenceCurrentUser = "confluence_get_current_user"
	ToolAuthStatus            = "atlassian_auth_status"
)

// EndpointPath is where the streamable HTTP transport is mounted.
const EndpointPath = "/mcp"

// Server is the MCP front end of the gateway.
type Server struct {
	gateway   *gateway.Gateway
	mcpServer *server.MCPServer
	tools     []string
}

type toolSpec struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

// New creates the MCP server and registers the tools allowed by the
// gateway's policy.
func New(g *gateway.Gateway) *Server {
	versionInfo := versions.GetVersionInfo()
	s := &Server{
		gateway: g,
		mcpServer: server.NewMCPServer(
			"mcp-atlassian",
			versionInfo.Version,
			server.WithToolCapabilities(false),
			server.WithLogging(),
		),
	}
	s.registerTools()
	return s
}

// Tools returns the names of the registered tools.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

func (s *Server) toolSpecs() []toolSpec {
	return []toolSpec{
		{
			tool: mcp.NewTool(ToolJiraCurrentUser,
				mcp.WithDescription("Return the Jira account the request's credentials authenticate as"),
			),
			handler: s.handleCurrentUser(atlassian.Jira),
		},
		{
			tool: mcp.NewTool(ToolConfluenceCurrentUser,
				mcp.WithDescription("Return the Confluence account the request's credentials authenticate as"),
			),
			handler: s.handleCurrentUser(atlassian.Confluence),
		},
		{
			tool: mcp.NewTool(ToolAuthStatus,
				mcp.WithDescription("Report how each Atlassian service authenticates and whether writes are allowed"),
			),
			handler: s.handleAuthStatus,
		},
	}
}

func (s *Server) registerTools() {
	policy := s.gateway.Base().Policy()
	for _, ts := range s.toolSpecs() {
		if !policy.IsToolEnabled(ts.tool.Name) {
			logger.Debugf("tool %s disabled by ENABLED_TOOLS", ts.tool.Name)
			continue
		}
		s.mcpServer.AddTool(ts.tool, ts.handler)
		s.tools = append(s.tools, ts.tool.Name)
	}
}

func (s *Server) handleCurrentUser(svc atlassian.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = gateway.WithScope(ctx)
		h, err := s.gateway.Resolve(ctx, svc, bundle.MetadataFromContext(ctx))
		if err != nil {
			logger.Warnw("credential resolution failed",
				"service", string(svc), "error_type", gwerrors.TypeOf(err), "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(h.Summary())
	}
}

// AuthStatus is the result of the atlassian_auth_status tool.
type AuthStatus struct {
	Services []gateway.ServiceStatus `json:"services"`
	ReadOnly bool                    `json:"read_only"`
	// WriteBlocked is the message write operations fail with, if any.
	WriteBlocked string `json:"write_blocked,omitempty"`
}

func (s *Server) handleAuthStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	policy := s.gateway.Base().Policy()
	status := AuthStatus{
		Services: s.gateway.Status(),
		ReadOnly: policy.ReadOnly,
	}
	if err := policy.CheckWrite("write to Atlassian"); err != nil {
		status.WriteBlocked = err.Error()
	}
	return jsonResult(status)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// contextFromRequest carries the credential headers of an HTTP request into
// the context of the tool calls it contains.
func contextFromRequest(ctx context.Context, r *http.Request) context.Context {
	return bundle.WithMetadata(ctx, r.Header)
}

// HTTPHandler returns the streamable HTTP transport. Credentials are taken
// from each request's headers.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath(EndpointPath),
		server.WithHTTPContextFunc(contextFromRequest),
	)
}

// ServeStdio serves MCP over in and out until ctx is cancelled or in is
// closed. Stdio carries no credential metadata, so every call uses the
// global credentials.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	logger.Info("starting MCP server on stdio")
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}
