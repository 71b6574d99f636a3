// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stacklok/toolhive-core/env"

	"github.com/yanintorres/mcp-atlassian/pkg/api"
	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/oauth"
	"github.com/yanintorres/mcp-atlassian/pkg/gateway"
	"github.com/yanintorres/mcp-atlassian/pkg/logger"
	mcpserver "github.com/yanintorres/mcp-atlassian/pkg/mcp/server"
)

// Transport names accepted by --transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

type serveOptions struct {
	transport string
	host      string
	port      int
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server on stdio or streamable HTTP.

Over stdio every tool call uses the global credentials from the environment.
Over HTTP each request may carry its own credentials in the Authorization
header (Token or Bearer) together with X-Atlassian-Cloud-Id and
X-Atlassian-User-Email. Requests without credentials use the global ones.
The HTTP transport also serves /health and /api/v1.`,
		Args: cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return opts.validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", TransportStdio, "Transport to serve MCP on (stdio or http)")
	cmd.Flags().StringVar(&opts.host, "host", "127.0.0.1", "Host to listen on with the http transport")
	cmd.Flags().IntVar(&opts.port, "port", 8000, "Port to listen on with the http transport")

	return cmd
}

func (o *serveOptions) validate() error {
	if !slices.Contains([]string{TransportStdio, TransportHTTP}, o.transport) {
		return fmt.Errorf("invalid transport %q: must be %s or %s", o.transport, TransportStdio, TransportHTTP)
	}
	if o.port < 0 || o.port > 65535 {
		return fmt.Errorf("invalid port %d", o.port)
	}
	return nil
}

func (o *serveOptions) address() string {
	return net.JoinHostPort(o.host, strconv.Itoa(o.port))
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	ctx := cmd.Context()

	g, err := newGateway(ctx, &env.OSReader{}, oauth.NewStore())
	if err != nil {
		return err
	}
	warnUnavailable(g)

	srv := mcpserver.New(g)
	logger.Infow("registered tools", "tools", srv.Tools())

	if opts.transport == TransportStdio {
		return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	}
	return api.Serve(ctx, opts.address(), api.NewRouter(g, srv.HTTPHandler()))
}

func warnUnavailable(g *gateway.Gateway) {
	available := g.Base().Available()
	for _, svc := range atlassian.Services {
		if slices.Contains(available, svc) {
			continue
		}
		logger.Warnf("%s has no global credentials; its tools need per-request credentials", svc.DisplayName())
	}
}
