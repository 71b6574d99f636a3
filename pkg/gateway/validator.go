// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

//go:generate mockgen -destination=mocks/mock_validator.go -package=mocks -source=validator.go Validator

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/atlassian/client"
	"github.com/yanintorres/mcp-atlassian/pkg/config"
)

// Validator builds an upstream client for cfg and confirms that the
// credential works.
//
// ts is nil for per-operation credentials. For the process-global OAuth
// credential it yields the current, possibly refreshed, access token.
type Validator interface {
	Validate(ctx context.Context, cfg *config.ServiceConfig, ts oauth2.TokenSource) (*client.Client, *atlassian.Identity, error)
}

// identityValidator confirms credentials with the service's "who am I" call.
type identityValidator struct {
	limiter    *rate.Limiter
	httpClient *http.Client
}

func (v *identityValidator) Validate(
	ctx context.Context, cfg *config.ServiceConfig, ts oauth2.TokenSource,
) (*client.Client, *atlassian.Identity, error) {
	opts := []client.Option{client.WithRateLimiter(v.limiter)}
	if ts != nil {
		opts = append(opts, client.WithTokenSource(ts))
	}
	if v.httpClient != nil {
		opts = append(opts, client.WithHTTPClient(v.httpClient))
	}

	c, err := client.New(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	id, err := c.Myself(ctx)
	if err != nil {
		return nil, nil, err
	}
	return c, id, nil
}
