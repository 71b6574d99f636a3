// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"

	"github.com/stacklok/toolhive-core/env"

	"github.com/yanintorres/mcp-atlassian/pkg/atlassian"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/oauth"
	gwerrors "github.com/yanintorres/mcp-atlassian/pkg/errors"
	"github.com/yanintorres/mcp-atlassian/pkg/gateway"
	"github.com/yanintorres/mcp-atlassian/pkg/logger"
)

// maxCheckRetries caps --retries.
const maxCheckRetries = 10

var errCheckFailed = errors.New("credential check failed")

func newCheckCmd() *cobra.Command {
	var retries int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the global credentials",
		Long: `Resolve and validate the global credentials of every configured service.

Upstream failures (network errors, 5xx responses) are retried with exponential
backoff. Rejected or misconfigured credentials fail immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if retries < 0 || retries > maxCheckRetries {
				return fmt.Errorf("--retries must be between 0 and %d", maxCheckRetries)
			}
			g, err := newGateway(cmd.Context(), &env.OSReader{}, oauth.NewStore())
			if err != nil {
				return err
			}
			return checkServices(cmd.Context(), g, retries, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&retries, "retries", 3, "Retries for upstream failures per service")

	return cmd
}

// checkServices validates the global handle of every available service and
// prints one line per service to out.
func checkServices(ctx context.Context, g *gateway.Gateway, retries int, out io.Writer) error {
	available := g.Base().Available()
	if len(available) == 0 {
		return fmt.Errorf("%w: no service has global credentials", errCheckFailed)
	}

	failed := 0
	for _, svc := range available {
		h, err := checkService(ctx, g, svc, retries)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s: FAILED (%s): %v\n", svc.DisplayName(), gwerrors.TypeOf(err), err)
			continue
		}
		s := h.Summary()
		fmt.Fprintf(out, "%s: OK as %s (%s)\n", svc.DisplayName(), displayIdentity(s), s.AuthType)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d services", errCheckFailed, failed, len(available))
	}
	return nil
}

func checkService(ctx context.Context, g *gateway.Gateway, svc atlassian.Service, retries int) (*gateway.Handle, error) {
	operation := func() (*gateway.Handle, error) {
		h, err := g.Resolve(ctx, svc, nil)
		if err != nil && !gwerrors.Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return h, err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(retries+1)), // #nosec G115 -- retries is bounded by maxCheckRetries
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Warnf("checking %s failed: %v. Retrying in %s...", svc.DisplayName(), err, d)
		}),
	)
}

func displayIdentity(s gateway.Summary) string {
	switch {
	case s.DisplayName != "" && s.Email != "":
		return fmt.Sprintf("%s <%s>", s.DisplayName, s.Email)
	case s.DisplayName != "":
		return s.DisplayName
	case s.Email != "":
		return s.Email
	}
	return s.AccountID
}
