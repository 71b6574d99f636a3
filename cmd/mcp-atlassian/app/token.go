// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanintorres/mcp-atlassian/pkg/auth/oauth"
	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
	"github.com/yanintorres/mcp-atlassian/pkg/config"
)

type tokenOptions struct {
	clientID     string
	accessToken  string
	refreshToken string
	cloudID      string
	expiresIn    time.Duration
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage stored OAuth tokens",
		Long: `Manage the OAuth tokens kept in the credential store.

Tokens are stored in the system keyring when one is available and in a file
under the XDG data directory otherwise. The server reads them at startup when
the environment has an OAuth client but no tokens, and writes them back after
every refresh.`,
	}

	cmd.AddCommand(newTokenSaveCmd())
	cmd.AddCommand(newTokenShowCmd())

	return cmd
}

func newTokenSaveCmd() *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Store OAuth tokens for a client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return saveToken(cmd.Context(), oauth.NewStore(), opts, time.Now(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.clientID, "client-id", os.Getenv(config.EnvOAuthClientID), "OAuth client id the tokens belong to")
	cmd.Flags().StringVar(&opts.accessToken, "access-token", "", "OAuth access token")
	cmd.Flags().StringVar(&opts.refreshToken, "refresh-token", "", "OAuth refresh token")
	cmd.Flags().StringVar(&opts.cloudID, "cloud-id", "", "Atlassian cloud id the tokens are bound to")
	cmd.Flags().DurationVar(&opts.expiresIn, "expires-in", 0, "Remaining lifetime of the access token (0 for unknown)")

	return cmd
}

func newTokenShowCmd() *cobra.Command {
	var clientID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored OAuth tokens for a client, masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showToken(cmd.Context(), oauth.NewStore(), clientID, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", os.Getenv(config.EnvOAuthClientID), "OAuth client id the tokens belong to")

	return cmd
}

func saveToken(ctx context.Context, store *oauth.Store, opts *tokenOptions, now time.Time, out io.Writer) error {
	if strings.TrimSpace(opts.clientID) == "" {
		return errors.New("--client-id is required")
	}
	if opts.accessToken == "" && opts.refreshToken == "" {
		return errors.New("at least one of --access-token or --refresh-token is required")
	}
	if opts.expiresIn < 0 {
		return errors.New("--expires-in must not be negative")
	}

	o := &types.OAuth{
		ClientID:     opts.clientID,
		TenantID:     opts.cloudID,
		AccessToken:  opts.accessToken,
		RefreshToken: opts.refreshToken,
	}
	if opts.expiresIn > 0 {
		o.ExpiresAt = now.Add(opts.expiresIn)
	}

	if err := store.Save(ctx, opts.clientID, oauth.RecordFrom(o)); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	fmt.Fprintf(out, "Stored tokens for client %s\n", opts.clientID)
	return nil
}

func showToken(ctx context.Context, store *oauth.Store, clientID string, out io.Writer) error {
	if strings.TrimSpace(clientID) == "" {
		return errors.New("--client-id is required")
	}
	rec, ok := store.Load(ctx, clientID)
	if !ok {
		return fmt.Errorf("no stored tokens for client %s", clientID)
	}

	expires := "unknown"
	if t := rec.Expiry(); !t.IsZero() {
		expires = t.Format(time.RFC3339)
	}

	fmt.Fprintf(out, "Client:        %s\n", clientID)
	fmt.Fprintf(out, "Cloud ID:      %s\n", rec.CloudID)
	fmt.Fprintf(out, "Access token:  %s\n", types.Mask(rec.AccessToken))
	fmt.Fprintf(out, "Refresh token: %s\n", types.Mask(rec.RefreshToken))
	fmt.Fprintf(out, "Expires:       %s\n", expires)
	return nil
}
