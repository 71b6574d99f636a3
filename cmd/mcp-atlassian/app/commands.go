// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the mcp-atlassian command-line application.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-core/env"

	"github.com/yanintorres/mcp-atlassian/pkg/auth/oauth"
	"github.com/yanintorres/mcp-atlassian/pkg/config"
	"github.com/yanintorres/mcp-atlassian/pkg/gateway"
	"github.com/yanintorres/mcp-atlassian/pkg/logger"
)

const (
	flagDebug        = "debug"
	flagEnvFile      = "env-file"
	flagReadOnly     = "read-only"
	flagEnabledTools = "enabled-tools"
)

// NewRootCmd creates a new root command for the mcp-atlassian CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "mcp-atlassian",
		DisableAutoGenTag: true,
		Short:             "MCP gateway for Jira and Confluence",
		Long: `mcp-atlassian exposes Jira and Confluence to MCP clients.

Credentials come either from the process environment (the global credentials)
or from each request's headers, so one server can act for many users.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := loadEnvFile(viper.GetString(flagEnvFile)); err != nil {
				return err
			}
			logger.Initialize()
			return nil
		},
	}

	rootCmd.PersistentFlags().Bool(flagDebug, false, "Enable debug mode")
	rootCmd.PersistentFlags().String(flagEnvFile, "", "Load environment variables from a dotenv file")
	rootCmd.PersistentFlags().Bool(flagReadOnly, false, "Disable write operations (overrides READ_ONLY_MODE)")
	rootCmd.PersistentFlags().String(flagEnabledTools, "", "Comma separated list of tools to expose (overrides ENABLED_TOOLS)")
	for _, name := range []string{flagDebug, flagEnvFile, flagReadOnly, flagEnabledTools} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			logger.Errorf("Error binding %s flag: %v", name, err)
		}
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

// loadEnvFile loads path into the process environment. Variables that are
// already set keep their value.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("env file %s does not exist", path)
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// loadBase reads the global configuration from the environment, filling
// missing OAuth tokens from the credential store, and applies the policy
// flags on top.
func loadBase(ctx context.Context, envReader env.Reader, store *oauth.Store) *config.BaseContext {
	base := config.LoadFromEnv(envReader, config.WithTokenLoader(store.TokenLoader(ctx)))
	return base.WithPolicy(policyOverrides(base.Policy()))
}

func policyOverrides(p config.Policy) config.Policy {
	if viper.GetBool(flagReadOnly) {
		p.ReadOnly = true
	}
	if tools := viper.GetString(flagEnabledTools); tools != "" {
		p.EnabledTools = config.ParseToolList(tools)
	}
	return p
}

// newGateway builds the gateway over the environment configuration. Refreshed
// global OAuth tokens are written back to store.
func newGateway(ctx context.Context, envReader env.Reader, store *oauth.Store) (*gateway.Gateway, error) {
	base := loadBase(ctx, envReader, store)
	for _, svc := range base.Available() {
		logger.Debugf("%s base configuration available", svc.DisplayName())
	}
	g, err := gateway.New(base, gateway.WithPersister(store.Persister()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	return g, nil
}
