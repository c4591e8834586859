// ABOUTME: Root cobra command and shared flag handling
// ABOUTME: Every subcommand reads the config path from the persistent --config flag

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389/coven-dashboard/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "coven-dashboard",
		Short:         "Personal dashboard backed by a coven agent gateway",
		Long:          "coven-dashboard serves a personal dashboard: chat with an agent through the gateway, a daily briefing, and session management.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath(), "path to the config file (.yaml or .toml)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newInitCmd(opts),
		newPasswdCmd(opts),
		newHealthCmd(opts),
		newSessionsCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
