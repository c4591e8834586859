// ABOUTME: serve command: prints the banner and runs the dashboard server
// ABOUTME: Blocks until the command context is canceled by a signal

package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-dashboard/internal/config"
	"github.com/2389/coven-dashboard/internal/server"
)

const banner = `
                                          _           _     _                         _
  ___ _____   _____ _ __              __| | __ _ ___| |__ | |__   ___   __ _ _ __ __| |
 / __/ _ \ \ / / _ \ '_ \   _____   / _' |/ _' / __| '_ \| '_ \ / _ \ / _' | '__/ _' |
| (_| (_) \ V /  __/ | | | |_____| | (_| | (_| \__ \ | | | |_) | (_) | (_| | | | (_| |
 \___\___/ \_/ \___|_| |_|          \__,_|\__,_|___/_| |_|_.__/ \___/ \__,_|_|  \__,_|
`

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			printStartup(cmd.OutOrStdout(), opts.configPath, cfg)

			logger := setupLogger(cfg.Logging, cmd.OutOrStdout())
			logger.Info("starting coven-dashboard",
				"config", opts.configPath,
				"http_addr", cfg.Server.HTTPAddr,
				"gateway_url", cfg.Gateway.URL,
			)

			srv, err := server.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			return srv.Run(cmd.Context())
		},
	}
}

func printStartup(w io.Writer, configPath string, cfg *config.Config) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(w, banner)
	gray.Fprintf(w, "    version: %s\n\n", version)

	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Config:    %s\n", configPath)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Gateway:   %s\n", cfg.Gateway.URL)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Database:  %s\n", cfg.Database.Path)

	if cfg.Tailscale.Enabled {
		green.Fprint(w, "    ▶ ")
		fmt.Fprint(w, "Tailscale: ")
		cyan.Fprint(w, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Fprint(w, " [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(w, " (ephemeral)")
		}
		fmt.Fprintln(w)
	} else {
		green.Fprint(w, "    ▶ ")
		fmt.Fprintf(w, "HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	if cfg.Metrics.Enabled {
		green.Fprint(w, "    ▶ ")
		fmt.Fprintf(w, "Metrics:   %s\n", cfg.Metrics.Path)
	}

	fmt.Fprintln(w)
}
