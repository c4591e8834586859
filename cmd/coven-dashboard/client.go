// ABOUTME: health and sessions commands that query a running dashboard over HTTP
// ABOUTME: The base URL comes from --url or is derived from the config file

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-dashboard/internal/config"
	"github.com/2389/coven-dashboard/internal/gateway"
	"github.com/2389/coven-dashboard/internal/server"
)

const requestTimeout = 10 * time.Second

// baseURL returns the dashboard's address as seen from this machine.
func baseURL(cfg *config.Config) string {
	if cfg.Tailscale.Enabled {
		scheme := "http"
		if cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel {
			scheme = "https"
		}
		return scheme + "://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Server.HTTPAddr
}

func resolveBaseURL(opts *rootOptions, override string) (string, error) {
	if override != "" {
		return strings.TrimSuffix(override, "/"), nil
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return "", err
	}
	return baseURL(cfg), nil
}

func getJSON(ctx context.Context, url, token string, v any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, e.Error)
		}
		return resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, nil
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running dashboard's health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := resolveBaseURL(opts, url)
			if err != nil {
				return err
			}

			var health server.HealthResponse
			if _, err := getJSON(cmd.Context(), base+"/health", "", &health); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprint(out, "healthy")
			fmt.Fprintf(out, " (gateway: %s, uptime: %s)\n", health.Gateway, time.Duration(health.Uptime*float64(time.Second)).Round(time.Second))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "dashboard base URL (default: derived from config)")
	return cmd
}

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	var url, token string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List agent sessions known to the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = os.Getenv("COVEN_DASHBOARD_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("a login token is required: pass --token or set COVEN_DASHBOARD_TOKEN")
			}

			base, err := resolveBaseURL(opts, url)
			if err != nil {
				return err
			}

			var sessions []gateway.Session
			if _, err := getJSON(cmd.Context(), base+"/api/sessions", token, &sessions); err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sessions)
			}
			return writeSessionsTable(out, sessions)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "dashboard base URL (default: derived from config)")
	cmd.Flags().StringVar(&token, "token", "", "login token (default: $COVEN_DASHBOARD_TOKEN)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func writeSessionsTable(w io.Writer, sessions []gateway.Session) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tKIND\tSTATUS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Key, dash(s.Name), dash(s.Kind), dash(s.Status))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
