// ABOUTME: init command: writes a config file, creates the database and the account
// ABOUTME: Optionally seeds sample projects, tasks and calendar events for a first look

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-dashboard/internal/auth"
	"github.com/2389/coven-dashboard/internal/config"
	"github.com/2389/coven-dashboard/internal/store"
)

// initAnswers holds everything init asks for.
type initAnswers struct {
	HTTPAddr     string
	DBPath       string
	JWTSecret    string
	GatewayURL   string
	GatewayToken string
	UserName     string

	TailscaleEnabled bool
	TSHostname       string
	TSAuthKey        string
	TSEphemeral      bool
	TSFunnel         bool

	LogLevel  string
	LogFormat string
}

// getDataPath returns the data directory: $XDG_DATA_HOME/coven or ~/.local/share/coven.
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven")
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// renderConfig produces the YAML written by init.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# coven-dashboard configuration\n")
	b.WriteString("# Generated by coven-dashboard init\n\n")

	b.WriteString("server:\n")
	fmt.Fprintf(&b, "  http_addr: %q\n\n", a.HTTPAddr)

	b.WriteString("database:\n")
	fmt.Fprintf(&b, "  path: %q\n\n", a.DBPath)

	b.WriteString("auth:\n")
	fmt.Fprintf(&b, "  jwt_secret: %q\n", a.JWTSecret)
	b.WriteString("  token_ttl: \"24h\"\n\n")

	b.WriteString("gateway:\n")
	fmt.Fprintf(&b, "  url: %q\n", a.GatewayURL)
	if a.GatewayToken != "" {
		fmt.Fprintf(&b, "  token: %q\n", a.GatewayToken)
	}
	b.WriteString("  session_key: \"main\"\n")
	b.WriteString("  message_timeout: \"90s\"\n\n")

	b.WriteString("tailscale:\n")
	fmt.Fprintf(&b, "  enabled: %t\n", a.TailscaleEnabled)
	if a.TailscaleEnabled {
		fmt.Fprintf(&b, "  hostname: %q\n", a.TSHostname)
		if a.TSAuthKey != "" {
			fmt.Fprintf(&b, "  auth_key: %q\n", a.TSAuthKey)
		}
		fmt.Fprintf(&b, "  ephemeral: %t\n", a.TSEphemeral)
		fmt.Fprintf(&b, "  funnel: %t\n", a.TSFunnel)
	}
	b.WriteString("\n")

	b.WriteString("briefing:\n")
	fmt.Fprintf(&b, "  user_name: %q\n", a.UserName)
	b.WriteString("  cache_window: \"30m\"\n\n")

	b.WriteString("poller:\n")
	b.WriteString("  sessions_interval: \"30s\"\n\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&b, "  format: %q\n\n", a.LogFormat)

	b.WriteString("metrics:\n")
	b.WriteString("  enabled: false\n")
	b.WriteString("  path: \"/metrics\"\n")
	return b.String()
}

// seedSampleData adds a few projects, tasks and today's events so the
// dashboard and briefing have something to show.
func seedSampleData(ctx context.Context, st store.Store, now time.Time) error {
	projects := []*store.Project{
		{Title: "Customer journey tracking", Description: "Attribution tracking for marketing campaigns", Status: store.ProjectInProgress, Priority: store.PriorityHigh, Tags: []string{"development", "analytics"}, Position: 1},
		{Title: "Outreach strategy", Description: "Define the outreach automation plan", Status: store.ProjectInProgress, Priority: store.PriorityHigh, Tags: []string{"marketing", "strategy"}, Position: 2},
		{Title: "Lead magnet", Description: "Content for email list building", Status: store.ProjectBacklog, Priority: store.PriorityMedium, Tags: []string{"marketing", "content"}, Position: 3},
	}
	for _, p := range projects {
		if err := st.CreateProject(ctx, p); err != nil {
			return fmt.Errorf("creating sample project: %w", err)
		}
	}

	day := func(n int) string { return now.AddDate(0, 0, n).Format(store.DateLayout) }
	tasks := []*store.Task{
		{Title: "Review the journey tracking plan", Priority: store.PriorityHigh, DueDate: day(2)},
		{Title: "Draft lead magnet outline", Priority: store.PriorityMedium, DueDate: day(5)},
		{Title: "Schedule outreach kickoff", Priority: store.PriorityHigh, DueDate: day(1)},
	}
	for _, t := range tasks {
		if err := st.CreateTask(ctx, t); err != nil {
			return fmt.Errorf("creating sample task: %w", err)
		}
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	events := []*store.CalendarEvent{
		{Summary: "Team standup", StartsAt: midnight.Add(10 * time.Hour), EndsAt: midnight.Add(10*time.Hour + 15*time.Minute)},
		{Summary: "Planning review", StartsAt: midnight.Add(15 * time.Hour), EndsAt: midnight.Add(16 * time.Hour), Location: "Room 2"},
	}
	for _, ev := range events {
		if err := st.CreateCalendarEvent(ctx, ev); err != nil {
			return fmt.Errorf("creating sample event: %w", err)
		}
	}
	return nil
}

// createAccount stores the dashboard login.
func createAccount(ctx context.Context, st store.SettingsStore, username, password string) error {
	if err := auth.SetPassword(ctx, st, password); err != nil {
		return err
	}
	if err := st.SetSetting(ctx, store.SettingUsername, username); err != nil {
		return fmt.Errorf("storing username: %w", err)
	}
	if err := st.SetSetting(ctx, store.SettingTheme, "dark"); err != nil {
		return fmt.Errorf("storing theme: %w", err)
	}
	return nil
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a config file, database and login interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, opts)
		},
	}
}

func runInit(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	p := newPrompter(cmd.InOrStdin(), out)
	green := color.New(color.FgGreen)

	fmt.Fprintln(out, "coven-dashboard setup")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	outputFile := p.ask("Config file path", opts.configPath)
	if _, err := os.Stat(outputFile); err == nil {
		if !p.confirm("File exists. Overwrite?", false) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}
	a := initAnswers{JWTSecret: secret}

	fmt.Fprintln(out, "\n--- Server ---")
	a.HTTPAddr = p.ask("HTTP address", "localhost:3000")
	a.DBPath = p.ask("SQLite database path", filepath.Join(getDataPath(), "dashboard.db"))

	fmt.Fprintln(out, "\n--- Agent Gateway ---")
	a.GatewayURL = p.ask("Gateway URL", "ws://127.0.0.1:18789")
	a.GatewayToken = p.ask("Gateway token (leave empty if none)", "")

	fmt.Fprintln(out, "\n--- Tailscale ---")
	a.TailscaleEnabled = p.confirm("Enable Tailscale?", false)
	if a.TailscaleEnabled {
		a.TSHostname = p.ask("Tailscale hostname", "coven-dashboard")
		a.TSAuthKey = p.ask("Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.TSEphemeral = p.confirm("Ephemeral node?", false)
		a.TSFunnel = p.confirm("Enable Funnel (public HTTPS)?", false)
	}

	fmt.Fprintln(out, "\n--- Briefing & Logging ---")
	a.UserName = p.ask("Your name (used in the briefing)", "")
	a.LogLevel = p.ask("Log level (debug/info/warn/error)", "info")
	a.LogFormat = p.ask("Log format (text/json)", "text")

	content := renderConfig(a)
	if _, err := config.Parse([]byte(content), false); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	green.Fprintf(out, "\n  ✓ Created config: %s\n", outputFile)

	if err := os.MkdirAll(filepath.Dir(a.DBPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(a.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()
	green.Fprintf(out, "  ✓ Database: %s\n\n", a.DBPath)

	username := p.ask("Dashboard username", "richard")
	password, err := p.newPassword()
	if err != nil {
		return err
	}
	if err := createAccount(ctx, st, username, password); err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
		}
		return err
	}
	green.Fprintf(out, "  ✓ Created login for %s\n", username)

	if p.confirm("Add sample projects, tasks and events?", true) {
		if err := seedSampleData(ctx, st, time.Now()); err != nil {
			return err
		}
		green.Fprintln(out, "  ✓ Added sample data")
	}

	fmt.Fprintln(out)
	color.New(color.FgYellow).Fprintln(out, "  Ready to go:")
	fmt.Fprintf(out, "    coven-dashboard serve --config %s\n\n", outputFile)
	return nil
}
