// ABOUTME: passwd command: replaces the dashboard password
// ABOUTME: Writes directly to the configured database without needing the server

package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-dashboard/internal/auth"
	"github.com/2389/coven-dashboard/internal/store"
)

func newPasswdCmd(opts *rootOptions) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Set the dashboard login password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()

			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			password, err := p.newPassword()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := auth.SetPassword(ctx, st, password); err != nil {
				if errors.Is(err, auth.ErrWeakPassword) {
					return fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
				}
				return err
			}
			if username != "" {
				if err := st.SetSetting(ctx, store.SettingUsername, username); err != nil {
					return fmt.Errorf("storing username: %w", err)
				}
			}
			if err := st.LogActivity(ctx, store.ActivityPasswordChange, "Password set from CLI", ""); err != nil {
				return fmt.Errorf("recording activity: %w", err)
			}

			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "  ✓ Password updated")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "also change the login username")
	return cmd
}
