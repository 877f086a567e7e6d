package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type credentialFlags struct {
	email    string
	password string
	name     string
}

func (f *credentialFlags) bind(cmd *cobra.Command, withName bool) {
	cmd.Flags().StringVar(&f.email, "email", "", "account email")
	cmd.Flags().StringVar(&f.password, "password", os.Getenv("SUNA_PASSWORD"), "account password (or SUNA_PASSWORD)")
	if withName {
		cmd.Flags().StringVar(&f.name, "name", "", "display name (defaults to the email local part)")
	}
	_ = cmd.MarkFlagRequired("email")
}

func (f *credentialFlags) validate() error {
	if strings.TrimSpace(f.email) == "" {
		return fmt.Errorf("--email is required")
	}
	if f.password == "" {
		return fmt.Errorf("--password or SUNA_PASSWORD is required")
	}
	return nil
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.validate(); err != nil {
				return err
			}
			return withDevice(cmd, opts, func(ctx context.Context, d *device) error {
				account, err := d.client.Register(ctx, creds.name, creds.email, creds.password)
				if err != nil {
					return fmt.Errorf("register failed: %w", err)
				}
				if err := d.signIn(ctx, account); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered and signed in as %s <%s>\n", account.User.Name, account.User.Email)
				return nil
			})
		},
	}
	creds.bind(cmd, true)
	return cmd
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and pull your sessions from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.validate(); err != nil {
				return err
			}
			return withDevice(cmd, opts, func(ctx context.Context, d *device) error {
				account, err := d.client.Login(ctx, creds.email, creds.password)
				if err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
				if err := d.signIn(ctx, account); err != nil {
					return err
				}
				if _, err := d.manager.SyncNow(ctx); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "some pending sessions did not sync: %v\n", err)
				}
				sessions := d.manager.LoadAllSessions(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>, %d session(s) on this device\n",
					account.User.Name, account.User.Email, len(sessions))
				return nil
			})
		},
	}
	creds.bind(cmd, false)
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out; guest sessions on this device stay local",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, opts, func(ctx context.Context, d *device) error {
				if !d.signedIn() {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
					return nil
				}
				if n := len(d.manager.PendingSessions(ctx)); n > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "%d session(s) still pending sync; they will retry after the next login\n", n)
				}
				if err := d.signOut(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}
