package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// passwordEnv lets scripts pass a password without putting it on the
// command line.
const passwordEnv = "BLOOM_PASSWORD"

func newAuthCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the signed-in account",
	}

	var email, password string
	credentials := func(c *cobra.Command) {
		c.Flags().StringVar(&email, "email", "", "account email")
		c.Flags().StringVar(&password, "password", "", "account password (or set "+passwordEnv+")")
		_ = c.MarkFlagRequired("email")
	}
	resolvePassword := func() (string, error) {
		if password != "" {
			return password, nil
		}
		if p := os.Getenv(passwordEnv); p != "" {
			return p, nil
		}
		return "", errors.New("a password is required")
	}

	signin := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := resolvePassword()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			u, err := a.auth.SignInWithPassword(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", u.Email)
			return nil
		},
	}
	credentials(signin)

	signup := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := resolvePassword()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			u, err := a.auth.SignUpWithPassword(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s.\n", u.DisplayName)
			return nil
		},
	}
	credentials(signup)

	signout := &cobra.Command{
		Use:   "signout",
		Short: "Sign out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			a.auth.SignOut()
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			u := a.auth.CurrentUser()
			if u == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", u.DisplayName, u.Email)
			return nil
		},
	}

	var resetEmail string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Send a password reset token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.auth.SendPasswordReset(cmd.Context(), resetEmail); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "If an account exists for that email, a reset token is on its way.")
			return nil
		},
	}
	reset.Flags().StringVar(&resetEmail, "email", "", "account email")
	_ = reset.MarkFlagRequired("email")

	cmd.AddCommand(signin, signup, signout, whoami, reset)
	return cmd
}
