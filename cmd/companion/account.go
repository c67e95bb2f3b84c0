package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/target/companion-client/internal/bootstrap"
	domainauth "github.com/target/companion-client/internal/domain/auth"
)

type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "account email (prompted when empty)")
	cmd.Flags().StringVar(&f.password, "password", "", "account password (prompted when empty)")
}

func (c *cli) readCredentials(f credentialFlags) (string, string, error) {
	email, err := c.valueOrPrompt(f.email, "Email: ")
	if err != nil {
		return "", "", err
	}
	password, err := c.valueOrPrompt(f.password, "Password: ")
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}

func newLoginCmd(c *cli) *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store a credential for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, password, err := c.readCredentials(flags)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if _, err := app.Sessions.Login(ctx, email, password); err != nil {
					return err
				}
				return c.printSignedIn(ctx, app)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newRegisterCmd(c *cli) *cobra.Command {
	var (
		flags credentialFlags
		name  string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, password, err := c.readCredentials(flags)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if _, err := app.Sessions.Register(ctx, email, password, name); err != nil {
					return err
				}
				return c.printSignedIn(ctx, app)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func (c *cli) printSignedIn(ctx context.Context, app *bootstrap.App) error {
	waitCtx, cancel := context.WithTimeout(ctx, sessionWaitTimeout)
	defer cancel()
	if _, err := app.Sessions.WaitForState(waitCtx, func(s domainauth.SessionState) bool {
		return s == domainauth.SessionAuthenticated
	}); err != nil {
		return fmt.Errorf("wait for sign-in: %w", err)
	}
	principal, _ := app.Sessions.Principal()
	who := principal.Email
	if principal.DisplayName != "" {
		who = fmt.Sprintf("%s <%s>", principal.DisplayName, principal.Email)
	}
	_, err := fmt.Fprintf(c.out, "signed in as %s\n", who)
	return err
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				msg := "signed out"
				if !app.Sessions.Logout(ctx) {
					msg = "signed out locally; the identity service could not be reached"
				}
				_, err := fmt.Fprintln(c.out, msg)
				return err
			})
		},
	}
}

func newResetPasswordCmd(c *cli) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Request a password reset email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := c.valueOrPrompt(email, "Email: ")
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if err := app.Sessions.ResetPassword(ctx, addr); err != nil {
					return err
				}
				_, err := fmt.Fprintf(c.out, "password reset requested for %s\n", addr)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (prompted when empty)")
	return cmd
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account the backend sees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				user, err := app.API.Me(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(c.out, "%s (%s) id=%s active=%t\n", user.Username, user.Email, user.ID, user.IsActive)
				return err
			})
		},
	}
}
