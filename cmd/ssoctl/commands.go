package main

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-sso-client/session"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in, refreshing or re-authenticating as needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			displayAppname(a.out, a.config.GetAppName())
			if _, err := a.session.EnsureAuthenticated(cmd.Context(), a.login); err != nil {
				return err
			}
			a.printStatus()
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential state without contacting the realm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.printStatus()
			return nil
		},
	}
}

func newTokenCmd(a *app) *cobra.Command {
	var header, noLogin bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			login := a.login
			if noLogin {
				login = nil
			}
			cred, err := a.session.EnsureAuthenticated(cmd.Context(), login)
			if err != nil {
				return err
			}
			if header {
				fmt.Fprintln(a.out, cred.AuthorizationHeader())
				return nil
			}
			fmt.Fprintln(a.out, cred.AccessToken())
			return nil
		},
	}
	cmd.Flags().BoolVar(&header, "header", false, "print an Authorization header value")
	cmd.Flags().BoolVar(&noLogin, "no-login", false, "fail instead of starting an interactive login")
	return cmd
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the stored credential now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.session.Refresh(cmd.Context()); err != nil {
				return err
			}
			a.printStatus()
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the realm session and remove the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func (a *app) printStatus() {
	ep := a.session.Endpoint()
	state := a.session.State()
	fmt.Fprintf(a.out, "Realm:   %s\n", ep.IssuerURL())
	fmt.Fprintf(a.out, "Client:  %s\n", ep.ClientID)
	fmt.Fprintf(a.out, "State:   %s\n", state)
	if state == session.StateUnauthenticated {
		return
	}

	cred := a.session.Credential()
	if subject := cred.Subject(); subject != "" {
		fmt.Fprintf(a.out, "Subject: %s\n", subject)
	}
	fmt.Fprintf(a.out, "Access token expires:  %s\n", cred.AccessExpiresAt().Local().Format(time.RFC1123))
	fmt.Fprintf(a.out, "Refresh token expires: %s\n", cred.RefreshExpiresAt().Local().Format(time.RFC1123))
}
