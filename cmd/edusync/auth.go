package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edusync/edusync/internal/gate"
	"github.com/edusync/edusync/internal/session"
)

var errInvalidCredentials = errors.New("invalid credentials")

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			s := a.start(ctx)
			if route, _ := gate.Lookup(gate.LoginPath); gate.Decide(s, route) == gate.RedirectToHome {
				fmt.Fprintf(a.out, "Already logged in as %s <%s>\n", s.User.Name, s.User.Email)
				return nil
			}

			if email == "" {
				if email, err = a.promptLine("Email: "); err != nil {
					return err
				}
			}
			password, err := a.promptPassword("Password: ")
			if err != nil {
				return err
			}

			user, err := a.session.Login(ctx, email, password)
			if errors.Is(err, session.ErrInvalidCredentials) {
				return errInvalidCredentials
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s <%s> (%s)\n", user.Name, user.Email, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (prompted when empty)")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			a.session.Logout(cmd.Context())
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.start(cmd.Context())
			if !s.IsAuthenticated() {
				fmt.Fprintln(a.out, "Not logged in")
				return nil
			}
			fmt.Fprintf(a.out, "%s <%s> (%s)\n", s.User.Name, s.User.Email, s.User.Role)
			return nil
		},
	}
}

func newMenuCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "List the views available to the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.start(cmd.Context())
			if !s.IsAuthenticated() {
				fmt.Fprintln(a.out, "Not logged in. Run `edusync login`.")
				return nil
			}
			fmt.Fprintf(a.out, "Welcome, %s\n", s.User.Name)
			for _, r := range gate.Menu(s) {
				fmt.Fprintf(a.out, "  %-24s %s\n", r.Path, r.Title)
			}
			return nil
		},
	}
}
