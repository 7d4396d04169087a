package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edusync/edusync/internal/accounts"
	"github.com/edusync/edusync/internal/apiclient"
	"github.com/edusync/edusync/internal/gate"
)

var errNotLoggedIn = errors.New("not logged in; run `edusync login`")

// requireView runs the gate for path. Role mismatches look exactly like a
// command that does not exist.
func requireView(a *app, cmd *cobra.Command, path string) error {
	s := a.start(cmd.Context())
	switch gate.Resolve(s, path) {
	case gate.Render:
		return nil
	case gate.RedirectToLogin:
		return errNotLoggedIn
	default:
		root := cmd.Root()
		return fmt.Errorf("unknown command %q for %q", "teachers", root.Name())
	}
}

func newTeachersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teachers",
		Short: "Manage teacher accounts (administrators only)",
	}
	cmd.AddCommand(
		newTeachersListCmd(opts),
		newTeachersCreateCmd(opts),
		newTeachersEditCmd(opts),
		newTeachersDeleteCmd(opts),
	)
	return cmd
}

// withRegistry opens the app, applies the gate and hands over to fn.
func withRegistry(opts *rootOptions, fn func(a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := opts.app(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := requireView(a, cmd, gate.RegistryPath); err != nil {
			return err
		}
		return fn(a, cmd, args)
	}
}

func newTeachersListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List teacher accounts",
		Args:  cobra.NoArgs,
		RunE: withRegistry(opts, func(a *app, cmd *cobra.Command, args []string) error {
			if err := a.accounts.List(cmd.Context()); err != nil {
				return err
			}
			printAccounts(a, a.accounts.Accounts())
			return nil
		}),
	}
}

func printAccounts(a *app, list []accounts.Account) {
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No teachers registered")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL")
	for _, acc := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", acc.ID, acc.Name, acc.Email)
	}
	_ = tw.Flush()
}

func newTeachersCreateCmd(opts *rootOptions) *cobra.Command {
	var f accounts.Fields

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a teacher account",
		Args:  cobra.NoArgs,
		RunE: withRegistry(opts, func(a *app, cmd *cobra.Command, args []string) error {
			var err error
			if f.Name == "" {
				if f.Name, err = a.promptLine("Name: "); err != nil {
					return err
				}
			}
			if f.Email == "" {
				if f.Email, err = a.promptLine("Email: "); err != nil {
					return err
				}
			}
			if f.Password == "" {
				if f.Password, err = a.promptPassword("Password: "); err != nil {
					return err
				}
			}
			if f.PasswordConfirmation == "" {
				if f.PasswordConfirmation, err = a.promptPassword("Confirm password: "); err != nil {
					return err
				}
			}

			err = a.accounts.Create(cmd.Context(), f)
			fmt.Fprintln(a.out, a.accounts.View().Status.Message)
			if err != nil {
				return fieldErrorsOr(err)
			}
			printAccounts(a, a.accounts.Accounts())
			return nil
		}),
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "full name")
	cmd.Flags().StringVar(&f.Email, "email", "", "email address")
	cmd.Flags().StringVar(&f.Password, "password", "", "initial password (prompted when empty)")
	cmd.Flags().StringVar(&f.PasswordConfirmation, "password-confirmation", "", "password confirmation (prompted when empty)")
	return cmd
}

func newTeachersEditCmd(opts *rootOptions) *cobra.Command {
	var name, email, password, confirmation string

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Edit a teacher account; the password changes only with --password",
		Args:  cobra.ExactArgs(1),
		RunE: withRegistry(opts, func(a *app, cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := findAccount(a, cmd, args[0])
			if err != nil {
				return err
			}
			if err := a.accounts.OpenEdit(target); err != nil {
				return err
			}

			staged := a.accounts.View().Edit.Target
			if cmd.Flags().Changed("name") {
				staged.Name = name
			}
			if cmd.Flags().Changed("email") {
				staged.Email = email
			}
			if password != "" && confirmation == "" {
				if confirmation, err = a.promptPassword("Confirm password: "); err != nil {
					a.accounts.CancelEdit()
					return err
				}
			}
			if password == "" {
				confirmation = ""
			}
			if err := a.accounts.EditFields(staged.Name, staged.Email, password, confirmation); err != nil {
				return err
			}

			err = a.accounts.SubmitEdit(ctx)
			fmt.Fprintln(a.out, a.accounts.View().Status.Message)
			if err != nil {
				return fieldErrorsOr(err)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&email, "email", "", "new email")
	cmd.Flags().StringVar(&password, "password", "", "new password; leave empty to keep the current one")
	cmd.Flags().StringVar(&confirmation, "password-confirmation", "", "new password confirmation (prompted when --password is set)")
	return cmd
}

func newTeachersDeleteCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a teacher account",
		Args:  cobra.ExactArgs(1),
		RunE: withRegistry(opts, func(a *app, cmd *cobra.Command, args []string) error {
			target, err := findAccount(a, cmd, args[0])
			if err != nil {
				return err
			}
			if err := a.accounts.OpenDelete(target); err != nil {
				return err
			}
			if !yes {
				ok, err := a.confirm(fmt.Sprintf("Delete %s <%s>?", target.Name, target.Email))
				if err != nil {
					a.accounts.CancelDelete()
					return err
				}
				if !ok {
					a.accounts.CancelDelete()
					fmt.Fprintln(a.out, "Cancelled")
					return nil
				}
			}

			err = a.accounts.ConfirmDelete(cmd.Context())
			fmt.Fprintln(a.out, a.accounts.View().Status.Message)
			return err
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// findAccount loads the collection and returns the account with id.
func findAccount(a *app, cmd *cobra.Command, id string) (accounts.Account, error) {
	if err := a.accounts.List(cmd.Context()); err != nil {
		return accounts.Account{}, err
	}
	for _, acc := range a.accounts.Accounts() {
		if acc.ID.String() == id {
			return acc, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("teacher %s not found", id)
}

// fieldErrorsOr expands a validation response into one line per field and
// returns any other error unchanged.
func fieldErrorsOr(err error) error {
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) || len(apiErr.FieldNames()) == 0 {
		return err
	}
	msg := "validation failed:"
	for _, f := range apiErr.FieldNames() {
		msg += fmt.Sprintf("\n  %s: %s", f, apiErr.FieldError(f))
	}
	return errors.New(msg)
}
