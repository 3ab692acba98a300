package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	autherrors "github.com/jrsteele09/go-jobboard-client/internal/errors"
)

const passwordEnv = "JOBBOARD_PASSWORD"

func loginCmd(flags *globalFlags) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}

			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if password == "" {
				password, err = readLine(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
				if err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			if err := a.machine.Bootstrap(ctx); err != nil && !autherrors.Is(err, autherrors.ErrTransientTransport) {
				fmt.Fprintln(cmd.ErrOrStderr(), autherrors.UserMessage(err))
			}

			err = a.machine.Login(ctx, email, password)
			switch {
			case err == nil:
			case autherrors.Is(err, autherrors.ErrAlreadyAuthenticated):
				fmt.Fprintln(cmd.OutOrStdout(), autherrors.UserMessage(err))
				return nil
			case a.machine.Snapshot().IsAuthenticated():
				fmt.Fprintln(cmd.ErrOrStderr(), "Signed in, but credentials could not be saved for next time.")
			default:
				return userError(err)
			}

			user := a.machine.Auth().User
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.Name(), user.Role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (or set "+passwordEnv+")")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func whoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}

			bootErr := a.machine.Bootstrap(cmd.Context())
			state := a.machine.Snapshot()
			if !state.IsAuthenticated() {
				if state.Notice != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), state.Notice)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return bootErr
			}

			u := state.Session.User
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\nrole: %s\nverified: %t\n", u.Name(), u.Email, u.Role, u.Verified)
			if !state.Session.ExpiresAt.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), "access token expires: %s\n", state.Session.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func logoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			if err := a.machine.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func forgotPasswordCmd(flags *globalFlags) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			if _, err := a.client.RequestPasswordReset(cmd.Context(), email); err != nil {
				return userError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "If an account exists for that email, a reset link is on its way.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func resetPasswordCmd(flags *globalFlags) *cobra.Command {
	var resetToken string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password using a reset token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}

			newPassword, err := readLine(cmd.InOrStdin(), cmd.ErrOrStderr(), "New password: ")
			if err != nil {
				return err
			}

			ok, err := a.client.ResetPassword(cmd.Context(), resetToken, newPassword)
			if err != nil {
				return userError(err)
			}
			if !ok {
				return errors.New("password could not be reset, request a new link")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password reset. Sign in with your new password.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&resetToken, "token", "t", "", "Reset token from the email")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

// userError turns err into the message shown to the user, listing field errors
func userError(err error) error {
	var validation *autherrors.ValidationError
	if autherrors.As(err, &validation) {
		var b strings.Builder
		for field, msg := range validation.Messages() {
			if field == "" {
				fmt.Fprintf(&b, "%s\n", msg)
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", field, msg)
		}
		return errors.New(strings.TrimSpace(b.String()))
	}
	return errors.New(autherrors.UserMessage(err))
}

func readLine(in io.Reader, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no input")
	}
	return line, nil
}
