package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alpyxn/moviestar/internal/identity"
)

func newLoginCmd(c *cli) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with your username and password",
		Long: `Sign in with your username and password.

The password is read from the terminal without echo, or as the next line
of standard input when it is not a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())

			if username == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Username: ")
				line, err := readLine(in)
				if err != nil {
					return err
				}
				username = line
			}
			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			password, err := readPassword(cmd.InOrStdin(), in)
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if username == "" || password == "" {
				return errors.New("username and password are required")
			}

			cred, err := c.provider.PasswordLogin(cmd.Context(), username, password)
			if err != nil {
				c.logger.WithError(err).Debug("Password login failed")
				return errors.New("login failed: invalid username or password")
			}
			if err := c.creds.Save(cred); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", displayName(cred))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted when omitted)")
	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cred, err := c.creds.Load()
			if err != nil {
				return err
			}
			if cred == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
				return nil
			}

			session := identity.NewSession(c.provider, cred, c.logger, identity.WithChangeHook(c.persist))
			if err := session.Logout(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: the identity provider session could not be ended: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cred, err := c.creds.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cred == nil {
				fmt.Fprintln(out, "Not logged in.")
				return nil
			}

			fmt.Fprintf(out, "User:    %s\n", displayName(cred))
			if cred.Email != "" {
				fmt.Fprintf(out, "Email:   %s\n", cred.Email)
			}
			fmt.Fprintf(out, "Roles:   %s\n", strings.Join(cred.Roles, ", "))
			fmt.Fprintf(out, "Admin:   %t\n", cred.HasRole(c.cfg.Identity.AdminRole))

			switch {
			case !cred.Expired(0):
				if cred.ExpiresAt.IsZero() {
					fmt.Fprintln(out, "Token:   valid")
				} else {
					fmt.Fprintf(out, "Token:   valid until %s\n", cred.ExpiresAt.Local().Format(time.RFC1123))
				}
			case cred.CanRefresh():
				fmt.Fprintln(out, "Token:   expired, refreshed on next use")
			default:
				fmt.Fprintln(out, "Token:   expired, run `moviestar login`")
			}
			return nil
		},
	}
}

func displayName(cred *identity.Credential) string {
	if cred.Username != "" {
		return cred.Username
	}
	return cred.Subject
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo from a terminal and falls back to a
// plain line otherwise.
func readPassword(raw io.Reader, buffered *bufio.Reader) (string, error) {
	if f, ok := raw.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return readLine(buffered)
}
