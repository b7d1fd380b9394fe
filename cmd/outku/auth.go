package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/LJMStark/outku3-sub001/internal/auth"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	GroupID: "sync",
	Short:   "Manage provider credentials",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an OAuth refresh token",
	Long: `Store the OAuth refresh token used for the calendar and tasks APIs.

Obtain a refresh token for your Google Cloud OAuth client (with the
calendar.readonly and tasks scopes) and paste it here. The token is stored
in tokens.json under the data directory and exchanged for short-lived
access tokens automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprint(os.Stderr, "Refresh token: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("could not read token: %w", err)
		}
		refreshToken := strings.TrimSpace(string(raw))
		if refreshToken == "" {
			return fmt.Errorf("no token entered")
		}

		// Expiry in the past forces an exchange on first use, which also
		// validates the token.
		if err := a.tokens.SetToken(auth.Token{
			RefreshToken: refreshToken,
			Expiry:       time.Now().Add(-time.Minute),
		}); err != nil {
			return err
		}

		if _, err := a.tokens.Token(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: token stored but could not be exchanged yet: %v\n", err)
		} else {
			fmt.Println("Logged in.")
		}
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fileStore := auth.NewFileStore(a.cfg.DataDir)
		tok, err := fileStore.Load()
		if errors.Is(err, auth.ErrNotAuthenticated) {
			fmt.Println("Not logged in.")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("Tokens:  %s\n", fileStore.Path())
		if tok.Expiry.IsZero() || tok.ExpiresWithin(0) {
			fmt.Println("Access:  expired (will refresh on next use)")
		} else {
			fmt.Printf("Access:  valid until %s\n", tok.Expiry.Local().Format(time.RFC1123))
		}
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := auth.NewFileStore(a.cfg.DataDir).Clear(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	authCmd.AddCommand(authLoginCmd, authStatusCmd, authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}
