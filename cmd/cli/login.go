package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginEmail string

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the server and store the token",
	Long: `Login exchanges your credentials for a bearer token and stores it in the
local database. Queued mutations are replayed with this token.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email (prompted when omitted)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	email := loginEmail
	if email == "" {
		fmt.Print("Email: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return err
		}
		email = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	if err := ledger.Login(cmd.Context(), email, string(pw)); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Println("Logged in.")
	return nil
}
