package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/candlepin/virt-who/password"
)

var passwordKeyfileFlag string

// NewPasswordCommand builds the password-encryption command, usable both as
// a virt-who subcommand and as the standalone virt-who-password binary.
func NewPasswordCommand(use string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: "Encrypt a password for use as encrypted_password in a virt-who config section",
		RunE:  runPassword,
	}
	cmd.Flags().StringVar(&passwordKeyfileFlag, "keyfile", "/etc/virt-who.d/key", "path to the keyfile, generated if missing")
	return cmd
}

var passwordCmd = NewPasswordCommand("password")

func runPassword(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(passwordKeyfileFlag); os.IsNotExist(err) {
		if err := password.GenerateKeyfile(passwordKeyfileFlag); err != nil {
			return fmt.Errorf("generating keyfile: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "generated new keyfile at %s\n", passwordKeyfileFlag)
	}

	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	var plain string
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		plain = string(raw)
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		plain = strings.TrimRight(line, "\r\n")
	}

	k := password.NewKeyfile(passwordKeyfileFlag)
	ct, err := k.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypting password: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "encrypted_password=%s\n", ct)
	return nil
}
