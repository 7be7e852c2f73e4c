// Command virt-who-password is a standalone wrapper around the
// password-encryption subcommand, for systems that package it separately
// from the main virt-who daemon.
package main

import (
	"fmt"
	"os"

	"github.com/candlepin/virt-who/cmd"
)

func main() {
	if err := cmd.ExecutePassword(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
