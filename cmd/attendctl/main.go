package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "attendctl",
	Short: "Console tools for the uniattend service",
	Long: `attendctl runs the attendance domain from a terminal.

Available subcommands:
  demo          - Seed demo data and walk through a typical day
  hash-password - Print a bcrypt hash for seeding credentials by hand`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(demoCmd, hashPasswordCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
