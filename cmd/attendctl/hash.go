package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"uniattend/internal/auth"
)

var hashCost int

// hashPasswordCmd prints a bcrypt hash of its argument, or of one line read from stdin.
var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash of a password",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := ""
		if len(args) == 1 {
			secret = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			secret = strings.TrimRight(line, "\r\n")
		}
		hash, err := auth.NewBcrypt(hashCost).Hash(secret)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	hashPasswordCmd.Flags().IntVar(&hashCost, "cost", 10, "bcrypt cost")
}
