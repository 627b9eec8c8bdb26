package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/supplysync/server/internal/middleware"
	"github.com/supplysync/server/internal/services"
)

// PasswordHash is the output of the hash-password command.
type PasswordHash struct {
	// Wire is what a remote site sends as its Basic auth password
	Wire string `json:"wire"`
	// Stored goes into central.sites[].passwordHash
	Stored string `json:"stored"`
}

// NewHashPasswordCommand creates the hash-password command.
func NewHashPasswordCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Hash a site password for the central server configuration",
		Long: `Hash a site password the way remote sites send it and produce the
bcrypt hash the central server stores for the site. Without an argument the
password is read from the first line of stdin.

Example:
  echo -n secret | syncctl hash-password --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, args)
			if err != nil {
				return err
			}

			wire := services.NewHashService().SitePassword(password)
			stored, err := middleware.HashSitePassword(wire)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}

			result := PasswordHash{Wire: wire, Stored: stored}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Stored)
			return err
		},
	}
}

func readPassword(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password given")
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}
