package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/supplysync/server/internal/config"
	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/repository"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Database   string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for syncctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Inspect and drive the SupplySync changelog",
		Long:  "Operator tool for a SupplySync site: run a sync cycle, inspect cursors and the changelog, and hash site passwords.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogging(opts.Verbose)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a JSON or YAML config file (defaults to CONFIG_PATH)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to a SQLite database, overrides the configured database")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewChangelogCommand(opts))
	cmd.AddCommand(NewHashPasswordCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads the configuration, honouring --config over CONFIG_PATH.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	if o.ConfigPath != "" {
		if err := os.Setenv("CONFIG_PATH", o.ConfigPath); err != nil {
			return nil, err
		}
	}
	return config.Load()
}

// openDatabase opens --db when given, otherwise the configured database.
func (o *RootOptions) openDatabase() (*sql.DB, error) {
	if o.Database != "" {
		slog.Debug("opening database", "path", o.Database)
		return repository.NewSQLiteDB(o.Database)
	}

	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.UsePostgres() {
		slog.Debug("opening postgres database")
		observability.SetDBSystem("postgresql")
		return repository.NewPostgresDB(cfg.DatabaseURL)
	}
	slog.Debug("opening database", "path", cfg.DatabasePath)
	return repository.NewSQLiteDB(cfg.DatabasePath)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
