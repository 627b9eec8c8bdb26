package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/supplysync/server/internal/config"
	"github.com/supplysync/server/internal/processors"
	"github.com/supplysync/server/internal/services"
	"github.com/supplysync/server/internal/syncapi"
	"github.com/supplysync/server/internal/syncer"
	"github.com/supplysync/server/internal/translations"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle against the central server",
		Long: `Run a single push, pull and integrate cycle for a remote site using
the site's configuration, then print the resulting sync log.

Example:
  syncctl sync --config ./site.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSync(ctx, rootOpts, cmd)
		},
	}
}

func runSync(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Role != config.RoleRemote {
		return fmt.Errorf("sync runs on remote sites, configured role is %q", cfg.Role)
	}
	if opts.Database != "" {
		cfg.DatabasePath = opts.Database
		cfg.DatabaseURL = ""
	}

	db, err := opts.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	hashService := services.NewHashService()
	storage, err := services.NewFileStorageService(cfg.FileStorage.BasePath, cfg.FileStorage.MaxFileSizeMB, hashService)
	if err != nil {
		return fmt.Errorf("failed to open file storage: %w", err)
	}

	client := syncapi.NewClient(syncapi.Config{
		BaseURL:      cfg.Sync.CentralURL,
		SiteName:     cfg.Sync.SiteName,
		PasswordHash: hashService.SitePassword(cfg.Sync.SitePassword),
		Timeout:      cfg.Sync.Timeout(),
		MaxRetries:   cfg.Sync.MaxRetries,
	})

	deps := syncer.Dependencies{FileStorage: storage}
	if cfg.Sync.RunProcessors {
		deps.Processors = processors.NewRunner(db, cfg.Sync.SiteID, processors.Default()...)
	}
	synchroniser := syncer.NewSynchroniser(db, client, translations.DefaultRegistry(), syncer.Config{
		SiteID:          cfg.Sync.SiteID,
		CentralSiteID:   cfg.Sync.CentralSiteID,
		BatchSize:       cfg.Sync.BatchSize,
		RetainBuffer:    cfg.Sync.RetainBuffer,
		IntegrationWait: cfg.Sync.IntegrationWait(),
	}, deps)

	slog.Info("starting sync", "site", cfg.Sync.SiteName, "central", cfg.Sync.CentralURL)
	syncErr := synchroniser.Sync(ctx)

	status, err := synchroniser.Status(ctx)
	if err != nil {
		return err
	}
	if status != nil {
		if err := printSyncLog(cmd.OutOrStdout(), opts.Format, status); err != nil {
			return err
		}
	}
	if syncErr != nil {
		return fmt.Errorf("sync failed: %w", syncErr)
	}
	slog.Info("sync finished")
	return nil
}
