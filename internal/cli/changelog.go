package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/repository"
)

// ChangelogOptions holds flags for the changelog command.
type ChangelogOptions struct {
	*RootOptions
	Since  int64
	Limit  int
	Tables []string
}

// NewChangelogCommand creates the changelog command.
func NewChangelogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChangelogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "List changelog entries after a cursor",
		Long: `List changelog entries in cursor order.

Example:
  syncctl changelog --db ./site.db --since 120 --table invoice --table invoice_line`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChangelog(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Since, "since", 0, "only entries after this cursor")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of entries")
	cmd.Flags().StringSliceVar(&opts.Tables, "table", nil, "only entries of these tables")

	return cmd
}

func runChangelog(opts *ChangelogOptions, cmd *cobra.Command) error {
	if opts.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", opts.Limit)
	}

	filter := &models.ChangelogFilter{}
	for _, table := range opts.Tables {
		name := models.TableName(table)
		if !name.IsValid() {
			return fmt.Errorf("unknown table %q", table)
		}
		filter.TableNames = append(filter.TableNames, name)
	}

	db, err := opts.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := repository.NewChangelogRepository(db).Changelogs(cmd.Context(), opts.Since, opts.Limit, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		if entries == nil {
			entries = []models.ChangelogRow{}
		}
		return writeJSON(out, entries)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CURSOR\tTABLE\tRECORD\tACTION\tSTORE\tSITE\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Cursor, e.TableName, e.RecordID, e.RowAction,
			orDash(e.StoreID), siteText(e.LastSyncSiteID), e.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func siteText(id *int32) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprint(*id)
}
