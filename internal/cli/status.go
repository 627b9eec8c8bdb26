package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/repository"
)

// StatusReport is the output of the status command.
type StatusReport struct {
	Latest         *models.SyncLog `json:"latest,omitempty"`
	LastSuccessful *models.SyncLog `json:"lastSuccessful,omitempty"`
	IsInitialised  bool            `json:"isInitialised"`
	PushCursor     int64           `json:"pushCursor"`
	PullCentral    int64           `json:"pullCursorCentral"`
	PullRemote     int64           `json:"pullCursorRemote"`
	LatestCursor   int64           `json:"latestCursor"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync cursors and the latest sync log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	db, err := opts.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	logs := repository.NewSyncLogRepository(db)
	kv := repository.NewKeyValueRepository(db)

	var report StatusReport
	if report.Latest, err = logs.Latest(ctx); err != nil {
		return err
	}
	if report.LastSuccessful, err = logs.LatestSuccessful(ctx); err != nil {
		return err
	}
	if report.IsInitialised, err = kv.GetBool(ctx, models.KeySyncIsInitialised); err != nil {
		return err
	}
	for key, dst := range map[models.KeyType]*int64{
		models.KeySyncPushCursor:        &report.PushCursor,
		models.KeySyncPullCursorCentral: &report.PullCentral,
		models.KeySyncPullCursorRemote:  &report.PullRemote,
	} {
		if *dst, err = kv.GetCursor(ctx, key); err != nil {
			return err
		}
	}
	if report.LatestCursor, err = repository.NewChangelogRepository(db).LatestCursor(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, report)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "initialised\t%t\n", report.IsInitialised)
	fmt.Fprintf(tw, "latest cursor\t%d\n", report.LatestCursor)
	fmt.Fprintf(tw, "push cursor\t%d\n", report.PushCursor)
	fmt.Fprintf(tw, "pull cursor (central)\t%d\n", report.PullCentral)
	fmt.Fprintf(tw, "pull cursor (remote)\t%d\n", report.PullRemote)
	if report.LastSuccessful != nil {
		fmt.Fprintf(tw, "last successful\t%s\n", report.LastSuccessful.StartedDatetime.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if report.Latest == nil {
		_, err = fmt.Fprintln(out, "no sync has run yet")
		return err
	}
	return printSyncLog(out, "text", report.Latest)
}

func printSyncLog(w io.Writer, format string, l *models.SyncLog) error {
	if format == "json" {
		return writeJSON(w, l)
	}

	state := "finished"
	switch {
	case l.IsRunning():
		state = "running " + string(l.CurrentStep())
	case l.HasError():
		state = "failed"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "sync log\t%s\n", l.ID)
	fmt.Fprintf(tw, "started\t%s\n", l.StartedDatetime.Format(time.RFC3339))
	fmt.Fprintf(tw, "state\t%s\n", state)
	for _, step := range models.SyncSteps {
		p := l.Progress(step)
		if p.StartedDatetime == nil {
			continue
		}
		fmt.Fprintf(tw, "  %s\t%s\n", step, progressText(p))
	}
	if l.HasError() {
		code := models.SyncErrorUnknown
		if l.ErrorCode != nil {
			code = *l.ErrorCode
		}
		fmt.Fprintf(tw, "error\t%s: %s\n", code, *l.ErrorMessage)
	}
	return tw.Flush()
}

func progressText(p *models.SyncStepProgress) string {
	done := "in progress"
	if p.FinishedDatetime != nil {
		done = "done in " + p.FinishedDatetime.Sub(*p.StartedDatetime).Round(time.Millisecond).String()
	}
	if p.Total != nil {
		var n int64
		if p.Done != nil {
			n = *p.Done
		}
		return fmt.Sprintf("%s (%d/%d)", done, n, *p.Total)
	}
	return done
}
