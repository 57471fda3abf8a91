// Package populate implements the populate command.
package populate

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/interpro-loader/internal/app"
	"github.com/tphakala/interpro-loader/internal/errors"
	"github.com/tphakala/interpro-loader/internal/ingest"
	"github.com/tphakala/interpro-loader/internal/logger"
	"github.com/tphakala/interpro-loader/internal/notification"
)

// ErrPartialRun is returned when the first stage succeeded but a later
// one failed.
var ErrPartialRun = errors.NewStd("population run finished with failed stages")

// Command returns the populate command.
func Command(appCtx *app.Context) *cobra.Command {
	var reportFile string

	cmd := &cobra.Command{
		Use:   "populate",
		Short: "Populate the store from an InterPro release",
		Long: `Populate runs four stages in order: entries, hierarchy, GO cross-references
and protein annotations. Stages whose tables already hold data are skipped
unless --force is given.

Examples:
  # Load the current EBI release into interpro.db
  interpro-loader populate

  # Load local copies into MySQL in chunks of 20000 join rows
  interpro-loader populate --db-type mysql --entries ./entry.list \
    --hierarchy ./ParentChildTreeFile.txt --xref ./interpro2go \
    --join ./protein2ipr.dat.gz --chunk-size 20000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, appCtx, reportFile)
		},
	}

	flags := cmd.Flags()
	flags.String("entries", "", "entry.list location (path or URL)")
	flags.String("hierarchy", "", "ParentChildTreeFile.txt location")
	flags.String("xref", "", "interpro2go location")
	flags.String("join", "", "protein2ipr.dat(.gz) location")
	flags.String("cache-dir", "", "Directory for downloaded sources")
	flags.Int("chunk-size", 0, "Join rows per committed chunk")
	flags.Bool("force", false, "Run stages even when already populated")
	flags.Bool("force-download", false, "Download remote sources even when cached")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	flags.String("metrics-listen", "", "Serve /metrics on this address during the run")
	flags.StringVar(&reportFile, "report", "", "Write the run report as YAML to this file")

	return cmd
}

func run(cmd *cobra.Command, appCtx *app.Context, reportFile string) error {
	ctx := cmd.Context()
	settings := appCtx.Settings

	store, err := appCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			appCtx.Log.Warn("failed to close store", logger.Error(err))
		}
	}()

	fetcher := appCtx.NewFetcher()
	defer fetcher.Close()

	stopMetrics, err := appCtx.ServeMetrics(ctx)
	if err != nil {
		return err
	}
	defer stopMetrics()

	opts := []ingest.Option{
		ingest.WithRecorder(appCtx.Metrics.Ingest),
		ingest.WithProgressInterval(settings.Ingest.ProgressInterval),
		ingest.WithMaxUnresolvedLogged(settings.Ingest.MaxUnresolvedLogged),
	}
	if settings.Notification.Enabled {
		notifier, err := notification.New(settings.Notification, appCtx.Log)
		if err != nil {
			return err
		}
		opts = append(opts, ingest.WithNotifier(notifier))
	}

	orchestrator := ingest.New(store, fetcher, appCtx.Log, opts...)
	report, runErr := orchestrator.Populate(ctx, ingest.Sources{
		Entries:   settings.Sources.Entries,
		Hierarchy: settings.Sources.Hierarchy,
		CrossRef:  settings.Sources.CrossRef,
		Join:      settings.Sources.Join,
	}, ingest.Options{
		ChunkSize: settings.Ingest.ChunkSize,
		Force:     settings.Ingest.Force,
	})

	if report != nil {
		printReport(cmd.OutOrStdout(), report)
		if reportFile != "" {
			if err := writeReport(reportFile, report); err != nil {
				appCtx.Log.Warn("failed to write run report", logger.Error(err))
			}
		}
	}
	if runErr != nil {
		return runErr
	}
	if report.Outcome == ingest.OutcomePartial {
		return fmt.Errorf("%w: %s", ErrPartialRun, report.FailedStage)
	}
	return nil
}

// printReport writes a per-stage table followed by warnings.
func printReport(w io.Writer, report *ingest.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STAGE\tSTATUS\tREAD\tWRITTEN\tMALFORMED\tUNRESOLVED\tDURATION")
	for _, s := range report.Stages {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			s.Stage, s.Status, s.Read, s.Written, s.Malformed, s.Unresolved, s.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()

	_, _ = fmt.Fprintf(w, "\nrun %s: %s in %s\n", report.RunID, report.Outcome, report.Duration().Round(time.Millisecond))
	for _, warning := range report.Warnings {
		_, _ = fmt.Fprintln(w, "warning:", warning)
	}
}

func writeReport(path string, report *ingest.Report) error {
	data, err := report.YAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec // report holds no secrets
}
