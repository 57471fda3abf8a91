// Package summary implements the summary command.
package summary

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/interpro-loader/internal/app"
	"github.com/tphakala/interpro-loader/internal/datastore"
	"github.com/tphakala/interpro-loader/internal/ingest"
	"github.com/tphakala/interpro-loader/internal/logger"
)

// StageState reports whether a stage's target table holds data.
type StageState struct {
	Stage     ingest.Stage `yaml:"stage"`
	Populated bool         `yaml:"populated"`
}

// Result is what the command prints.
type Result struct {
	Counts datastore.Summary `yaml:"counts"`
	Stages []StageState      `yaml:"stages"`
}

// Command returns the summary command.
func Command(appCtx *app.Context) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show stored record counts and which stages are populated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := appCtx.OpenStore()
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					appCtx.Log.Warn("failed to close store", logger.Error(err))
				}
			}()

			result, err := Collect(cmd.Context(), ingest.New(store, nil, appCtx.Log), store)
			if err != nil {
				return err
			}
			return Print(cmd.OutOrStdout(), result, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or yaml")
	return cmd
}

// Collect gathers counts and per-stage state.
func Collect(ctx context.Context, orchestrator *ingest.Orchestrator, store ingest.Store) (*Result, error) {
	counts, err := store.Summarize(ctx)
	if err != nil {
		return nil, err
	}
	result := &Result{Counts: counts}
	for _, stage := range ingest.Stages() {
		populated, err := orchestrator.IsPopulated(ctx, stage)
		if err != nil {
			return nil, err
		}
		result.Stages = append(result.Stages, StageState{Stage: stage, Populated: populated})
	}
	return result, nil
}

// Print renders result as a table or as YAML.
func Print(w io.Writer, result *Result, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	rows := []struct {
		label string
		n     int64
	}{
		{"entry types", result.Counts.Types},
		{"entries", result.Counts.Entries},
		{"parent links", result.Counts.ParentLinks},
		{"GO terms", result.Counts.Terms},
		{"entry-GO links", result.Counts.TermLinks},
		{"proteins", result.Counts.Subjects},
		{"annotations", result.Counts.Annotations},
	}
	for _, row := range rows {
		_, _ = p.Fprintf(tw, "%s\t%d\t\n", row.label, row.n)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(w)
	for _, s := range result.Stages {
		state := "empty"
		if s.Populated {
			state = "populated"
		}
		_, _ = fmt.Fprintf(w, "%-12s %s\n", s.Stage, state)
	}
	return nil
}
