// Package fetch implements the fetch command.
package fetch

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/interpro-loader/internal/app"
)

// Command returns the fetch command, which downloads every remote source
// into the cache directory so a later populate run reads local files.
func Command(appCtx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download all release files into the source cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fetcher := appCtx.NewFetcher()
			defer fetcher.Close()

			s := appCtx.Settings.Sources
			names := []string{"entries", "hierarchy", "crossref", "join"}
			locations := []string{s.Entries, s.Hierarchy, s.CrossRef, s.Join}

			paths, err := fetcher.Prefetch(cmd.Context(), locations...)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for i, name := range names {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", name, paths[i])
			}
			return tw.Flush()
		},
	}

	flags := cmd.Flags()
	flags.String("entries", "", "entry.list location (path or URL)")
	flags.String("hierarchy", "", "ParentChildTreeFile.txt location")
	flags.String("xref", "", "interpro2go location")
	flags.String("join", "", "protein2ipr.dat(.gz) location")
	flags.String("cache-dir", "", "Directory for downloaded sources")
	flags.Bool("force-download", false, "Download even when a cached copy exists")
	return cmd
}
