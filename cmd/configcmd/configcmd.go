// Package configcmd implements the config command group.
package configcmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/interpro-loader/internal/app"
	"github.com/tphakala/interpro-loader/internal/conf"
)

// SkipInit is a command annotation telling the root command not to load
// settings before running it.
const SkipInit = "skip-init"

// Command returns the config command group.
func Command(appCtx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(initCommand(), showCommand(appCtx))
	return cmd
}

func initCommand() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write the default configuration file",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{SkipInit: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := conf.WriteDefaultConfig(path, overwrite); err != nil {
				return err
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", abs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func showCommand(appCtx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := appCtx.Settings.Redacted().MarshalYAMLBytes()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if appCtx.Settings.ConfigFile != "" {
				_, _ = fmt.Fprintf(out, "# %s\n", appCtx.Settings.ConfigFile)
			}
			_, err = out.Write(data)
			return err
		},
	}
}
