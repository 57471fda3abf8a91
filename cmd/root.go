// Package cmd wires the interpro-loader command line.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/interpro-loader/cmd/configcmd"
	"github.com/tphakala/interpro-loader/cmd/fetch"
	"github.com/tphakala/interpro-loader/cmd/lookup"
	"github.com/tphakala/interpro-loader/cmd/populate"
	"github.com/tphakala/interpro-loader/cmd/summary"
	"github.com/tphakala/interpro-loader/internal/app"
	"github.com/tphakala/interpro-loader/internal/buildinfo"
	"github.com/tphakala/interpro-loader/internal/errors"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitPartial = 2 // populate finished but a later stage failed
)

// RootCommand creates the root command. appCtx is initialized before any
// subcommand runs unless the subcommand opts out with configcmd.SkipInit.
func RootCommand(appCtx *app.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "interpro-loader",
		Short:         "Load InterPro release files into a relational store",
		Version:       appCtx.Build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	setupFlags(rootCmd, &configFile)

	subcommands := []*cobra.Command{
		populate.Command(appCtx),
		summary.Command(appCtx),
		lookup.Command(appCtx),
		fetch.Command(appCtx),
		configcmd.Command(appCtx),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if _, skip := cmd.Annotations[configcmd.SkipInit]; skip {
			return nil
		}
		return appCtx.Init(configFile, cmd.Flags())
	}

	return rootCmd
}

// setupFlags defines the flags shared by every subcommand. Values are read
// through conf.Load, which binds them over the config file and environment.
func setupFlags(rootCmd *cobra.Command, configFile *string) {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/interpro-loader, /etc/interpro-loader)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("db-type", "", "Database backend: sqlite or mysql")
	flags.String("sqlite-path", "", "SQLite database file")
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, build *buildinfo.Context, args []string) int {
	appCtx := app.NewContext(build)
	rootCmd := RootCommand(appCtx)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if closeErr := appCtx.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return exitCode(rootCmd.ErrOrStderr(), err)
}

func exitCode(w io.Writer, err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, populate.ErrPartialRun):
		_, _ = fmt.Fprintln(w, "Warning:", err)
		return ExitPartial
	default:
		_, _ = fmt.Fprintln(w, "Error:", err)
		return ExitFailure
	}
}
