// Package app builds the process-wide services a command needs from the
// loaded settings and tears them down again.
package app

import (
	"context"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/tphakala/interpro-loader/internal/buildinfo"
	"github.com/tphakala/interpro-loader/internal/conf"
	"github.com/tphakala/interpro-loader/internal/datastore"
	"github.com/tphakala/interpro-loader/internal/errors"
	"github.com/tphakala/interpro-loader/internal/logger"
	"github.com/tphakala/interpro-loader/internal/observability"
	"github.com/tphakala/interpro-loader/internal/source"
)

const sentryFlushTimeout = 2 * time.Second

// Context is shared by all subcommands. The root command fills it in
// before a subcommand runs and closes it afterwards.
type Context struct {
	Build    *buildinfo.Context
	Settings *conf.Settings
	Log      logger.Logger
	Metrics  *observability.Metrics

	// ConsoleWriter overrides stderr for console logging, mainly in tests.
	ConsoleWriter io.Writer

	central *logger.CentralLogger
	sentry  bool
}

// NewContext returns an empty Context for build.
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build}
}

// Init loads settings from configFile, the environment and flags, then
// builds logging, error telemetry and metrics.
func (c *Context) Init(configFile string, flags *pflag.FlagSet) error {
	settings, err := conf.Load(configFile, flags)
	if err != nil {
		return err
	}
	c.Settings = settings

	central, err := logger.NewCentralLogger(&settings.Logging, logger.WithConsoleWriter(c.ConsoleWriter))
	if err != nil {
		return errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	c.central = central
	c.Log = central.Module("loader")
	if settings.ConfigFile != "" {
		c.Log.Debug("configuration loaded", logger.String("file", settings.ConfigFile))
	}

	reporter, err := errors.InitSentry(errors.SentryConfig{
		DSN:         settings.Telemetry.SentryDSN,
		Environment: settings.Telemetry.Environment,
		Release:     c.Build.Release(),
		SampleRate:  settings.Telemetry.SampleRate,
	})
	if err != nil {
		c.Log.Warn("error telemetry disabled", logger.Error(err))
	} else if reporter.IsEnabled() {
		errors.SetTelemetryReporter(reporter)
		c.sentry = true
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	c.Metrics = metrics
	return nil
}

// OpenStore opens the configured database with query metrics attached.
func (c *Context) OpenStore() (*datastore.Store, error) {
	return datastore.Open(&c.Settings.Database, c.Log,
		datastore.WithQueryObserver(c.Metrics.Ingest.ObserveQuery))
}

// NewFetcher returns a source fetcher with download metrics attached.
// The caller must Close it.
func (c *Context) NewFetcher() *source.Fetcher {
	return source.New(&c.Settings.Sources, c.Log,
		source.WithDownloadObserver(c.Metrics.Ingest.ObserveDownload),
		source.WithForceDownload(c.Settings.Ingest.ForceDownload))
}

// ServeMetrics starts the scrape endpoint when metrics.listen is set. The
// returned function stops it and waits for shutdown.
func (c *Context) ServeMetrics(ctx context.Context) (stop func(), err error) {
	if c.Settings.Metrics.Listen == "" {
		return func() {}, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	wait, err := observability.NewEndpoint(c.Settings.Metrics.Listen, c.Metrics, c.Log).Start(ctx)
	if err != nil {
		cancel()
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryNetwork).
			Context("listen", c.Settings.Metrics.Listen).
			Build()
	}
	return func() {
		cancel()
		wait()
	}, nil
}

// Close writes the metrics textfile, flushes error telemetry and closes
// the log outputs. It is safe to call on a Context that was never
// initialized.
func (c *Context) Close() error {
	var errs []error
	if c.Metrics != nil && c.Settings != nil {
		if err := c.Metrics.WriteTextfile(c.Settings.Metrics.TextfilePath); err != nil {
			errs = append(errs, err)
		}
	}
	if c.sentry {
		errors.FlushSentry(sentryFlushTimeout)
		errors.SetTelemetryReporter(nil)
		c.sentry = false
	}
	if c.central != nil {
		if err := c.central.Close(); err != nil {
			errs = append(errs, err)
		}
		c.central = nil
	}
	return errors.Join(errs...)
}
