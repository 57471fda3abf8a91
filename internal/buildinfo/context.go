// Package buildinfo carries build-time metadata that is not part of the
// user configuration.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

const unknown = "unknown"

// Context holds values injected with -ldflags at build time.
type Context struct {
	// Version is the git tag the binary was built from.
	Version string
	// BuildDate is the time the binary was built.
	BuildDate string
}

// New returns a Context, falling back to the module version recorded by
// the Go toolchain when version is empty.
func New(version, buildDate string) *Context {
	if version == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	return &Context{Version: version, BuildDate: buildDate}
}

// GetVersion returns the version or "unknown".
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate returns the build date or "unknown".
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// Release is the identifier reported to Sentry.
func (c *Context) Release() string {
	return fmt.Sprintf("interpro-loader@%s", c.GetVersion())
}

// String is the one-line version banner.
func (c *Context) String() string {
	return fmt.Sprintf("interpro-loader %s (built %s)", c.GetVersion(), c.GetBuildDate())
}
