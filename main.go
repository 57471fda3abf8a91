package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/interpro-loader/cmd"
	"github.com/tphakala/interpro-loader/internal/buildinfo"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Execute(ctx, buildinfo.New(version, buildDate), os.Args[1:])
	stop()
	os.Exit(code)
}
