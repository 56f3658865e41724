package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/solarpull/solarpull/pkg/collector"
	"github.com/solarpull/solarpull/pkg/log"
	"github.com/solarpull/solarpull/pkg/metrics"
	"github.com/solarpull/solarpull/pkg/portal"
	"github.com/solarpull/solarpull/pkg/server"
	"github.com/solarpull/solarpull/pkg/sites"
	"github.com/solarpull/solarpull/pkg/storage"
	"github.com/solarpull/solarpull/pkg/window"
)

func main() {
	// init packages
	rec := metrics.NewRecorder(prometheus.DefaultRegisterer)
	p := portal.Configured(rec)
	l := storage.Configured()
	reg := sites.Configured()

	a := window.New(p, rec)
	c := collector.New(a, l, rec)

	// init server
	srv := server.Configured(a, c, reg, prometheus.DefaultGatherer)

	// parse flags
	lflag.Configure()
	log.SyncLevel()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := l.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
		if err := p.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close portal cache", "error", err)
		}
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
