package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/solarpull/solarpull/pkg/collector"
	"github.com/solarpull/solarpull/pkg/log"
	"github.com/solarpull/solarpull/pkg/metrics"
	"github.com/solarpull/solarpull/pkg/portal"
	"github.com/solarpull/solarpull/pkg/sites"
	"github.com/solarpull/solarpull/pkg/storage"
	"github.com/solarpull/solarpull/pkg/types"
	"github.com/solarpull/solarpull/pkg/window"
)

const dateLayout = "2006-01-02"

func main() {
	rec := metrics.NewRecorder(prometheus.NewRegistry())
	p := portal.Configured(rec)
	l := storage.Configured()
	reg := sites.Configured()

	startStr := lflag.RequiredString("start", "First day to collect (YYYY-MM-DD, site local)")
	endStr := lflag.String("end", "", "Last day to collect inclusive (YYYY-MM-DD, site local); defaults to --start")
	interval := lflag.String("interval", "1", "Sampling interval in minutes (1, 10 or 60)")
	siteIDs := lflag.String("site-ids", "", "comma-delimited site ids to collect; defaults to every registered site")

	lflag.Configure()
	log.SyncLevel()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code := 0
	if err := run(ctx, p, l, reg, rec, *startStr, *endStr, *interval, *siteIDs); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "collection failed", slog.Any("error", err))
		code = 1
	}
	if err := l.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
	}
	if err := p.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close portal cache", slog.Any("error", err))
	}
	os.Exit(code)
}

func run(ctx context.Context, p *portal.Client, l storage.Loader, reg *sites.Registry, rec *metrics.Recorder, startStr, endStr, intervalStr, siteIDs string) error {
	interval, err := strconv.Atoi(intervalStr)
	if err != nil {
		return fmt.Errorf("invalid --interval: %w", err)
	}
	if _, err := types.GranularityForInterval(interval); err != nil {
		return err
	}

	first, err := time.Parse(dateLayout, startStr)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	last := first
	if endStr != "" {
		last, err = time.Parse(dateLayout, endStr)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
	}
	if last.Before(first) {
		return fmt.Errorf("--end %s is before --start %s", endStr, startStr)
	}

	targets := reg.All()
	if siteIDs != "" {
		targets = nil
		for _, id := range strings.Split(siteIDs, ",") {
			site, err := reg.Get(strings.TrimSpace(id))
			if err != nil {
				return err
			}
			targets = append(targets, site)
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("no sites to collect")
	}

	log.Ctx(ctx).InfoContext(
		ctx,
		"starting collection",
		slog.Int("sites", len(targets)),
		slog.String("start", startStr),
		slog.String("end", last.Format(dateLayout)),
		slog.Int("interval", interval),
	)
	c := collector.New(window.New(p, rec), l, rec)
	return c.CollectAll(ctx, targets, collector.Days(first, last), interval)
}
