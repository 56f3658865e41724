package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"

	"github.com/solarpull/solarpull/pkg/log"
	"github.com/solarpull/solarpull/pkg/portal"
	"github.com/solarpull/solarpull/pkg/sites"
)

func main() {
	p := portal.Configured(nil)

	siteIDs := lflag.String("site-ids", "", "Site ids to discover, comma-delimited with optional ranges (e.g. 4760,5000-5100)")
	siteIDsFile := lflag.String("site-ids-file", "", "File listing one site id per line to discover")
	out := lflag.String("sites-out", "./csv/solectria_sites.csv", "Registry file to write")
	merge := lflag.Bool("merge", true, "Keep sites already in --sites-out that were not rediscovered")

	lflag.Configure()
	log.SyncLevel()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, p, *siteIDs, *siteIDsFile, *out, *merge)
	if cerr := p.Close(); cerr != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close portal cache", slog.Any("error", cerr))
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "discovery failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, p *portal.Client, siteIDs, siteIDsFile, out string, merge bool) error {
	ids, err := sites.ParseIDs(siteIDs)
	if err != nil {
		return err
	}
	if siteIDsFile != "" {
		f, err := os.Open(siteIDsFile)
		if err != nil {
			return fmt.Errorf("failed to open site ids file: %w", err)
		}
		fromFile, err := sites.ReadIDs(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", siteIDsFile, err)
		}
		ids = append(ids, fromFile...)
	}
	if len(ids) == 0 {
		return errors.New("no site ids given, set --site-ids or --site-ids-file")
	}

	found, err := sites.Discover(ctx, p, ids)
	if err != nil {
		// still write what was found before the failure
		log.Ctx(ctx).ErrorContext(ctx, "discovery stopped early", slog.Int("found", len(found)), slog.Any("error", err))
	}

	all := found
	if merge {
		existing, lerr := sites.Load(out)
		if lerr == nil {
			all = append(existing.All(), found...)
			all = sites.NewRegistry(all).All()
		} else if !errors.Is(lerr, os.ErrNotExist) {
			return lerr
		}
	}
	if len(all) == 0 {
		log.Ctx(ctx).WarnContext(ctx, "no sites discovered, leaving registry untouched")
		return err
	}

	if serr := sites.Save(out, all); serr != nil {
		return serr
	}
	log.Ctx(ctx).InfoContext(ctx, "wrote site registry", slog.String("path", out), slog.Int("sites", len(all)), slog.Int("discovered", len(found)))
	return err
}
