package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/solarpull/solarpull/pkg/export"
	"github.com/solarpull/solarpull/pkg/log"
	"github.com/solarpull/solarpull/pkg/metrics"
	"github.com/solarpull/solarpull/pkg/types"
)

var (
	// ErrNoData is returned when no period in the range produced data.
	ErrNoData = errors.New("no data for range")
	// ErrAcquisition wraps a fetch failure that survived the fetcher's retry.
	ErrAcquisition = errors.New("failed to acquire export")
	// ErrInvalidRange is returned when end is not after start.
	ErrInvalidRange = errors.New("end must be after start")
)

// Fetcher returns the raw export for one window. An empty string means the
// portal has nothing for that window.
type Fetcher interface {
	Fetch(ctx context.Context, site types.Site, spec types.WindowSpec) (string, error)
}

// Assembler stitches per-period exports into device blocks covering an
// arbitrary range.
type Assembler struct {
	fetcher Fetcher
	metrics *metrics.Recorder
	now     func() time.Time
}

// New returns an Assembler that pulls windows through f. rec may be nil.
func New(f Fetcher, rec *metrics.Recorder) *Assembler {
	return &Assembler{
		fetcher: f,
		metrics: rec,
		now:     time.Now,
	}
}

// Assemble returns the site's device blocks restricted to [start, end). The
// periods covering the range are fetched oldest first so rows concatenate in
// chronological order. Periods that are missing, unparseable or entirely
// null are skipped.
func (a *Assembler) Assemble(ctx context.Context, site types.Site, start, end time.Time, g types.Granularity) ([]types.DeviceBlock, error) {
	if !end.After(start) {
		return nil, ErrInvalidRange
	}
	loc := site.Location()
	now := a.now().In(loc)

	first := g.PeriodsBetween(start, now)
	last := max(g.PeriodsBetween(end.Add(-time.Nanosecond), now), 0)
	if first < 0 {
		return nil, fmt.Errorf("%w: range starts after now", ErrNoData)
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"assembling range",
		slog.String("siteID", site.ID),
		slog.Time("start", start),
		slog.Time("end", end),
		slog.String("granularity", g.String()),
		slog.Int("first", first),
		slog.Int("last", last),
	)

	var (
		blocks  []types.DeviceBlock
		byLabel = map[string]int{}
		windows int
	)
	for ago := first; ago >= last; ago-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec := types.WindowSpec{Granularity: g, PeriodsAgo: ago}

		text, err := a.fetcher.Fetch(ctx, site, spec)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: window %s: %w", ErrAcquisition, spec.ViewString(), err)
		}
		if text == "" {
			a.metrics.Window(metrics.WindowEmpty)
			continue
		}

		parsed, err := export.Parse(ctx, text, loc)
		if err != nil {
			a.metrics.Window(metrics.WindowParseFailure)
			log.Ctx(ctx).WarnContext(ctx, "skipping unparseable window", slog.String("view", spec.ViewString()), slog.Any("error", err))
			continue
		}
		if allNull(parsed) {
			a.metrics.Window(metrics.WindowAllNull)
			log.Ctx(ctx).DebugContext(ctx, "skipping empty window", slog.String("view", spec.ViewString()))
			continue
		}

		for _, b := range parsed {
			i, ok := byLabel[b.Label]
			if !ok {
				byLabel[b.Label] = len(blocks)
				blocks = append(blocks, b)
				continue
			}
			blocks[i].Append(b)
		}
		windows++
		a.metrics.Window(metrics.WindowData)
	}

	if windows == 0 {
		return nil, ErrNoData
	}

	for i := range blocks {
		blocks[i] = blocks[i].Clip(start, end)
	}
	return blocks, nil
}

func allNull(blocks []types.DeviceBlock) bool {
	for _, b := range blocks {
		if !b.AllNull() {
			return false
		}
	}
	return true
}
