package sites

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/solarpull/solarpull/pkg/log"
	"github.com/solarpull/solarpull/pkg/portal"
	"github.com/solarpull/solarpull/pkg/types"
)

// maxIDRange bounds how many ids one "a-b" range may expand to.
const maxIDRange = 100000

// Portal is the part of the portal client discovery needs.
type Portal interface {
	SiteMetadata(ctx context.Context, siteID string) (portal.SiteMetadata, error)
	ExportName(ctx context.Context, siteID string) (string, bool, error)
}

// Discover builds registry entries for ids from the portal. Ids the portal
// has no metadata or export for are skipped.
func Discover(ctx context.Context, p Portal, ids []string) ([]types.Site, error) {
	var found []types.Site
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		md, err := p.SiteMetadata(ctx, id)
		if errors.Is(err, portal.ErrNoMetadata) {
			log.Ctx(ctx).DebugContext(ctx, "no metadata for site", slog.String("siteID", id))
			continue
		}
		if err != nil {
			return found, fmt.Errorf("failed to get metadata for site %s: %w", id, err)
		}
		name, ok, err := p.ExportName(ctx, id)
		if err != nil {
			return found, fmt.Errorf("failed to discover export name for site %s: %w", id, err)
		}
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "site has metadata but no export", slog.String("siteID", id))
			continue
		}
		found = append(found, siteFromMetadata(ctx, md, name))
		log.Ctx(ctx).InfoContext(ctx, "discovered site", slog.String("siteID", id), slog.String("exportName", name))
	}
	return found, nil
}

func siteFromMetadata(ctx context.Context, md portal.SiteMetadata, exportName string) types.Site {
	parse := func(field, v string) float64 {
		if v == "" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "invalid site coordinate", slog.String("siteID", md.SiteID), slog.String("field", field), slog.String("value", v))
			return 0
		}
		return f
	}
	return types.Site{
		ID:             md.SiteID,
		Name:           md.Name,
		Timezone:       normalizeTimezone(md.Timezone),
		Latitude:       parse("latitude", md.Latitude),
		Longitude:      parse("longitude", md.Longitude),
		ExportName:     exportName,
		ActivationDate: md.ActivationDate,
		Address:        md.Line1,
		City:           md.City,
		State:          md.State,
		Postal:         md.Postal,
	}
}

// ParseIDs expands a comma separated list of ids and inclusive "a-b" ranges.
func ParseIDs(spec string) ([]string, error) {
	var ids []string
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			if _, err := strconv.Atoi(part); err != nil {
				return nil, fmt.Errorf("invalid site id %q", part)
			}
			ids = append(ids, part)
			continue
		}
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid site id range %q", part)
		}
		to, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil || to < from {
			return nil, fmt.Errorf("invalid site id range %q", part)
		}
		if to-from >= maxIDRange {
			return nil, fmt.Errorf("site id range %q is too large", part)
		}
		for i := from; i <= to; i++ {
			ids = append(ids, strconv.Itoa(i))
		}
	}
	return ids, nil
}

// ReadIDs reads one site id per line, ignoring blank lines and surrounding
// whitespace.
func ReadIDs(r io.Reader) ([]string, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, err := strconv.Atoi(line); err != nil {
			return nil, fmt.Errorf("invalid site id %q", line)
		}
		ids = append(ids, line)
	}
	return ids, sc.Err()
}
