package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/solarpull/solarpull/pkg/energy"
	"github.com/solarpull/solarpull/pkg/log"
	"github.com/solarpull/solarpull/pkg/metrics"
	"github.com/solarpull/solarpull/pkg/storage"
	"github.com/solarpull/solarpull/pkg/types"
	"github.com/solarpull/solarpull/pkg/window"
)

const (
	unitWh           = "Wh"
	measuredBy       = "INVERTER"
	manufacturer     = "Solectria"
	componentType    = "inverter"
	siteStatusActive = "Active"
)

var weatherRename = map[string]string{
	"Ambient":        "temperature_ambient",
	"Module":         "temperature_module",
	"Irradiance":     "irradiance",
	"Wind Direction": "wind_direction",
	"Wind Speed":     "wind_speed",
}

// Assembler returns a site's device blocks for a range.
type Assembler interface {
	Assemble(ctx context.Context, site types.Site, start, end time.Time, g types.Granularity) ([]types.DeviceBlock, error)
}

// Collector pulls a site's data for a range and hands it to the Loader.
type Collector struct {
	assembler Assembler
	loader    storage.Loader
	metrics   *metrics.Recorder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Collector. rec may be nil.
func New(a Assembler, l storage.Loader, rec *metrics.Recorder) *Collector {
	return &Collector{
		assembler: a,
		loader:    l,
		metrics:   rec,
		locks:     map[string]*sync.Mutex{},
	}
}

func (c *Collector) siteLock(siteID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[siteID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[siteID] = l
	}
	return l
}

// CollectSite stores weather, per-inverter production, inverter details,
// merged site production and the site record for [start, end).
// intervalMinutes selects the sample density (1, 10 or 60). Collections of
// the same site are serialised.
func (c *Collector) CollectSite(ctx context.Context, site types.Site, start, end time.Time, intervalMinutes int) error {
	g, err := types.GranularityForInterval(intervalMinutes)
	if err != nil {
		return err
	}

	l := c.siteLock(site.ID)
	l.Lock()
	defer l.Unlock()

	ctx = log.WithSite(ctx, site.ID)
	log.Ctx(ctx).InfoContext(
		ctx,
		"collecting site",
		slog.Time("start", start),
		slog.Time("end", end),
		slog.Int("interval", intervalMinutes),
	)

	err = c.collect(ctx, site, start, end, g)
	switch {
	case err == nil:
		c.metrics.Collection(metrics.CollectionSuccess)
	case errors.Is(err, window.ErrNoData):
		c.metrics.Collection(metrics.CollectionNoData)
	default:
		c.metrics.Collection(metrics.CollectionError)
	}
	return err
}

func (c *Collector) collect(ctx context.Context, site types.Site, start, end time.Time, g types.Granularity) error {
	blocks, err := c.assembler.Assemble(ctx, site, start, end, g)
	if err != nil {
		return fmt.Errorf("failed to assemble site %s: %w", site.ID, err)
	}

	var inverters []types.DeviceBlock
	for _, b := range blocks {
		if b.Kind != types.Weather {
			inverters = append(inverters, b)
			continue
		}
		if err := c.storeWeather(ctx, site, b); err != nil {
			return err
		}
	}

	devices, err := energy.DeviceEnergies(inverters, g.SampleInterval())
	if err != nil {
		return fmt.Errorf("failed to convert power: %w", err)
	}
	byLabel := make(map[string]energy.DeviceEnergy, len(devices))
	for _, d := range devices {
		byLabel[d.Label] = d
	}

	for _, b := range inverters {
		d, ok := byLabel[b.Label]
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "inverter block has no power column", slog.String("label", b.Label))
			continue
		}
		if err := c.storeComponent(ctx, site, b, d); err != nil {
			return err
		}
	}

	series := energy.MergeDevices(site.ID, devices)
	if err := c.storeProduction(ctx, series); err != nil {
		return err
	}
	return c.ensureSite(ctx, site)
}

func (c *Collector) storeWeather(ctx context.Context, site types.Site, b types.DeviceBlock) error {
	rows := make([]storage.Row, b.Len())
	for i, ts := range b.Times {
		r := storage.Row{"date": ts}
		for col, vals := range b.Values {
			r[col] = readingValue(vals[i])
		}
		rows[i] = r
	}
	var exclude []string
	for _, col := range b.Columns {
		if _, ok := weatherRename[col]; !ok {
			exclude = append(exclude, col)
		}
	}
	if err := c.loader.Store(ctx, storage.TableWeather, rows, storage.Row{"site_id": site.ID}, weatherRename, exclude); err != nil {
		return fmt.Errorf("failed to store weather: %w", err)
	}
	return nil
}

func (c *Collector) storeComponent(ctx context.Context, site types.Site, b types.DeviceBlock, d energy.DeviceEnergy) error {
	label, err := types.ParseInverterLabel(b.Label)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "skipping inverter with unrecognised label", slog.String("label", b.Label), slog.Any("error", err))
		return nil
	}

	rows := make([]storage.Row, b.Len())
	for i, ts := range b.Times {
		r := storage.Row{"date": ts}
		for col, vals := range b.Values {
			r[col] = readingValue(vals[i])
		}
		for col, vals := range b.Text {
			r[col] = vals[i]
		}
		r[types.ColumnACPower] = readingValue(d.Energy[i])
		rows[i] = r
	}
	var exclude []string
	for _, col := range b.Columns {
		if col != types.ColumnACPower {
			exclude = append(exclude, col)
		}
	}
	err = c.loader.Store(
		ctx,
		storage.TableComponentProduction,
		rows,
		storage.Row{"component_id": label.ManufacturerID, "unit": unitWh},
		map[string]string{types.ColumnACPower: "value"},
		exclude,
	)
	if err != nil {
		return fmt.Errorf("failed to store component production for %s: %w", label.ManufacturerID, err)
	}

	existing, err := c.loader.Lookup(ctx, storage.Query{
		Table: storage.TableComponentDetails,
		Where: map[string]any{"manufacturers_component_id": label.ManufacturerID},
		Limit: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to look up component %s: %w", label.ManufacturerID, err)
	}
	if len(existing) > 0 {
		return nil
	}
	log.Ctx(ctx).InfoContext(ctx, "recording new inverter", slog.String("manufacturerID", label.ManufacturerID), slog.String("model", label.Model))
	err = c.loader.Store(ctx, storage.TableComponentDetails, []storage.Row{{
		"component_id":               label.Order - 1,
		"manufacturers_component_id": label.ManufacturerID,
		"type":                       componentType,
		"sub_type":                   label.Model,
		"site_id":                    site.ID,
		"data_provider":              manufacturer,
		"manufacturer":               manufacturer,
		"is_energy_producing":        true,
	}}, nil, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to store component details for %s: %w", label.ManufacturerID, err)
	}
	return nil
}

func (c *Collector) storeProduction(ctx context.Context, series types.SiteSeries) error {
	rows := make([]storage.Row, len(series.Points))
	for i, p := range series.Points {
		rows[i] = storage.Row{"date": p.Time, "value": p.Wh}
	}
	err := c.loader.Store(
		ctx,
		storage.TableProduction,
		rows,
		storage.Row{"site_id": series.SiteID, "unit": unitWh, "measured_by": measuredBy},
		nil,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to store production: %w", err)
	}
	return nil
}

func (c *Collector) ensureSite(ctx context.Context, site types.Site) error {
	existing, err := c.loader.Lookup(ctx, storage.Query{
		Table: storage.TableSite,
		Where: map[string]any{"site_id": site.ID},
		Limit: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to look up site: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	err = c.loader.Store(ctx, storage.TableSite, []storage.Row{{
		"site_id":           site.ID,
		"name":              site.Name,
		"status":            siteStatusActive,
		"size":              site.SizeKW,
		"installation_date": site.ActivationDate,
		"address":           site.Address,
		"city":              site.City,
		"state":             site.State,
		"zip":               site.Postal,
		"timezone":          types.ResolveTimezone(site.Timezone),
		"latitude":          site.Latitude,
		"longitude":         site.Longitude,
		"fetch_id":          site.ExportName,
	}}, nil, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to store site: %w", err)
	}
	return nil
}

// Span resolves the range to collect for a site.
type Span func(site types.Site) (start, end time.Time)

// Fixed collects the same instants for every site.
func Fixed(start, end time.Time) Span {
	return func(types.Site) (time.Time, time.Time) {
		return start, end
	}
}

// Days collects the calendar days first through last inclusive, each read in
// the site's own timezone.
func Days(first, last time.Time) Span {
	return func(site types.Site) (time.Time, time.Time) {
		loc := site.Location()
		start := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
		end := time.Date(last.Year(), last.Month(), last.Day()+1, 0, 0, 0, 0, loc)
		return start, end
	}
}

// CollectAll collects every site in turn. A failing site is logged and the
// rest still run; the returned error joins every failure.
func (c *Collector) CollectAll(ctx context.Context, sites []types.Site, span Span, intervalMinutes int) error {
	var errs []error
	for _, s := range sites {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start, end := span(s)
		if err := c.CollectSite(ctx, s, start, end, intervalMinutes); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to collect site", slog.String("siteID", s.ID), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("site %s: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}

func readingValue(r types.Reading) any {
	if !r.Valid {
		return nil
	}
	return r.Value
}
