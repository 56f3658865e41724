package energy

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/solarpull/solarpull/pkg/types"
)

// ErrNoInterval is returned when a block has too few samples to infer its
// spacing and no fallback was given.
var ErrNoInterval = errors.New("cannot infer sampling interval")

// DeviceEnergy is the per-slot energy of one device.
type DeviceEnergy struct {
	Label  string
	Times  []time.Time
	Energy []types.Reading
}

// InferInterval returns the median spacing between consecutive times. ok
// is false with fewer than two times.
func InferInterval(times []time.Time) (time.Duration, bool) {
	if len(times) < 2 {
		return 0, false
	}
	deltas := make([]time.Duration, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		deltas = append(deltas, times[i].Sub(times[i-1]))
	}
	slices.Sort(deltas)
	return deltas[len(deltas)/2], true
}

// PowerToEnergy converts average watts per slot into watt-hours per slot
// using the block's inferred interval, or fallback when it cannot be
// inferred. Null readings stay null.
func PowerToEnergy(times []time.Time, power []types.Reading, fallback time.Duration) ([]types.Reading, error) {
	if len(times) != len(power) {
		return nil, fmt.Errorf("times and power differ in length: %d != %d", len(times), len(power))
	}
	interval, ok := InferInterval(times)
	if !ok {
		interval = fallback
	}
	if interval <= 0 {
		if len(power) == 0 {
			return []types.Reading{}, nil
		}
		return nil, ErrNoInterval
	}

	hours := interval.Hours()
	out := make([]types.Reading, len(power))
	for i, p := range power {
		if p.Valid {
			out[i] = types.Val(p.Value * hours)
		}
	}
	return out, nil
}

// MergeDevices sums device energy at matching timestamps into one series.
// The result covers the union of all device timestamps; nulls count as zero.
func MergeDevices(siteID string, devices []DeviceEnergy) types.SiteSeries {
	sums := map[int64]float64{}
	at := map[int64]time.Time{}
	for _, d := range devices {
		for i, ts := range d.Times {
			k := ts.UnixNano()
			if _, ok := at[k]; !ok {
				at[k] = ts
			}
			if r := d.Energy[i]; r.Valid {
				sums[k] += r.Value
			}
		}
	}

	points := make([]types.EnergyPoint, 0, len(at))
	for k, ts := range at {
		points = append(points, types.EnergyPoint{Time: ts, Wh: sums[k]})
	}
	slices.SortFunc(points, func(a, b types.EnergyPoint) int {
		return a.Time.Compare(b.Time)
	})
	return types.SiteSeries{SiteID: siteID, Points: points}
}

// DeviceEnergies converts the AC Power column of every inverter block. Weather
// blocks and blocks without power readings are left out.
func DeviceEnergies(blocks []types.DeviceBlock, fallback time.Duration) ([]DeviceEnergy, error) {
	var out []DeviceEnergy
	for _, b := range blocks {
		if b.Kind == types.Weather {
			continue
		}
		power, ok := b.Values[types.ColumnACPower]
		if !ok {
			continue
		}
		wh, err := PowerToEnergy(b.Times, power, fallback)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %q: %w", b.Label, err)
		}
		out = append(out, DeviceEnergy{Label: b.Label, Times: b.Times, Energy: wh})
	}
	return out, nil
}

// SiteProduction converts and merges every inverter block of a site.
func SiteProduction(siteID string, blocks []types.DeviceBlock, fallback time.Duration) (types.SiteSeries, error) {
	devices, err := DeviceEnergies(blocks, fallback)
	if err != nil {
		return types.SiteSeries{}, err
	}
	return MergeDevices(siteID, devices), nil
}
