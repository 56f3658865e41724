package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/solarpull/solarpull/pkg/log"
	"github.com/solarpull/solarpull/pkg/types"
)

// ErrParse is returned when an export does not have the expected layout.
var ErrParse = errors.New("unparseable export")

const (
	timeframeMarker = "Timeframe"
	inverterMarker  = "inv"
	timestampLayout = "2006-01-02 15:04:05"
)

var inverterNumeric = map[string]bool{
	types.ColumnACPower:   true,
	types.ColumnACEnergy:  true,
	types.ColumnACCurrent: true,
}

var parenStripper = strings.NewReplacer("(", "", ")", "")

// blockSpan is the slice of export columns that belongs to one device.
type blockSpan struct {
	label   string
	kind    types.DeviceKind
	names   []string
	indexes []int
}

// Parse splits a raw export into one DeviceBlock per device, in the order
// the devices appear in the export. The layout is:
//
//	<banner line>
//	,inv#1 - ... (PVI 36TL),,,,inv#2 - ...,,,,Weather Station (...)
//	Timeframe,AC Energy,AC Power,...
//	,kWh,W,...
//	[2020-02-23 00:00:00],...
//
// Each non-empty cell of the block header row starts a device's columns.
// Timestamps are interpreted in loc.
func Parse(ctx context.Context, raw string, loc *time.Location) ([]types.DeviceBlock, error) {
	ti := strings.Index(raw, timeframeMarker)
	if ti < 0 {
		return nil, fmt.Errorf("%w: missing %s row", ErrParse, timeframeMarker)
	}
	lineStart := strings.LastIndexByte(raw[:ti], '\n') + 1
	if lineStart == 0 {
		return nil, fmt.Errorf("%w: no block header before %s row", ErrParse, timeframeMarker)
	}
	headerStart := strings.LastIndexByte(raw[:lineStart-1], '\n') + 1
	headerLine := raw[headerStart:lineStart]
	if !strings.Contains(headerLine, inverterMarker) {
		return nil, fmt.Errorf("%w: block header has no inverter", ErrParse)
	}

	header, err := newReader(headerLine).Read()
	if err != nil {
		return nil, fmt.Errorf("%w: block header: %w", ErrParse, err)
	}

	// "(null" and "null)" straddle cell boundaries, so the parentheses go
	// before tokenizing
	records, err := newReader(parenStripper.Replace(raw[lineStart:])).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: missing units row", ErrParse)
	}
	names := records[0]

	// the trailing weather label is not followed by blank cells like the
	// inverter labels are, so pad the header out to the full width
	for len(header) < len(names) {
		header = append(header, "")
	}

	spans := splitSpans(header, names)
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: no device blocks in header", ErrParse)
	}

	blocks := make([]types.DeviceBlock, len(spans))
	for i, s := range spans {
		blocks[i] = types.NewDeviceBlock(s.label, s.kind, s.names)
		for _, name := range s.names {
			if s.numeric(name) {
				blocks[i].Values[name] = []types.Reading{}
			} else {
				blocks[i].Text[name] = []string{}
			}
		}
	}

	var last time.Time
	var badCells, skippedRows int
	for _, rec := range records[2:] {
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		ts, err := time.ParseInLocation(timestampLayout, strings.Trim(strings.TrimSpace(rec[0]), "[]"), loc)
		if err != nil {
			skippedRows++
			log.Ctx(ctx).WarnContext(ctx, "export row has invalid timestamp", slog.String("value", rec[0]), slog.Any("error", err))
			continue
		}
		// repeated local times on a DST fall-back collapse to one instant
		if !last.IsZero() && !ts.After(last) {
			skippedRows++
			continue
		}
		last = ts

		for i, s := range spans {
			b := &blocks[i]
			b.Times = append(b.Times, ts)
			for j, name := range s.names {
				var cell string
				if idx := s.indexes[j]; idx < len(rec) {
					cell = rec[idx]
				}
				if !s.numeric(name) {
					b.Text[name] = append(b.Text[name], strings.TrimSpace(cell))
					continue
				}
				r, ok := ParseReading(cell)
				if !ok {
					badCells++
				}
				b.Values[name] = append(b.Values[name], r)
			}
		}
	}

	if badCells > 0 || skippedRows > 0 {
		log.Ctx(ctx).WarnContext(
			ctx,
			"export had unusable values",
			slog.Int("badCells", badCells),
			slog.Int("skippedRows", skippedRows),
		)
	}
	return blocks, nil
}

func newReader(s string) *csv.Reader {
	r := csv.NewReader(strings.NewReader(s))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r
}

// splitSpans cuts the columns after the time column into device spans.
// Column 0 is reserved for the time axis and never starts a block.
func splitSpans(header, names []string) []blockSpan {
	var starts []int
	for i := 1; i < len(header); i++ {
		if strings.TrimSpace(header[i]) != "" {
			starts = append(starts, i)
		}
	}

	spans := make([]blockSpan, 0, len(starts))
	for k, start := range starts {
		end := len(names)
		if k+1 < len(starts) {
			end = starts[k+1]
		}
		label := strings.TrimSpace(header[start])
		s := blockSpan{label: label, kind: kindOf(label)}
		seen := map[string]bool{}
		for idx := start; idx < end && idx < len(names); idx++ {
			name := strings.TrimSpace(names[idx])
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			s.names = append(s.names, name)
			s.indexes = append(s.indexes, idx)
		}
		spans = append(spans, s)
	}
	return spans
}

func kindOf(label string) types.DeviceKind {
	if strings.Contains(strings.ToLower(label), "weather") {
		return types.Weather
	}
	return types.Inverter
}

func (s blockSpan) numeric(name string) bool {
	return s.kind == types.Weather || inverterNumeric[name]
}
