package types

import (
	"time"
)

// Reading is a single numeric cell. Valid is false when the portal reported
// no value for the sample.
type Reading struct {
	Value float64
	Valid bool
}

// Val returns a valid Reading holding v.
func Val(v float64) Reading {
	return Reading{Value: v, Valid: true}
}

// Null is the absent reading.
var Null = Reading{}

// DeviceKind separates power producing devices from the site weather station.
type DeviceKind int

const (
	Inverter DeviceKind = iota
	Weather
)

func (k DeviceKind) String() string {
	if k == Weather {
		return "weather"
	}
	return "inverter"
}

// Columns the pipeline relies on by name.
const (
	ColumnACPower   = "AC Power"
	ColumnACEnergy  = "AC Energy"
	ColumnACCurrent = "AC Current"
)

// DeviceBlock is the time indexed table recovered for one device. Times is
// strictly increasing and every column in Values or Text has len(Times)
// entries. Numeric columns live in Values, anything else in Text.
type DeviceBlock struct {
	Label   string
	Kind    DeviceKind
	Columns []string
	Times   []time.Time
	Values  map[string][]Reading
	Text    map[string][]string
}

// NewDeviceBlock returns an empty block with the given column order.
func NewDeviceBlock(label string, kind DeviceKind, columns []string) DeviceBlock {
	return DeviceBlock{
		Label:   label,
		Kind:    kind,
		Columns: append([]string(nil), columns...),
		Values:  map[string][]Reading{},
		Text:    map[string][]string{},
	}
}

// Len is the number of rows in the block.
func (b DeviceBlock) Len() int {
	return len(b.Times)
}

// HasColumn reports whether the block carries column name.
func (b DeviceBlock) HasColumn(name string) bool {
	for _, c := range b.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Append adds the rows of other that are strictly after the last row of b.
// Columns missing from one side are padded with nulls (or empty text) so
// every column keeps the same length as Times.
func (b *DeviceBlock) Append(other DeviceBlock) {
	if b.Values == nil {
		b.Values = map[string][]Reading{}
	}
	if b.Text == nil {
		b.Text = map[string][]string{}
	}
	for _, c := range other.Columns {
		if b.HasColumn(c) {
			continue
		}
		b.Columns = append(b.Columns, c)
		if _, ok := other.Values[c]; ok {
			b.Values[c] = make([]Reading, len(b.Times))
		} else {
			b.Text[c] = make([]string, len(b.Times))
		}
	}

	for i, t := range other.Times {
		if n := len(b.Times); n > 0 && !t.After(b.Times[n-1]) {
			continue
		}
		b.Times = append(b.Times, t)
		for c, col := range b.Values {
			r := Null
			if oc, ok := other.Values[c]; ok {
				r = oc[i]
			}
			b.Values[c] = append(col, r)
		}
		for c, col := range b.Text {
			s := ""
			if oc, ok := other.Text[c]; ok {
				s = oc[i]
			}
			b.Text[c] = append(col, s)
		}
	}
}

// Clip returns a copy of b holding only rows with start <= t < end.
func (b DeviceBlock) Clip(start, end time.Time) DeviceBlock {
	out := NewDeviceBlock(b.Label, b.Kind, b.Columns)
	for c := range b.Values {
		out.Values[c] = []Reading{}
	}
	for c := range b.Text {
		out.Text[c] = []string{}
	}
	for i, t := range b.Times {
		if t.Before(start) || !t.Before(end) {
			continue
		}
		out.Times = append(out.Times, t)
		for c, col := range b.Values {
			out.Values[c] = append(out.Values[c], col[i])
		}
		for c, col := range b.Text {
			out.Text[c] = append(out.Text[c], col[i])
		}
	}
	return out
}

// AllNull reports whether the block has no valid numeric reading.
func (b DeviceBlock) AllNull() bool {
	for _, col := range b.Values {
		for _, r := range col {
			if r.Valid {
				return false
			}
		}
	}
	return true
}
