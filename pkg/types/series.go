package types

import (
	"time"
)

// EnergyPoint is the energy produced during the interval ending at Time.
type EnergyPoint struct {
	Time time.Time `json:"time"`
	Wh   float64   `json:"wh"`
}

// SiteSeries is the merged production of every inverter at a site, sorted by
// ascending time with at most one point per timestamp.
type SiteSeries struct {
	SiteID string        `json:"siteID"`
	Points []EnergyPoint `json:"points"`
}

// Total returns the energy across the whole series.
func (s SiteSeries) Total() float64 {
	var sum float64
	for _, p := range s.Points {
		sum += p.Wh
	}
	return sum
}
