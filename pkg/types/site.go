package types

import (
	"time"
)

// offsetZones maps the UTC offsets the portal reports for a site to the
// zone that observes them. The portal only serves continental US sites.
var offsetZones = map[string]string{
	"-5:00": "America/New_York",
	"-6:00": "America/Chicago",
	"-7:00": "America/Denver",
	"-8:00": "America/Los_Angeles",
}

// Site represents a single monitored solar installation. Sites are reference
// data and are never modified by the collection pipeline.
type Site struct {
	ID             string  `json:"id" yaml:"id"`
	Name           string  `json:"name" yaml:"name"`
	SizeKW         float64 `json:"sizeKW" yaml:"sizeKW"`
	Timezone       string  `json:"timezone" yaml:"timezone"`
	Latitude       float64 `json:"latitude" yaml:"latitude"`
	Longitude      float64 `json:"longitude" yaml:"longitude"`
	ExportName     string  `json:"exportName" yaml:"exportName"`
	ActivationDate string  `json:"activationDate,omitempty" yaml:"activationDate,omitempty"`
	Address        string  `json:"address,omitempty" yaml:"address,omitempty"`
	City           string  `json:"city,omitempty" yaml:"city,omitempty"`
	State          string  `json:"state,omitempty" yaml:"state,omitempty"`
	Postal         string  `json:"postal,omitempty" yaml:"postal,omitempty"`
}

// ResolveTimezone converts the timezone value stored for a site into an IANA
// zone name. Values that are already zone names are returned as-is and
// unknown offsets resolve to an empty string.
func ResolveTimezone(raw string) string {
	if raw == "" {
		return ""
	}
	if z, ok := offsetZones[raw]; ok {
		return z
	}
	if _, err := time.LoadLocation(raw); err == nil {
		return raw
	}
	return ""
}

// Location returns the site's local time zone, falling back to UTC when the
// site has no usable timezone.
func (s Site) Location() *time.Location {
	name := ResolveTimezone(s.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
