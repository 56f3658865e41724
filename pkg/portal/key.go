package portal

import (
	"strings"
	"time"

	"github.com/solarpull/solarpull/pkg/types"
)

var keyReplacer = strings.NewReplacer("/", "_", "\\", "_")

// CacheKey names the export for spec the way the portal names its download,
// e.g. "Site2152_Foo(Inverter-Direct,Day of 2020-02-23).csv". The period is
// resolved against now in the site's local time, so the same spec maps to a
// different key once the period boundary passes.
func CacheKey(site types.Site, spec types.WindowSpec, now time.Time) string {
	local := now.In(site.Location())
	start := spec.Granularity.PeriodStart(local, spec.PeriodsAgo)

	var unit, date string
	switch spec.Granularity {
	case types.Day:
		unit, date = "Day", start.Format("2006-01-02")
	case types.Week:
		unit, date = "Week", start.Format("2006-01-02")
	default:
		unit, date = "Month", start.Format("January 2006")
	}

	name := "Site" + site.ID + "_" + site.ExportName + "(Inverter-Direct," + unit + " of " + date + ").csv"
	return keyReplacer.Replace(name)
}
