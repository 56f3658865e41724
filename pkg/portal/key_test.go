package portal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/solarpull/solarpull/pkg/types"
)

func TestCacheKey(t *testing.T) {
	site := types.Site{ID: "2152", ExportName: "Test", Timezone: "-5:00"}
	// 03:00 UTC is still the previous evening in New York
	now := time.Date(2020, 2, 27, 3, 0, 0, 0, time.UTC)

	assert.Equal(t,
		"Site2152_Test(Inverter-Direct,Day of 2020-02-26).csv",
		CacheKey(site, types.WindowSpec{Granularity: types.Day}, now))
	assert.Equal(t,
		"Site2152_Test(Inverter-Direct,Day of 2020-02-23).csv",
		CacheKey(site, types.WindowSpec{Granularity: types.Day, PeriodsAgo: 3}, now))
	assert.Equal(t,
		"Site2152_Test(Inverter-Direct,Week of 2020-02-17).csv",
		CacheKey(site, types.WindowSpec{Granularity: types.Week, PeriodsAgo: 1}, now))
	assert.Equal(t,
		"Site2152_Test(Inverter-Direct,Month of December 2019).csv",
		CacheKey(site, types.WindowSpec{Granularity: types.Month, PeriodsAgo: 2}, now))

	site.ExportName = "A/B"
	assert.Equal(t,
		"Site2152_A_B(Inverter-Direct,Day of 2020-02-26).csv",
		CacheKey(site, types.WindowSpec{Granularity: types.Day}, now))
}
