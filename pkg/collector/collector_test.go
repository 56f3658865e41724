package collector

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/solarpull/solarpull/pkg/log"
	"github.com/solarpull/solarpull/pkg/metrics"
	"github.com/solarpull/solarpull/pkg/storage"
	"github.com/solarpull/solarpull/pkg/storage/storagemock"
	"github.com/solarpull/solarpull/pkg/types"
	"github.com/solarpull/solarpull/pkg/window"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

type mockAssembler struct {
	mock.Mock
}

func (m *mockAssembler) Assemble(ctx context.Context, site types.Site, start, end time.Time, g types.Granularity) ([]types.DeviceBlock, error) {
	args := m.Called(ctx, site, start, end, g)
	blocks, _ := args.Get(0).([]types.DeviceBlock)
	return blocks, args.Error(1)
}

var (
	testSite = types.Site{
		ID:         "4760",
		Name:       "Quad 7",
		SizeKW:     250,
		Timezone:   "-6:00",
		ExportName: "Quad7",
	}
	start = time.Date(2020, 2, 23, 0, 0, 0, 0, time.UTC)
	end   = start.Add(20 * time.Minute)
)

const (
	label1 = "inv#1  - 1012841547503  (PVI 36TL)"
	label2 = "inv#2  - Inverter #2  (1013821711010 PVI 60TL)"
)

func testBlocks() []types.DeviceBlock {
	times := []time.Time{start, start.Add(10 * time.Minute)}

	inv1 := types.NewDeviceBlock(label1, types.Inverter, []string{types.ColumnACEnergy, types.ColumnACPower, "Status"})
	inv1.Times = times
	inv1.Values[types.ColumnACEnergy] = []types.Reading{types.Val(1), types.Val(2)}
	inv1.Values[types.ColumnACPower] = []types.Reading{types.Val(600), types.Null}
	inv1.Text["Status"] = []string{"ok", "ok"}

	inv2 := types.NewDeviceBlock(label2, types.Inverter, []string{types.ColumnACPower})
	inv2.Times = times
	inv2.Values[types.ColumnACPower] = []types.Reading{types.Val(1200), types.Val(1800)}

	weather := types.NewDeviceBlock("Weather Station", types.Weather, []string{"Ambient", "Irradiance", "Extra"})
	weather.Times = times
	weather.Values["Ambient"] = []types.Reading{types.Val(5), types.Null}
	weather.Values["Irradiance"] = []types.Reading{types.Val(100), types.Val(200)}
	weather.Values["Extra"] = []types.Reading{types.Val(1), types.Val(1)}

	return []types.DeviceBlock{inv1, inv2, weather}
}

func capture(dst *[]storage.Row) func(mock.Arguments) {
	return func(args mock.Arguments) {
		*dst = args.Get(2).([]storage.Row)
	}
}

func TestCollectSite(t *testing.T) {
	ctx := context.Background()

	t.Run("stores everything", func(t *testing.T) {
		a := &mockAssembler{}
		a.On("Assemble", mock.Anything, testSite, start, end, types.Week).Return(testBlocks(), nil)

		l := &storagemock.MockLoader{}
		var weather, comp1, comp2, details, production, site []storage.Row

		l.On("Store", mock.Anything, storage.TableWeather, mock.Anything,
			storage.Row{"site_id": "4760"}, weatherRename, []string{"Extra"}).
			Run(capture(&weather)).Return(nil).Once()
		l.On("Store", mock.Anything, storage.TableComponentProduction, mock.Anything,
			storage.Row{"component_id": "1012841547503", "unit": "Wh"},
			map[string]string{"AC Power": "value"}, []string{"AC Energy", "Status"}).
			Run(capture(&comp1)).Return(nil).Once()
		l.On("Store", mock.Anything, storage.TableComponentProduction, mock.Anything,
			storage.Row{"component_id": "1013821711010", "unit": "Wh"},
			map[string]string{"AC Power": "value"}, []string(nil)).
			Run(capture(&comp2)).Return(nil).Once()

		l.On("Lookup", mock.Anything, storage.Query{
			Table: storage.TableComponentDetails,
			Where: map[string]any{"manufacturers_component_id": "1012841547503"},
			Limit: 1,
		}).Return([]storage.Row(nil), nil).Once()
		l.On("Lookup", mock.Anything, storage.Query{
			Table: storage.TableComponentDetails,
			Where: map[string]any{"manufacturers_component_id": "1013821711010"},
			Limit: 1,
		}).Return([]storage.Row{{"manufacturers_component_id": "1013821711010"}}, nil).Once()
		l.On("Store", mock.Anything, storage.TableComponentDetails, mock.Anything, storage.Row(nil), map[string]string(nil), []string(nil)).
			Run(capture(&details)).Return(nil).Once()

		l.On("Store", mock.Anything, storage.TableProduction, mock.Anything,
			storage.Row{"site_id": "4760", "unit": "Wh", "measured_by": "INVERTER"}, map[string]string(nil), []string(nil)).
			Run(capture(&production)).Return(nil).Once()

		l.On("Lookup", mock.Anything, storage.Query{
			Table: storage.TableSite,
			Where: map[string]any{"site_id": "4760"},
			Limit: 1,
		}).Return([]storage.Row{}, nil).Once()
		l.On("Store", mock.Anything, storage.TableSite, mock.Anything, storage.Row(nil), map[string]string(nil), []string(nil)).
			Run(capture(&site)).Return(nil).Once()

		c := New(a, l, metrics.NewRecorder(prometheus.NewRegistry()))
		require.NoError(t, c.CollectSite(ctx, testSite, start, end, 10))
		a.AssertExpectations(t)
		l.AssertExpectations(t)

		require.Len(t, weather, 2)
		assert.Equal(t, storage.Row{"date": start, "Ambient": 5.0, "Irradiance": 100.0, "Extra": 1.0}, weather[0])
		assert.Nil(t, weather[1]["Ambient"])

		require.Len(t, comp1, 2)
		assert.InDelta(t, 100, comp1[0][types.ColumnACPower].(float64), 0.001)
		assert.Nil(t, comp1[1][types.ColumnACPower])
		assert.Equal(t, "ok", comp1[0]["Status"])
		require.Len(t, comp2, 2)
		assert.InDelta(t, 300, comp2[1][types.ColumnACPower].(float64), 0.001)

		require.Len(t, details, 1)
		assert.Equal(t, storage.Row{
			"component_id":               0,
			"manufacturers_component_id": "1012841547503",
			"type":                       "inverter",
			"sub_type":                   "PVI 36TL",
			"site_id":                    "4760",
			"data_provider":              "Solectria",
			"manufacturer":               "Solectria",
			"is_energy_producing":        true,
		}, details[0])

		require.Len(t, production, 2)
		assert.Equal(t, start, production[0]["date"])
		assert.InDelta(t, 300, production[0]["value"].(float64), 0.001)
		assert.InDelta(t, 300, production[1]["value"].(float64), 0.001)

		require.Len(t, site, 1)
		assert.Equal(t, "America/Chicago", site[0]["timezone"])
		assert.Equal(t, "Quad7", site[0]["fetch_id"])
		assert.Equal(t, "Active", site[0]["status"])
	})

	t.Run("no data", func(t *testing.T) {
		a := &mockAssembler{}
		a.On("Assemble", mock.Anything, testSite, start, end, types.Day).Return(nil, window.ErrNoData)
		l := &storagemock.MockLoader{}

		err := New(a, l, nil).CollectSite(ctx, testSite, start, end, 1)
		assert.ErrorIs(t, err, window.ErrNoData)
		l.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid interval", func(t *testing.T) {
		err := New(&mockAssembler{}, &storagemock.MockLoader{}, nil).CollectSite(ctx, testSite, start, end, 15)
		assert.Error(t, err)
	})

	t.Run("store failure", func(t *testing.T) {
		a := &mockAssembler{}
		a.On("Assemble", mock.Anything, testSite, start, end, types.Month).Return(testBlocks(), nil)
		l := &storagemock.MockLoader{}
		l.On("Store", mock.Anything, storage.TableWeather, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("quota exceeded"))

		err := New(a, l, nil).CollectSite(ctx, testSite, start, end, 60)
		assert.ErrorContains(t, err, "quota exceeded")
		l.AssertNumberOfCalls(t, "Store", 1)
	})
}

func TestCollectAll(t *testing.T) {
	ctx := context.Background()
	bad := types.Site{ID: "1"}
	good := types.Site{ID: "2"}

	a := &mockAssembler{}
	a.On("Assemble", mock.Anything, bad, start, end, types.Week).Return(nil, window.ErrNoData)
	a.On("Assemble", mock.Anything, good, start, end, types.Week).Return([]types.DeviceBlock{}, nil)

	l := &storagemock.MockLoader{}
	l.On("Store", mock.Anything, storage.TableProduction, []storage.Row{}, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	l.On("Lookup", mock.Anything, mock.Anything).Return([]storage.Row{{"site_id": "2"}}, nil)

	err := New(a, l, nil).CollectAll(ctx, []types.Site{bad, good}, Fixed(start, end), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, window.ErrNoData)
	assert.ErrorContains(t, err, "site 1")
	a.AssertExpectations(t)
	l.AssertExpectations(t)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err = New(a, l, nil).CollectAll(cctx, []types.Site{good}, Fixed(start, end), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDays(t *testing.T) {
	site := types.Site{ID: "2152", Timezone: "-5:00"}
	loc := site.Location()
	first := time.Date(2020, 2, 23, 0, 0, 0, 0, time.UTC)
	last := time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)

	s, e := Days(first, last)(site)
	assert.True(t, s.Equal(time.Date(2020, 2, 23, 0, 0, 0, 0, loc)))
	assert.True(t, e.Equal(time.Date(2020, 3, 1, 0, 0, 0, 0, loc)))

	// a site without a timezone reads the dates in UTC
	s, e = Days(first, first)(types.Site{ID: "1"})
	assert.Equal(t, first, s)
	assert.Equal(t, first.Add(24*time.Hour), e)
}

func TestSiteLock(t *testing.T) {
	c := New(nil, nil, nil)
	assert.Same(t, c.siteLock("1"), c.siteLock("1"))
	assert.NotSame(t, c.siteLock("1"), c.siteLock("2"))
}
