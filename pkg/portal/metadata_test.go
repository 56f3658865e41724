package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<SolrenView>
  <siteData>
    <name> Test Site? </name>
    <activationDate>2015-06-01</activationDate>
    <latitude>41.88</latitude>
    <longitude>-87.63</longitude>
    <address><line1>1 Main St</line1><city>Chicago</city><state>IL</state><postal>60601</postal></address>
    <timezone>-6:00</timezone>
  </siteData>
  <sunspecData><d><m><name>ignored</name></m></d></sunspecData>
</SolrenView>`

func TestSiteMetadata(t *testing.T) {
	ctx := context.Background()
	bodies := map[string]string{
		"1": testFeed,
		"2": "Invalid site id",
		"3": "",
		"4": "<xml>Unknown or bad timezone</xml>",
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/xmlfeed/ss-xmlN.php", r.URL.Path)
		if r.URL.Query().Get("site_id") == "5" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(bodies[r.URL.Query().Get("site_id")]))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client(), NewLimiter(0), NewFileCache(t.TempDir()), nil)

	md, err := c.SiteMetadata(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, SiteMetadata{
		SiteID:         "1",
		Name:           "Test Site",
		ActivationDate: "2015-06-01",
		Latitude:       "41.88",
		Longitude:      "-87.63",
		Line1:          "1 Main St",
		City:           "Chicago",
		State:          "IL",
		Postal:         "60601",
		Timezone:       "-6:00",
	}, md)

	for _, id := range []string{"2", "3", "4", "5"} {
		_, err := c.SiteMetadata(ctx, id)
		assert.ErrorIs(t, err, ErrNoMetadata, id)
	}
}

func TestExportName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cgi-bin/cgihandler.cgi", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.URL.RawQuery, "view=0,0,0,1&cond=site_id="), r.URL.RawQuery)
		if r.URL.Query().Get("cond") == "site_id=2152" {
			w.Write([]byte(`<html><script>var f = "/downloads/Site2152_TownHall(Inverter-Direct,Day of 2020-02-23).csv";</script></html>`))
			return
		}
		if r.URL.Query().Get("cond") == "site_id=404" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`<html><body>no data</body></html>`))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client(), NewLimiter(0), NewFileCache(t.TempDir()), nil)

	name, ok, err := c.ExportName(context.Background(), "2152")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "TownHall", name)

	_, ok, err = c.ExportName(context.Background(), "9")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.ExportName(context.Background(), "404")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExportNameFromPath(t *testing.T) {
	assert.Equal(t, "Test", exportNameFromPath("2152", "/downloads/Site2152_Test.csv"))
	assert.Equal(t, "Town Hall", exportNameFromPath("2152", "/downloads/Site2152_Town Hall(Inverter-Direct,Week of 2020-02-24).csv"))
	assert.Equal(t, "", exportNameFromPath("2152", "/downloads/Site9_Other.csv"))
	assert.Equal(t, "", exportNameFromPath("2152", ""))
}
