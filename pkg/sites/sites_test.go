package sites

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarpull/solarpull/pkg/types"
)

const testCSV = `site_id,name,activationDate,latitude,longitude,line1,city,state,postal,timezone,csv_name,size
4760,Quad 7,2016-05-01,41.88,-87.63,1 Main St,Chicago,IL,60601,-6:00,Quad7,250.5
5077,"Barn, North",2017-01-01,,,,,VT,,-5:00,BarnNorth,
582,Old Site,,,,,,,,,,
`

func TestReadCSV(t *testing.T) {
	sites, err := ReadCSV(strings.NewReader(testCSV))
	require.NoError(t, err)
	require.Len(t, sites, 3)

	assert.Equal(t, types.Site{
		ID:             "4760",
		Name:           "Quad 7",
		ActivationDate: "2016-05-01",
		Latitude:       41.88,
		Longitude:      -87.63,
		Address:        "1 Main St",
		City:           "Chicago",
		State:          "IL",
		Postal:         "60601",
		Timezone:       "America/Chicago",
		ExportName:     "Quad7",
		SizeKW:         250.5,
	}, sites[0])
	assert.Equal(t, "Barn, North", sites[1].Name)
	assert.Equal(t, "America/New_York", sites[1].Timezone)
	assert.Equal(t, "", sites[2].Timezone)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("name,csv_name\nfoo,bar\n"))
	assert.ErrorContains(t, err, "site_id")

	_, err = ReadCSV(strings.NewReader("site_id,size\n1,big\n"))
	assert.ErrorContains(t, err, "invalid size")

	sites, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, sites)
}

func TestReadYAML(t *testing.T) {
	sites, err := ReadYAML(strings.NewReader(`
- id: "4760"
  name: Quad 7
  sizeKW: 250.5
  timezone: "-6:00"
  exportName: Quad7
- id: "5077"
  timezone: America/Denver
`))
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "America/Chicago", sites[0].Timezone)
	assert.Equal(t, 250.5, sites[0].SizeKW)
	assert.Equal(t, "America/Denver", sites[1].Timezone)

	_, err = ReadYAML(strings.NewReader("- id: \"1\"\n  unknown: x\n"))
	assert.Error(t, err)

	_, err = ReadYAML(strings.NewReader("- name: nameless\n"))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry([]types.Site{{ID: "5077"}, {ID: "582"}, {ID: "4760"}, {ID: "abc"}})

	s, err := r.Get("4760")
	require.NoError(t, err)
	assert.Equal(t, "4760", s.ID)

	_, err = r.Get("1")
	assert.ErrorIs(t, err, ErrSiteNotFound)

	var ids []string
	for _, s := range r.All() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"582", "4760", "5077", "abc"}, ids)
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "sites.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(testCSV), 0o644))
	r, err := Load(csvPath)
	require.NoError(t, err)
	assert.Len(t, r.All(), 3)

	out := filepath.Join(dir, "out", "sites.csv")
	require.NoError(t, Save(out, r.All()))
	again, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, r.All(), again.All())

	yamlPath := filepath.Join(dir, "sites.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("- id: \"9\"\n"), 0o644))
	r, err = Load(yamlPath)
	require.NoError(t, err)
	_, err = r.Get("9")
	assert.NoError(t, err)

	_, err = Load(filepath.Join(dir, "sites.json"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []types.Site{
		{ID: "10", Name: "B", SizeKW: 5},
		{ID: "9", Name: "A", Latitude: 1.5},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "site_id,name,activationDate,latitude,longitude,line1,city,state,postal,timezone,csv_name,size", lines[0])
	assert.Equal(t, "9,A,,1.5,,,,,,,,", lines[1])
	assert.Equal(t, "10,B,,,,,,,,,,5", lines[2])
}
