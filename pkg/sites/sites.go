package sites

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/levenlabs/go-lflag"
	"gopkg.in/yaml.v3"

	"github.com/solarpull/solarpull/pkg/types"
)

var ErrSiteNotFound = errors.New("site not found")

// csvColumns is the registry file layout.
var csvColumns = []string{
	"site_id", "name", "activationDate", "latitude", "longitude",
	"line1", "city", "state", "postal", "timezone", "csv_name", "size",
}

// Registry is the read-only set of known sites.
type Registry struct {
	sites map[string]types.Site
}

// NewRegistry builds a Registry from sites. Later duplicates win.
func NewRegistry(sites []types.Site) *Registry {
	r := &Registry{sites: make(map[string]types.Site, len(sites))}
	for _, s := range sites {
		r.sites[s.ID] = s
	}
	return r
}

// Get returns the site with id.
func (r *Registry) Get(id string) (types.Site, error) {
	s, ok := r.sites[id]
	if !ok {
		return types.Site{}, fmt.Errorf("%w: %s", ErrSiteNotFound, id)
	}
	return s, nil
}

// All returns every site ordered by id, numerically when both ids are
// numbers.
func (r *Registry) All() []types.Site {
	out := make([]types.Site, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b types.Site) int {
		return compareIDs(a.ID, b.ID)
	})
	return out
}

func compareIDs(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai - bi
	}
	return strings.Compare(a, b)
}

// Configured registers the --sites-file flag and returns a Registry that is
// loaded once lflag.Configure has run.
func Configured() *Registry {
	path := lflag.String("sites-file", "./csv/solectria_sites.csv", "Site registry file (.csv, .yaml or .yml)")

	r := &Registry{}
	lflag.Do(func() {
		loaded, err := Load(*path)
		if err != nil {
			panic(fmt.Sprintf("failed to load sites: %v", err))
		}
		*r = *loaded
	})
	return r
}

// Load reads a registry from path. The format follows the extension.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sites file: %w", err)
	}
	defer f.Close()

	var sites []types.Site
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		sites, err = ReadCSV(f)
	case ".yaml", ".yml":
		sites, err = ReadYAML(f)
	default:
		return nil, fmt.Errorf("unsupported sites file extension: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return NewRegistry(sites), nil
}

// ReadYAML decodes a list of sites.
func ReadYAML(r io.Reader) ([]types.Site, error) {
	var sites []types.Site
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&sites); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	for i := range sites {
		if sites[i].ID == "" {
			return nil, fmt.Errorf("site %d has no id", i)
		}
		sites[i].Timezone = normalizeTimezone(sites[i].Timezone)
	}
	return sites, nil
}

// ReadCSV reads the registry CSV. Columns are matched by header name so
// their order does not matter; only site_id is required.
func ReadCSV(r io.Reader) ([]types.Site, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	if _, ok := col["site_id"]; !ok {
		return nil, fmt.Errorf("missing site_id column")
	}

	var sites []types.Site
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		get := func(name string) string {
			if i, ok := col[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		s := types.Site{
			ID:             get("site_id"),
			Name:           get("name"),
			ActivationDate: get("activationDate"),
			Address:        get("line1"),
			City:           get("city"),
			State:          get("state"),
			Postal:         get("postal"),
			Timezone:       normalizeTimezone(get("timezone")),
			ExportName:     get("csv_name"),
		}
		if s.ID == "" {
			continue
		}
		for name, dst := range map[string]*float64{"latitude": &s.Latitude, "longitude": &s.Longitude, "size": &s.SizeKW} {
			if v := get(name); v != "" {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid %s %q: %w", line, name, v, err)
				}
				*dst = f
			}
		}
		sites = append(sites, s)
	}
	return sites, nil
}

// normalizeTimezone turns portal offsets like "-5:00" into zone names and
// leaves anything else untouched.
func normalizeTimezone(tz string) string {
	if z := types.ResolveTimezone(tz); z != "" {
		return z
	}
	return tz
}

// Save writes sites to path as a registry CSV.
func Save(path string, sites []types.Site) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create sites dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create sites file: %w", err)
	}
	if err := WriteCSV(f, sites); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteCSV writes sites in registry order.
func WriteCSV(w io.Writer, sites []types.Site) error {
	sorted := slices.Clone(sites)
	slices.SortFunc(sorted, func(a, b types.Site) int {
		return compareIDs(a.ID, b.ID)
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return err
	}
	for _, s := range sorted {
		err := cw.Write([]string{
			s.ID,
			s.Name,
			s.ActivationDate,
			formatFloat(s.Latitude),
			formatFloat(s.Longitude),
			s.Address,
			s.City,
			s.State,
			s.Postal,
			s.Timezone,
			s.ExportName,
			formatFloat(s.SizeKW),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
