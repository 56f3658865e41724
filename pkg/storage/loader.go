package storage

import (
	"context"
	"errors"
	"fmt"
)

// Tables the pipeline writes.
const (
	TableProduction          = "production"
	TableComponentProduction = "component_production"
	TableComponentDetails    = "component_details"
	TableWeather             = "weather"
	TableSite                = "site"
)

var knownTables = map[string]bool{
	TableProduction:          true,
	TableComponentProduction: true,
	TableComponentDetails:    true,
	TableWeather:             true,
	TableSite:                true,
}

var ErrUnknownTable = errors.New("unknown table")

// Row is one record keyed by column name.
type Row map[string]any

// Query selects rows of Table whose columns equal every value in Where. A
// Limit of zero means no limit.
type Query struct {
	Table string
	Where map[string]any
	Limit int
}

// Loader persists rows handed over by the collector. Each Store call is
// applied atomically per table; nothing spans tables.
type Loader interface {
	// Store writes rows into table after renaming columns per rename,
	// dropping exclude and adding any defaults a row does not already have.
	Store(ctx context.Context, table string, rows []Row, defaults Row, rename map[string]string, exclude []string) error
	// Lookup returns rows matching q. It is used for existence checks.
	Lookup(ctx context.Context, q Query) ([]Row, error)
	Close() error
}

func checkTable(table string) error {
	if !knownTables[table] {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return nil
}

// PrepareRows returns copies of rows with columns renamed, excluded columns
// removed and defaults filled in. Renames apply first so exclude and
// defaults refer to the final column names. A default never replaces a
// value the row already has.
func PrepareRows(rows []Row, defaults Row, rename map[string]string, exclude []string) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		p := make(Row, len(r)+len(defaults))
		for k, v := range r {
			if to, ok := rename[k]; ok {
				k = to
			}
			p[k] = v
		}
		for _, k := range exclude {
			delete(p, k)
		}
		for k, v := range defaults {
			if _, ok := p[k]; !ok {
				p[k] = v
			}
		}
		out = append(out, p)
	}
	return out
}

