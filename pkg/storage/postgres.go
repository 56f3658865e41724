package storage

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/levenlabs/go-lflag"

	"github.com/solarpull/solarpull/pkg/log"
)

//go:embed schema.sql
var schemaSQL string

// PostgresLoader appends rows to Postgres tables with COPY.
type PostgresLoader struct {
	dsn     string
	migrate bool
	pool    *pgxpool.Pool
}

func configuredPostgres() *PostgresLoader {
	dsn := lflag.String("postgres-dsn", "", "Postgres connection string when --storage-provider=postgres")
	migrate := lflag.Bool("postgres-migrate", false, "Create the tables on startup if they do not exist")

	p := &PostgresLoader{}
	lflag.Do(func() {
		p.dsn = *dsn
		p.migrate = *migrate
	})
	return p
}

// NewPostgresLoader returns a loader for dsn. Init must be called before use.
func NewPostgresLoader(dsn string) *PostgresLoader {
	return &PostgresLoader{dsn: dsn}
}

// Validate checks if the loader is properly configured.
func (p *PostgresLoader) Validate() error {
	if p.dsn == "" {
		return fmt.Errorf("postgres-dsn is required")
	}
	if _, err := pgxpool.ParseConfig(p.dsn); err != nil {
		return fmt.Errorf("invalid postgres-dsn: %w", err)
	}
	return nil
}

// Init connects the pool and, if enabled, creates the tables.
func (p *PostgresLoader) Init(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, p.dsn)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	p.pool = pool
	if p.migrate {
		return p.Migrate(ctx)
	}
	return nil
}

// Migrate creates any missing tables.
func (p *PostgresLoader) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (p *PostgresLoader) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// Store copies the prepared rows into table inside one transaction. Columns
// are the union of every row's keys; rows missing a column get NULL.
func (p *PostgresLoader) Store(ctx context.Context, table string, rows []Row, defaults Row, rename map[string]string, exclude []string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	prepared := PrepareRows(rows, defaults, rename, exclude)
	if len(prepared) == 0 {
		return nil
	}

	colSet := map[string]bool{}
	for _, r := range prepared {
		for k := range r {
			colSet[k] = true
		}
	}
	columns := slices.Sorted(maps.Keys(colSet))
	values := make([][]any, len(prepared))
	for i, r := range prepared {
		values[i] = make([]any, len(columns))
		for j, c := range columns {
			values[i][j] = r[c]
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(values))
	if err != nil {
		return fmt.Errorf("failed to copy into %s: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s: %w", table, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "stored rows", slog.String("table", table), slog.Int64("count", n))
	return nil
}

// buildLookup renders q as a parameterised SELECT.
func buildLookup(q Query) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(pgx.Identifier{q.Table}.Sanitize())

	var args []any
	for i, k := range slices.Sorted(maps.Keys(q.Where)) {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, q.Where[k])
		sb.WriteString(pgx.Identifier{k}.Sanitize())
		sb.WriteString(" = $")
		sb.WriteString(strconv.Itoa(len(args)))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(q.Limit))
	}
	return sb.String(), args
}

// Lookup returns the rows matching q.
func (p *PostgresLoader) Lookup(ctx context.Context, q Query) ([]Row, error) {
	if err := checkTable(q.Table); err != nil {
		return nil, err
	}
	sql, args := buildLookup(q)
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Table, err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", q.Table, err)
	}
	out := make([]Row, len(found))
	for i, m := range found {
		out[i] = Row(m)
	}
	return out, nil
}
