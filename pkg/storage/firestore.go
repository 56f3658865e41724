package storage

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solarpull/solarpull/pkg/log"
)

// docKeys lists, per table, the columns that identify a record. Writing the
// same record twice overwrites the earlier document.
var docKeys = map[string][]string{
	TableProduction:          {"site_id", "measured_by", "date"},
	TableComponentProduction: {"component_id", "date"},
	TableWeather:             {"site_id", "date"},
	TableComponentDetails:    {"manufacturers_component_id"},
	TableSite:                {"site_id"},
}

// FirestoreLoader stores each table as a top level collection.
type FirestoreLoader struct {
	client    *firestore.Client
	projectID string
	database  string
	prefix    string
}

// configuredFirestore sets up the Firestore loader.
// It registers flags for configuration.
func configuredFirestore() *FirestoreLoader {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	prefix := lflag.String("firestore-collection-prefix", "", "Prefix prepended to every collection name")

	f := &FirestoreLoader{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.prefix = *prefix

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the loader is properly configured.
func (f *FirestoreLoader) Validate() error {
	if strings.Contains(f.prefix, "/") {
		return fmt.Errorf("firestore-collection-prefix cannot contain '/'")
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the loader.
func (f *FirestoreLoader) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreLoader) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreLoader) collection(table string) (*firestore.CollectionRef, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return f.client.Collection(f.prefix + table), nil
}

// docID derives the document id from the table's key columns. ok is false
// when a key column is missing.
func docID(table string, r Row) (string, bool) {
	keys := docKeys[table]
	if len(keys) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			return "", false
		}
		switch tv := v.(type) {
		case time.Time:
			parts = append(parts, tv.UTC().Format(time.RFC3339))
		default:
			parts = append(parts, strings.ReplaceAll(fmt.Sprint(tv), "/", "_"))
		}
	}
	return strings.Join(parts, "_"), true
}

// keyedQuery reports whether q filters on exactly the table's key columns, in
// which case the single matching document can be read by id.
func keyedQuery(q Query) (string, bool) {
	keys := docKeys[q.Table]
	if len(keys) == 0 || len(q.Where) != len(keys) {
		return "", false
	}
	return docID(q.Table, q.Where)
}

// Store writes the prepared rows with a BulkWriter and waits for every write.
func (f *FirestoreLoader) Store(ctx context.Context, table string, rows []Row, defaults Row, rename map[string]string, exclude []string) error {
	coll, err := f.collection(table)
	if err != nil {
		return err
	}
	prepared := PrepareRows(rows, defaults, rename, exclude)
	if len(prepared) == 0 {
		return nil
	}

	bw := f.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(prepared))
	for _, r := range prepared {
		doc := coll.NewDoc()
		if id, ok := docID(table, r); ok {
			doc = coll.Doc(id)
		}
		job, err := bw.Set(doc, map[string]interface{}(r))
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue %s write: %w", table, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to write %s: %w", table, err)
		}
	}
	log.Ctx(ctx).DebugContext(ctx, "stored rows", slog.String("table", table), slog.Int("count", len(prepared)))
	return nil
}

// Lookup runs an equality query against the table's collection.
func (f *FirestoreLoader) Lookup(ctx context.Context, q Query) ([]Row, error) {
	coll, err := f.collection(q.Table)
	if err != nil {
		return nil, err
	}

	if id, ok := keyedQuery(q); ok {
		snap, err := coll.Doc(id).Get(ctx)
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("error getting %s/%s: %w", q.Table, id, err)
		}
		return []Row{Row(snap.Data())}, nil
	}

	query := coll.Query
	// sorted so the query shape, and the index it needs, is stable
	for _, k := range slices.Sorted(maps.Keys(q.Where)) {
		query = query.Where(k, "==", q.Where[k])
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var rows []Row
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating %s: %w", q.Table, err)
		}
		rows = append(rows, Row(doc.Data()))
	}
	return rows, nil
}
