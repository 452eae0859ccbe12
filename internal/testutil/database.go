// Package testutil provides test helpers shared across packages: migrated
// mapping stores, seeded records and stores that fail on demand.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/Veraticus/taxomap/internal/model"
	"github.com/Veraticus/taxomap/internal/service"
	"github.com/Veraticus/taxomap/internal/storage"
)

// TestDB is a test mapping store with helpers bound to a test.
type TestDB struct {
	Store service.MappingStore
	t     *testing.T
}

// SetupTestDB creates a migrated in-memory SQLite store seeded with records.
// The store is closed when the test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t, model.MappingRecord{
//		Key:        "usb-c cable",
//		CategoryID: "el-4-2",
//		Confidence: model.ConfidenceHigh,
//		Provenance: model.ProvenanceOracle,
//	})
func SetupTestDB(t *testing.T, records ...model.MappingRecord) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Records: records})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.MappingStore) error
	Records        []model.MappingRecord
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	for i := range opts.Records {
		if err := store.UpsertMapping(ctx, &opts.Records[i]); err != nil {
			t.Fatalf("failed to seed mapping %q: %v", opts.Records[i].Key, err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{Store: store, t: t}
}

// MustGetMapping returns the record under key or fails the test.
func (db *TestDB) MustGetMapping(key string) *model.MappingRecord {
	db.t.Helper()
	rec, err := db.Store.GetMapping(context.Background(), key)
	if err != nil {
		db.t.Fatalf("failed to get mapping %q: %v", key, err)
	}
	if rec == nil {
		db.t.Fatalf("no mapping stored for %q", key)
	}
	return rec
}

// Stats returns the store's stats or fails the test.
func (db *TestDB) Stats() *model.MappingStats {
	db.t.Helper()
	stats, err := db.Store.MappingStats(context.Background())
	if err != nil {
		db.t.Fatalf("failed to get mapping stats: %v", err)
	}
	return stats
}

// FailingStore wraps a store and returns the configured errors instead of
// reading or writing. Nil errors pass calls through.
type FailingStore struct {
	service.MappingStore
	GetErr    error
	UpsertErr error
	mu        sync.Mutex
	upserts   int
}

// GetMapping implements service.MappingStore.
func (f *FailingStore) GetMapping(ctx context.Context, key string) (*model.MappingRecord, error) {
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	return f.MappingStore.GetMapping(ctx, key)
}

// UpsertMapping implements service.MappingStore.
func (f *FailingStore) UpsertMapping(ctx context.Context, rec *model.MappingRecord) error {
	f.mu.Lock()
	f.upserts++
	f.mu.Unlock()
	if f.UpsertErr != nil {
		return f.UpsertErr
	}
	return f.MappingStore.UpsertMapping(ctx, rec)
}

// UpsertAttempts returns how many upserts were attempted.
func (f *FailingStore) UpsertAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}
