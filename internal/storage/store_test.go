package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/taxomap/internal/model"
	"github.com/Veraticus/taxomap/internal/service"
)

// createTestStorage returns a migrated SQLite store in a temporary directory.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func record(key, id string, confidence model.Confidence) *model.MappingRecord {
	return &model.MappingRecord{
		Key:             key,
		CategoryID:      id,
		CategoryAlias:   model.AliasID(id),
		FullName:        "Electronics > " + id,
		Confidence:      confidence,
		Provenance:      model.ProvenanceOracle,
		TaxonomyVersion: "2024-07",
	}
}

// backends returns every store implementation the conformance tests run against.
func backends(t *testing.T) map[string]func(t *testing.T) service.MappingStore {
	t.Helper()

	b := map[string]func(t *testing.T) service.MappingStore{
		"sqlite": func(t *testing.T) service.MappingStore {
			return createTestStorage(t)
		},
		"cached sqlite": func(t *testing.T) service.MappingStore {
			return NewCachedStore(createTestStorage(t), time.Minute, 0)
		},
	}

	if dsn := os.Getenv("TAXOMAP_TEST_POSTGRES_DSN"); dsn != "" {
		b["postgres"] = func(t *testing.T) service.MappingStore {
			ctx := context.Background()
			store, err := NewPostgresStorage(ctx, dsn)
			require.NoError(t, err)
			require.NoError(t, store.Migrate(ctx))
			_, err = store.pool.Exec(ctx, `TRUNCATE mappings`)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		}
	}
	return b
}

func TestMappingStore_LookupAfterUpsert(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			got, err := store.GetMapping(ctx, "usb-c cable")
			require.NoError(t, err)
			assert.Nil(t, got, "absent key is not an error")

			want := record("usb-c cable", "el-4-2", model.ConfidenceHigh)
			require.NoError(t, store.UpsertMapping(ctx, want))

			got, err = store.GetMapping(ctx, "usb-c cable")
			require.NoError(t, err)
			require.NotNil(t, got)

			assert.Equal(t, want.Key, got.Key)
			assert.Equal(t, want.CategoryID, got.CategoryID)
			assert.Equal(t, want.CategoryAlias, got.CategoryAlias)
			assert.Equal(t, want.FullName, got.FullName)
			assert.Equal(t, want.Confidence, got.Confidence)
			assert.Equal(t, want.Provenance, got.Provenance)
			assert.Equal(t, want.TaxonomyVersion, got.TaxonomyVersion)
			assert.False(t, got.CreatedAt.IsZero())
			assert.False(t, got.UpdatedAt.IsZero())
		})
	}
}

func TestMappingStore_UpsertKeepsCreatedAt(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			require.NoError(t, store.UpsertMapping(ctx, record("desk lamp", "fu-1", model.ConfidenceMedium)))
			first, err := store.GetMapping(ctx, "desk lamp")
			require.NoError(t, err)
			require.NotNil(t, first)

			time.Sleep(10 * time.Millisecond)

			second := record("desk lamp", "fu-2", model.ConfidenceHigh)
			second.TaxonomyVersion = "2025-01"
			require.NoError(t, store.UpsertMapping(ctx, second))

			got, err := store.GetMapping(ctx, "desk lamp")
			require.NoError(t, err)
			require.NotNil(t, got)

			assert.Equal(t, "fu-2", got.CategoryID)
			assert.Equal(t, model.ConfidenceHigh, got.Confidence)
			assert.Equal(t, "2025-01", got.TaxonomyVersion)
			assert.True(t, first.CreatedAt.Equal(got.CreatedAt), "created_at %v changed to %v", first.CreatedAt, got.CreatedAt)
			assert.True(t, got.UpdatedAt.After(first.UpdatedAt))

			stats, err := store.MappingStats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Total, "re-mapping must not duplicate rows")
		})
	}
}

func TestMappingStore_KeysAreExact(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			require.NoError(t, store.UpsertMapping(ctx, record("Laptop", "el-1", model.ConfidenceHigh)))
			require.NoError(t, store.UpsertMapping(ctx, record(" laptop ", "el-2", model.ConfidenceHigh)))

			for key, want := range map[string]string{"Laptop": "el-1", " laptop ": "el-2"} {
				got, err := store.GetMapping(ctx, key)
				require.NoError(t, err)
				require.NotNil(t, got, key)
				assert.Equal(t, want, got.CategoryID)
			}

			got, err := store.GetMapping(ctx, "laptop")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestMappingStore_Stats(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			stats, err := store.MappingStats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, stats.Total)
			assert.Equal(t, 0, stats.ByConfidence[model.ConfidenceHigh])

			manual := record("gift card", "gi", model.ConfidenceLow)
			manual.Provenance = model.ProvenanceManual
			for _, rec := range []*model.MappingRecord{
				record("a", "el-1", model.ConfidenceHigh),
				record("b", "el-2", model.ConfidenceHigh),
				record("c", "el", model.ConfidenceMedium),
				manual,
			} {
				require.NoError(t, store.UpsertMapping(ctx, rec))
			}

			stats, err = store.MappingStats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 4, stats.Total)
			assert.Equal(t, map[model.Confidence]int{
				model.ConfidenceHigh:   2,
				model.ConfidenceMedium: 1,
				model.ConfidenceLow:    1,
			}, stats.ByConfidence)
			assert.Equal(t, map[model.Provenance]int{
				model.ProvenanceOracle: 3,
				model.ProvenanceManual: 1,
			}, stats.ByProvenance)
		})
	}
}

func TestMappingStore_ListStale(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			for i, key := range []string{"old-1", "old-2", "current", "old-3"} {
				rec := record(key, "el-1", model.ConfidenceHigh)
				if key == "current" {
					rec.TaxonomyVersion = "2025-01"
				}
				rec.CreatedAt = time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC)
				require.NoError(t, store.UpsertMapping(ctx, rec))
				time.Sleep(2 * time.Millisecond)
			}

			stale, err := store.ListStaleMappings(ctx, "2025-01", 0)
			require.NoError(t, err)
			keys := make([]string, len(stale))
			for i, r := range stale {
				keys[i] = r.Key
			}
			assert.Equal(t, []string{"old-1", "old-2", "old-3"}, keys)

			stale, err = store.ListStaleMappings(ctx, "2025-01", 2)
			require.NoError(t, err)
			assert.Len(t, stale, 2)

			stale, err = store.ListStaleMappings(ctx, "2024-07", 0)
			require.NoError(t, err)
			require.Len(t, stale, 1)
			assert.Equal(t, "current", stale[0].Key)
		})
	}
}

func TestMappingStore_ConcurrentUpsertsLastWriteWins(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					id := "el-1"
					if i%2 == 1 {
						id = "el-2"
					}
					assert.NoError(t, store.UpsertMapping(ctx, record("shared", id, model.ConfidenceHigh)))
				}()
			}
			wg.Wait()

			stats, err := store.MappingStats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Total)

			got, err := store.GetMapping(ctx, "shared")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Contains(t, []string{"el-1", "el-2"}, got.CategoryID)
		})
	}
}

func TestUpsertMapping_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		rec     *model.MappingRecord
		wantErr error
		name    string
	}{
		{name: "nil record", rec: nil, wantErr: ErrNilParameter},
		{name: "empty key", rec: record("", "el-1", model.ConfidenceHigh), wantErr: ErrEmptyString},
		{name: "empty category", rec: record("k", "", model.ConfidenceHigh), wantErr: ErrInvalidMapping},
		{name: "unknown confidence", rec: record("k", "el-1", "certain"), wantErr: ErrInvalidMapping},
		{
			name: "unknown provenance",
			rec: func() *model.MappingRecord {
				r := record("k", "el-1", model.ConfidenceHigh)
				r.Provenance = "guess"
				return r
			}(),
			wantErr: ErrInvalidMapping,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.UpsertMapping(ctx, tt.rec)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUpsertMapping_FillsAlias(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rec := record("lamp", "fu-3", model.ConfidenceHigh)
	rec.CategoryAlias = ""
	require.NoError(t, store.UpsertMapping(ctx, rec))

	got, err := store.GetMapping(ctx, "lamp")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.AliasPrefix+"fu-3", got.CategoryAlias)
}

func TestMigrate(t *testing.T) {
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "dir", "test.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrate is idempotent")

	version, err = store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	assert.ErrorIs(t, err, ErrEmptyString)
}
