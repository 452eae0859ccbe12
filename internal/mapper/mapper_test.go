package mapper_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Veraticus/taxomap/internal/mapper"
	"github.com/Veraticus/taxomap/internal/model"
	"github.com/Veraticus/taxomap/internal/navigator"
	"github.com/Veraticus/taxomap/internal/oracle"
	"github.com/Veraticus/taxomap/internal/service"
	"github.com/Veraticus/taxomap/internal/taxonomy"
	"github.com/Veraticus/taxomap/internal/testutil"
	"github.com/Veraticus/taxomap/internal/testutil/categories"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	holder *taxonomy.Holder
	db     *testutil.TestDB
	oracle *oracle.ScriptedOracle
	mapper *mapper.Mapper
}

func newFixture(t *testing.T, o *oracle.ScriptedOracle) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return newFixtureWithStore(t, o, db.Store, db)
}

func newFixtureWithStore(t *testing.T, o *oracle.ScriptedOracle, store service.MappingStore, db *testutil.TestDB) *fixture {
	t.Helper()
	holder := taxonomy.NewHolder(categories.NewBuilder().
		WithVersion("2024-07").
		WithFixture(categories.FixtureElectronics).
		Index())
	nav := navigator.New(o, quietLogger())
	return &fixture{
		holder: holder,
		db:     db,
		oracle: o,
		mapper: mapper.New(holder, nav, store, quietLogger()),
	}
}

// byText answers every turn of a navigation from a per-input script.
func byText(scripts map[string][]string) *oracle.ScriptedOracle {
	return oracle.NewScriptedOracle(func(q oracle.Query) (string, error) {
		script, ok := scripts[q.Text]
		if !ok {
			return "", oracle.ErrScriptExhausted
		}
		depth := 0
		if q.Label != navigator.VerticalsLabel {
			depth = len(splitPath(q.Label))
		}
		if depth >= len(script) {
			return "", oracle.ErrScriptExhausted
		}
		return script[depth], nil
	})
}

// splitPath returns the path segments named in a child-turn label.
func splitPath(label string) []string {
	const prefix = "subcategories of "
	full := label[len(prefix):]
	var out []string
	start := 0
	for i := 0; i+3 <= len(full); i++ {
		if full[i:i+3] == " > " {
			out = append(out, full[start:i])
			start = i + 3
		}
	}
	return append(out, full[start:])
}

func TestMap_WarmCacheSkipsOracle(t *testing.T) {
	f := newFixture(t, oracle.Answers("Electronics", "Computers"))
	ctx := context.Background()

	first, err := f.mapper.Map(ctx, "gaming laptop")
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	require.NotNil(t, first.Turns)
	assert.Equal(t, 2, *first.Turns)
	assert.Equal(t, "el-1", first.CategoryID)
	assert.Equal(t, "Electronics > Computers", first.FullName)
	assert.Equal(t, model.ConfidenceHigh, first.Confidence)

	second, err := f.mapper.Map(ctx, "gaming laptop")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Nil(t, second.Turns)
	assert.Equal(t, first.CategoryID, second.CategoryID)
	assert.Equal(t, first.FullName, second.FullName)
	assert.Equal(t, first.Confidence, second.Confidence)

	assert.Equal(t, 2, f.oracle.CallCount(), "cache hit must not reach the oracle")

	rec := f.db.MustGetMapping("gaming laptop")
	assert.Equal(t, model.ProvenanceOracle, rec.Provenance)
	assert.Equal(t, "2024-07", rec.TaxonomyVersion)
	assert.Equal(t, model.AliasID("el-1"), rec.CategoryAlias)
}

func TestMap_ParentFallbackStoredAsMedium(t *testing.T) {
	f := newFixture(t, oracle.Answers("Electronics", navigator.OtherOption))

	res, err := f.mapper.Map(context.Background(), "drone")
	require.NoError(t, err)
	assert.Equal(t, "el", res.CategoryID)
	assert.Equal(t, model.ConfidenceMedium, res.Confidence)
	assert.Equal(t, 2, *res.Turns)

	stats := f.db.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByConfidence[model.ConfidenceMedium])
}

func TestMap_RejectsEmptyInput(t *testing.T) {
	f := newFixture(t, oracle.Answers())

	for _, in := range []string{"", "   ", "\t\n"} {
		_, err := f.mapper.Map(context.Background(), in)
		assert.ErrorIs(t, err, mapper.ErrEmptyInput)
	}
	assert.Zero(t, f.oracle.CallCount())
}

func TestMap_KeysAreNotNormalized(t *testing.T) {
	f := newFixture(t, byText(map[string][]string{
		"Laptop":  {"Electronics", "Computers"},
		"laptop ": {"Electronics", navigator.OtherOption},
	}))
	ctx := context.Background()

	a, err := f.mapper.Map(ctx, "Laptop")
	require.NoError(t, err)
	b, err := f.mapper.Map(ctx, "laptop ")
	require.NoError(t, err)

	assert.False(t, b.CacheHit)
	assert.Equal(t, "el-1", a.CategoryID)
	assert.Equal(t, "el", b.CategoryID)
	assert.Equal(t, 2, f.db.Stats().Total)
}

func TestMap_CacheFailuresDoNotFailTheCall(t *testing.T) {
	boom := errors.New("database is locked")

	tests := []struct {
		name      string
		getErr    error
		upsertErr error
	}{
		{name: "lookup fails", getErr: boom},
		{name: "write fails", upsertErr: boom},
		{name: "both fail", getErr: boom, upsertErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			failing := &testutil.FailingStore{MappingStore: db.Store, GetErr: tt.getErr, UpsertErr: tt.upsertErr}
			f := newFixtureWithStore(t, oracle.Answers("Furniture", "Tables"), failing, db)

			res, err := f.mapper.Map(context.Background(), "dining table")
			require.NoError(t, err)
			assert.Equal(t, "fu-2", res.CategoryID)
			assert.Equal(t, model.ConfidenceHigh, res.Confidence)
			assert.False(t, res.CacheHit)
			assert.Equal(t, 1, failing.UpsertAttempts())
		})
	}
}

func TestMap_OracleViolationIsFatalAndNotStored(t *testing.T) {
	f := newFixture(t, oracle.Answers("Electronics", "Tablets"))

	res, err := f.mapper.Map(context.Background(), "ipad")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, oracle.ErrOptionNotOffered)
	assert.Equal(t, 0, f.db.Stats().Total)
}

func TestRemap_OverwritesAfterVersionBump(t *testing.T) {
	f := newFixture(t, oracle.Answers("Electronics", navigator.OtherOption, "Electronics", "Phones", "Smartphones"))
	ctx := context.Background()

	_, err := f.mapper.Map(ctx, "iphone")
	require.NoError(t, err)
	before := f.db.MustGetMapping("iphone")
	assert.Equal(t, "el", before.CategoryID)

	f.holder.Swap(categories.NewBuilder().
		WithVersion("2025-01").
		WithFixture(categories.FixtureElectronics).
		Index())

	hit, err := f.mapper.Map(ctx, "iphone")
	require.NoError(t, err)
	assert.True(t, hit.CacheHit, "version bumps are handled on demand")

	res, err := f.mapper.Remap(ctx, "iphone")
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, "el-2-1", res.CategoryID)
	assert.Equal(t, 3, *res.Turns)

	after := f.db.MustGetMapping("iphone")
	assert.Equal(t, "el-2-1", after.CategoryID)
	assert.Equal(t, "2025-01", after.TaxonomyVersion)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	assert.Equal(t, 1, f.db.Stats().Total)
}

func TestSetManual(t *testing.T) {
	f := newFixture(t, oracle.Answers())
	ctx := context.Background()

	_, err := f.mapper.SetManual(ctx, "gift card", "zz-9")
	assert.ErrorIs(t, err, mapper.ErrUnknownCategory)

	_, err = f.mapper.SetManual(ctx, " ", "el-1")
	assert.ErrorIs(t, err, mapper.ErrEmptyInput)

	for _, id := range []string{"fu-1-1", model.AliasID("fu-1-1")} {
		res, err := f.mapper.SetManual(ctx, "ergonomic chair", id)
		require.NoError(t, err)
		assert.Equal(t, "fu-1-1", res.CategoryID)
		assert.Equal(t, model.ConfidenceLow, res.Confidence)
	}

	rec := f.db.MustGetMapping("ergonomic chair")
	assert.Equal(t, model.ConfidenceLow, rec.Confidence)
	assert.Equal(t, model.ProvenanceManual, rec.Provenance)
	assert.Equal(t, "Furniture > Chairs > Office Chairs", rec.FullName)

	hit, err := f.mapper.Map(ctx, "ergonomic chair")
	require.NoError(t, err)
	assert.True(t, hit.CacheHit)
	assert.Equal(t, model.ConfidenceLow, hit.Confidence)
	assert.Zero(t, f.oracle.CallCount())
}

// stallingOracle never answers until its context ends.
type stallingOracle struct{}

func (stallingOracle) NewSession(context.Context) (oracle.Session, error) {
	return stallingSession{}, nil
}

type stallingSession struct{}

func (stallingSession) Choose(ctx context.Context, _ oracle.Query) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (stallingSession) Close() error { return nil }

func TestMap_RequestTimeout(t *testing.T) {
	db := testutil.SetupTestDB(t)
	holder := taxonomy.NewHolder(categories.NewBuilder().WithFixture(categories.FixtureElectronics).Index())
	m := mapper.NewWithConfig(holder, navigator.New(stallingOracle{}, quietLogger()), db.Store, quietLogger(),
		mapper.Config{RequestTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := m.Map(context.Background(), "stuck")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMapAll(t *testing.T) {
	f := newFixture(t, byText(map[string][]string{
		"laptop":     {"Electronics", "Computers"},
		"flip phone": {"Electronics", "Phones", "Feature Phones"},
		"stool":      {"Furniture", navigator.OtherOption},
		"mystery":    {"Electronics", "Toys"},
	}))

	var done atomic.Int32
	inputs := []string{"laptop", "flip phone", "laptop", "stool", "mystery", "  "}
	results := f.mapper.MapAll(context.Background(), inputs, 3, func(mapper.BatchResult) {
		done.Add(1)
	})

	require.Len(t, results, 5, "duplicates are mapped once")
	assert.Equal(t, int32(5), done.Load())

	want := []struct {
		input string
		id    string
		fails bool
	}{
		{input: "laptop", id: "el-1"},
		{input: "flip phone", id: "el-2-2"},
		{input: "stool", id: "fu"},
		{input: "mystery", fails: true},
		{input: "  ", fails: true},
	}
	for i, w := range want {
		assert.Equal(t, w.input, results[i].Input)
		if w.fails {
			assert.Error(t, results[i].Err, w.input)
			assert.Nil(t, results[i].Result)
			continue
		}
		require.NoError(t, results[i].Err, w.input)
		assert.Equal(t, w.id, results[i].Result.CategoryID, w.input)
	}
	assert.ErrorIs(t, results[3].Err, oracle.ErrOptionNotOffered)
	assert.ErrorIs(t, results[4].Err, mapper.ErrEmptyInput)

	opened, closed := f.oracle.Sessions()
	assert.Equal(t, 4, opened, "one session per navigated input")
	assert.Equal(t, opened, closed)
	assert.Equal(t, 3, f.db.Stats().Total)
}

func TestMapAll_CanceledContext(t *testing.T) {
	f := newFixture(t, oracle.Answers("Electronics", "Computers"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := f.mapper.MapAll(ctx, []string{"a", "b"}, 0, nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestRemapAll_NavigatesCachedInputs(t *testing.T) {
	f := newFixture(t, byText(map[string][]string{
		"laptop":     {"Electronics", "Computers"},
		"flip phone": {"Electronics", "Phones", "Feature Phones"},
	}))
	ctx := context.Background()

	warm := f.mapper.MapAll(ctx, []string{"laptop", "flip phone"}, 2, nil)
	require.Len(t, warm, 2)
	calls := f.oracle.CallCount()

	results := f.mapper.RemapAll(ctx, []string{"laptop", "flip phone", "laptop"}, 2, nil)
	require.Len(t, results, 2, "duplicates are remapped once")
	for _, r := range results {
		require.NoError(t, r.Err, r.Input)
		assert.False(t, r.Result.CacheHit, r.Input)
		require.NotNil(t, r.Result.Turns)
	}
	assert.Equal(t, calls+5, f.oracle.CallCount())
}

func TestDistinct(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "A"}, mapper.Distinct([]string{"b", "a", "b", "A", "a"}))
	assert.Empty(t, mapper.Distinct(nil))
}
