// Package mapper exposes the mapping call: a cache lookup, a drill-down
// navigation on a miss, and a write-back of the result.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/taxomap/internal/model"
	"github.com/Veraticus/taxomap/internal/navigator"
	"github.com/Veraticus/taxomap/internal/service"
	"github.com/Veraticus/taxomap/internal/taxonomy"
)

var (
	// ErrEmptyInput is returned for empty or whitespace-only input.
	ErrEmptyInput = errors.New("input text is empty")
	// ErrUnknownCategory is returned when a manual mapping names an id the
	// current taxonomy does not contain.
	ErrUnknownCategory = errors.New("unknown category")
)

// MapResult is the outcome of one mapping call.
type MapResult struct {
	// Turns is nil when the result came from the cache.
	Turns      *int
	Input      string
	CategoryID string
	FullName   string
	Confidence model.Confidence
	Reasoning  string
	CacheHit   bool
}

// Config holds configuration options for the mapper.
type Config struct {
	// RequestTimeout bounds one Map call, including every oracle turn.
	// Zero disables the ceiling.
	RequestTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{RequestTimeout: 2 * time.Minute}
}

// Mapper maps free-text inputs onto taxonomy categories.
type Mapper struct {
	taxonomy  *taxonomy.Holder
	navigator *navigator.Navigator
	store     service.MappingStore
	logger    *slog.Logger
	timeout   time.Duration
}

// New creates a mapper with the default configuration.
func New(holder *taxonomy.Holder, nav *navigator.Navigator, store service.MappingStore, logger *slog.Logger) *Mapper {
	return NewWithConfig(holder, nav, store, logger, DefaultConfig())
}

// NewWithConfig creates a mapper with custom configuration.
func NewWithConfig(holder *taxonomy.Holder, nav *navigator.Navigator, store service.MappingStore, logger *slog.Logger, cfg Config) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{
		taxonomy:  holder,
		navigator: nav,
		store:     store,
		logger:    logger,
		timeout:   cfg.RequestTimeout,
	}
}

// Map returns the stored mapping for input, or navigates and stores one.
// Cache failures are logged and never fail the call.
func (m *Mapper) Map(ctx context.Context, input string) (*MapResult, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	rec, err := m.store.GetMapping(ctx, input)
	if err != nil {
		m.logger.Warn("mapping cache lookup failed, navigating", "input", input, "error", err)
	} else if rec != nil {
		m.logger.Debug("mapping cache hit", "input", input, "category_id", rec.CategoryID)
		return fromRecord(input, rec), nil
	}

	return m.navigate(ctx, input)
}

// Remap navigates input even when a mapping is stored and overwrites it.
func (m *Mapper) Remap(ctx context.Context, input string) (*MapResult, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}
	return m.navigate(ctx, input)
}

// SetManual stores a curated mapping for input. The category must exist in the
// current taxonomy; the record carries low confidence and manual provenance.
func (m *Mapper) SetManual(ctx context.Context, input, categoryID string) (*MapResult, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	idx := m.taxonomy.Current()
	cat, ok := idx.Category(strings.TrimSpace(categoryID))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, categoryID)
	}

	rec := &model.MappingRecord{
		Key:             input,
		CategoryID:      cat.BareID(),
		CategoryAlias:   model.AliasID(cat.BareID()),
		FullName:        cat.FullName,
		Confidence:      model.ConfidenceLow,
		Provenance:      model.ProvenanceManual,
		TaxonomyVersion: idx.Version(),
	}
	if err := m.store.UpsertMapping(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store manual mapping: %w", err)
	}

	m.logger.Info("stored manual mapping", "input", input, "category_id", rec.CategoryID)
	return &MapResult{
		Input:      input,
		CategoryID: rec.CategoryID,
		FullName:   rec.FullName,
		Confidence: rec.Confidence,
		Reasoning:  "manually curated",
	}, nil
}

func (m *Mapper) navigate(ctx context.Context, input string) (*MapResult, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	idx := m.taxonomy.Current()
	res, err := m.navigator.Navigate(ctx, idx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to map %q: %w", input, err)
	}

	rec := &model.MappingRecord{
		Key:             input,
		CategoryID:      res.CategoryID,
		CategoryAlias:   res.CategoryAlias,
		FullName:        res.FullName,
		Confidence:      res.Confidence,
		Provenance:      model.ProvenanceOracle,
		TaxonomyVersion: idx.Version(),
	}
	// The write-back must not inherit an expiring request context.
	if err := m.store.UpsertMapping(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.Error("failed to store mapping",
			"input", input,
			"category_id", rec.CategoryID,
			"navigation_id", res.NavigationID,
			"error", err)
	}

	turns := res.Turns
	return &MapResult{
		Input:      input,
		CategoryID: res.CategoryID,
		FullName:   res.FullName,
		Confidence: res.Confidence,
		Reasoning:  res.Reasoning,
		Turns:      &turns,
	}, nil
}

func fromRecord(input string, rec *model.MappingRecord) *MapResult {
	return &MapResult{
		Input:      input,
		CategoryID: rec.CategoryID,
		FullName:   rec.FullName,
		Confidence: rec.Confidence,
		Reasoning:  "cached " + string(rec.Provenance) + " mapping",
		CacheHit:   true,
	}
}

// BatchResult pairs one input of MapAll with its outcome.
type BatchResult struct {
	Result *MapResult
	Err    error
	Input  string
}

// MapAll maps the distinct inputs concurrently, at most concurrency at a time.
// Results keep the order of first appearance. A failed input does not stop the
// batch; its error is reported in its BatchResult. onDone, if set, is called
// after each input completes and may be called from several goroutines.
func (m *Mapper) MapAll(ctx context.Context, inputs []string, concurrency int, onDone func(BatchResult)) []BatchResult {
	return m.batch(ctx, inputs, concurrency, onDone, m.Map)
}

// RemapAll is MapAll using Remap, so every input is navigated again.
func (m *Mapper) RemapAll(ctx context.Context, inputs []string, concurrency int, onDone func(BatchResult)) []BatchResult {
	return m.batch(ctx, inputs, concurrency, onDone, m.Remap)
}

func (m *Mapper) batch(
	ctx context.Context,
	inputs []string,
	concurrency int,
	onDone func(BatchResult),
	mapFn func(context.Context, string) (*MapResult, error),
) []BatchResult {
	if concurrency <= 0 {
		concurrency = 1
	}

	distinct := Distinct(inputs)
	results := make([]BatchResult, len(distinct))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, in := range distinct {
		g.Go(func() error {
			res, err := mapFn(ctx, in)
			results[i] = BatchResult{Input: in, Result: res, Err: err}
			if onDone != nil {
				onDone(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Distinct returns inputs without repeats, in order of first appearance.
func Distinct(inputs []string) []string {
	distinct := make([]string, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if seen[in] {
			continue
		}
		seen[in] = true
		distinct = append(distinct, in)
	}
	return distinct
}
