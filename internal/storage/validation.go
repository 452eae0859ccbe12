package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/taxomap/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidMapping = errors.New("invalid mapping")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateKey rejects only the empty key. Keys are stored byte for byte, so
// surrounding whitespace is significant and allowed.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key", ErrEmptyString)
	}
	return nil
}

// validateMapping validates a record before it is written.
func validateMapping(rec *model.MappingRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	if err := validateKey(rec.Key); err != nil {
		return err
	}
	if err := validateString(rec.CategoryID, "category_id"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMapping, err)
	}
	if !rec.Confidence.Valid() {
		return fmt.Errorf("%w: unknown confidence %q", ErrInvalidMapping, rec.Confidence)
	}
	if !rec.Provenance.Valid() {
		return fmt.Errorf("%w: unknown provenance %q", ErrInvalidMapping, rec.Provenance)
	}
	return nil
}

// newStats returns stats with every known tier and provenance present at zero.
func newStats() *model.MappingStats {
	return &model.MappingStats{
		ByConfidence: map[model.Confidence]int{
			model.ConfidenceHigh:   0,
			model.ConfidenceMedium: 0,
			model.ConfidenceLow:    0,
		},
		ByProvenance: map[model.Provenance]int{
			model.ProvenanceOracle: 0,
			model.ProvenanceManual: 0,
		},
	}
}
