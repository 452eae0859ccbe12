// Package service defines the interfaces shared between the application's layers.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/taxomap/internal/model"
)

// MappingStore is the persistence contract for the mapping cache. Any backend
// offering an atomic keyed upsert and aggregate counts can serve it.
type MappingStore interface {
	// GetMapping returns the record stored under key, or nil if there is none.
	GetMapping(ctx context.Context, key string) (*model.MappingRecord, error)
	// UpsertMapping inserts record, or overwrites every field of an existing
	// record except CreatedAt. UpdatedAt is always refreshed.
	UpsertMapping(ctx context.Context, record *model.MappingRecord) error
	// MappingStats counts records by confidence and provenance.
	MappingStats(ctx context.Context) (*model.MappingStats, error)
	// ListStaleMappings returns records produced under a taxonomy version other
	// than currentVersion, oldest first.
	ListStaleMappings(ctx context.Context, currentVersion string, limit int) ([]model.MappingRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
