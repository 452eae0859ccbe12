package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Veraticus/taxomap/internal/model"
)

// PostgresStorage implements service.MappingStore on a PostgreSQL pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to the database at dsn.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	if err := validateString(dsn, "dsn"); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS mappings (
		input_key TEXT PRIMARY KEY,
		category_id TEXT NOT NULL,
		category_alias TEXT NOT NULL,
		full_name TEXT NOT NULL,
		confidence TEXT NOT NULL CHECK (confidence IN ('high', 'medium', 'low')),
		provenance TEXT NOT NULL CHECK (provenance IN ('oracle', 'manual')),
		taxonomy_version TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mappings_category ON mappings(category_id)`,
	`CREATE INDEX IF NOT EXISTS idx_mappings_taxonomy_version ON mappings(taxonomy_version)`,
}

// Migrate creates the schema. Every statement is idempotent.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range postgresSchema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}

	slog.Debug("postgres schema ensured", "statements", len(postgresSchema))
	return nil
}

// GetMapping returns the record stored under key, or nil if there is none.
func (p *PostgresStorage) GetMapping(ctx context.Context, key string) (*model.MappingRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	row := p.pool.QueryRow(ctx, `SELECT `+mappingColumns+` FROM mappings WHERE input_key = $1`, key)
	rec, err := scanMapping(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return rec, nil
}

// UpsertMapping inserts rec or overwrites the existing record for rec.Key,
// keeping created_at.
func (p *PostgresStorage) UpsertMapping(ctx context.Context, rec *model.MappingRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMapping(rec); err != nil {
		return err
	}

	now := time.Now().UTC()
	created := rec.CreatedAt.UTC()
	if rec.CreatedAt.IsZero() {
		created = now
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO mappings (`+mappingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (input_key) DO UPDATE SET
			category_id = EXCLUDED.category_id,
			category_alias = EXCLUDED.category_alias,
			full_name = EXCLUDED.full_name,
			confidence = EXCLUDED.confidence,
			provenance = EXCLUDED.provenance,
			taxonomy_version = EXCLUDED.taxonomy_version,
			updated_at = EXCLUDED.updated_at
	`, rec.Key, rec.CategoryID, aliasFor(rec), rec.FullName, string(rec.Confidence),
		string(rec.Provenance), rec.TaxonomyVersion, created, now)
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}

// MappingStats counts records by confidence and provenance.
func (p *PostgresStorage) MappingStats(ctx context.Context) (*model.MappingStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT confidence, provenance, COUNT(*)
		FROM mappings
		GROUP BY confidence, provenance
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping stats: %w", err)
	}
	defer rows.Close()

	stats := newStats()
	for rows.Next() {
		var (
			confidence, provenance string
			count                  int
		)
		if err := rows.Scan(&confidence, &provenance, &count); err != nil {
			return nil, fmt.Errorf("failed to scan mapping stats: %w", err)
		}
		stats.ByConfidence[model.Confidence(confidence)] += count
		stats.ByProvenance[model.Provenance(provenance)] += count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mapping stats: %w", err)
	}
	return stats, nil
}

// ListStaleMappings returns records whose taxonomy version differs from
// currentVersion, least recently updated first. limit <= 0 returns all of them.
func (p *PostgresStorage) ListStaleMappings(ctx context.Context, currentVersion string, limit int) ([]model.MappingRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := p.pool.Query(ctx, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE taxonomy_version <> $1
		ORDER BY updated_at, input_key
		LIMIT $2
	`, currentVersion, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale mappings: %w", err)
	}
	defer rows.Close()

	var records []model.MappingRecord
	for rows.Next() {
		rec, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mappings: %w", err)
	}
	return records, nil
}

// Close releases the pool.
func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}
