package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/taxomap/internal/model"
)

const mappingColumns = `input_key, category_id, category_alias, full_name, confidence,
	provenance, taxonomy_version, created_at, updated_at`

// GetMapping returns the record stored under key, or nil if there is none.
func (s *SQLiteStorage) GetMapping(ctx context.Context, key string) (*model.MappingRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+mappingColumns+` FROM mappings WHERE input_key = ?`, key)
	rec, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return rec, nil
}

// UpsertMapping inserts rec or overwrites the existing record for rec.Key.
// created_at survives the overwrite; updated_at is always set to now.
func (s *SQLiteStorage) UpsertMapping(ctx context.Context, rec *model.MappingRecord) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mappings (`+mappingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(input_key) DO UPDATE SET
			category_id = excluded.category_id,
			category_alias = excluded.category_alias,
			full_name = excluded.full_name,
			confidence = excluded.confidence,
			provenance = excluded.provenance,
			taxonomy_version = excluded.taxonomy_version,
			updated_at = excluded.updated_at
	`, rec.Key, rec.CategoryID, aliasFor(rec), rec.FullName, string(rec.Confidence),
		string(rec.Provenance), rec.TaxonomyVersion, created, now)
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}

// MappingStats counts records by confidence and provenance.
func (s *SQLiteStorage) MappingStats(ctx context.Context) (*model.MappingStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT confidence, provenance, COUNT(*)
		FROM mappings
		GROUP BY confidence, provenance
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *SQLiteStorage) ListStaleMappings(ctx context.Context, currentVersion string, limit int) ([]model.MappingRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE taxonomy_version != ?
		ORDER BY updated_at, input_key
		LIMIT ?
	`, currentVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(row scanner) (*model.MappingRecord, error) {
	var (
		rec                    model.MappingRecord
		confidence, provenance string
	)
	err := row.Scan(
		&rec.Key,
		&rec.CategoryID,
		&rec.CategoryAlias,
		&rec.FullName,
		&confidence,
		&provenance,
		&rec.TaxonomyVersion,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Confidence = model.Confidence(confidence)
	rec.Provenance = model.Provenance(provenance)
	return &rec, nil
}

// aliasFor fills in the long id form when the caller left it empty.
func aliasFor(rec *model.MappingRecord) string {
	if rec.CategoryAlias != "" {
		return rec.CategoryAlias
	}
	return model.AliasID(rec.CategoryID)
}
