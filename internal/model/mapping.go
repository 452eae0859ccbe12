// Package model defines the core domain models used throughout the application.
package model

import "time"

// Confidence is the trust tier attached to a mapping.
type Confidence string

// Confidence tiers.
const (
	// ConfidenceHigh means a leaf was reached on the chosen path.
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium means the parent fallback option was used.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow is reserved for manually curated records.
	ConfidenceLow Confidence = "low"
)

// Valid reports whether c is one of the known tiers.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	default:
		return false
	}
}

// Provenance records where a mapping came from.
type Provenance string

// Provenance values.
const (
	ProvenanceOracle Provenance = "oracle"
	ProvenanceManual Provenance = "manual"
)

// Valid reports whether p is one of the known provenances.
func (p Provenance) Valid() bool {
	return p == ProvenanceOracle || p == ProvenanceManual
}

// MappingRecord is a memoized input → category selection.
// Key is matched byte for byte; it is never trimmed or case-folded.
type MappingRecord struct {
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Key             string
	CategoryID      string
	CategoryAlias   string
	FullName        string
	Confidence      Confidence
	Provenance      Provenance
	TaxonomyVersion string
}

// MappingStats summarizes the mapping cache contents.
type MappingStats struct {
	ByConfidence map[Confidence]int
	ByProvenance map[Provenance]int
	Total        int
}
