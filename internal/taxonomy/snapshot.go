package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/taxomap/internal/model"
)

// Snapshot is a versioned taxonomy export as distributed by the taxonomy publisher.
type Snapshot struct {
	Version   string             `json:"version" yaml:"version"`
	Verticals []SnapshotVertical `json:"verticals" yaml:"verticals"`
}

// SnapshotVertical is one top-level partition with its flat category list.
type SnapshotVertical struct {
	Name       string             `json:"name" yaml:"name"`
	Prefix     string             `json:"prefix" yaml:"prefix"`
	Categories []SnapshotCategory `json:"categories" yaml:"categories"`
}

// SnapshotCategory is a category as it appears in a snapshot.
type SnapshotCategory struct {
	ParentID   *string             `json:"parent_id" yaml:"parent_id"`
	ID         string              `json:"id" yaml:"id"`
	Name       string              `json:"name" yaml:"name"`
	FullName   string              `json:"full_name" yaml:"full_name"`
	Attributes []SnapshotAttribute `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Children   []model.CategoryRef `json:"children" yaml:"children"`
	Ancestors  []model.CategoryRef `json:"ancestors" yaml:"ancestors"`
	Level      int                 `json:"level" yaml:"level"`
}

// SnapshotAttribute is carried through decoding but not used for navigation.
type SnapshotAttribute struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ReadSnapshot decodes a snapshot file. Files ending in .yaml or .yml are read
// as YAML, everything else as JSON.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy snapshot: %w", err)
	}

	var snap Snapshot
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("failed to parse YAML snapshot %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("failed to parse JSON snapshot %s: %w", path, err)
		}
	}

	if len(snap.Verticals) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySnapshot, path)
	}

	return &snap, nil
}

// LoadFile reads a snapshot and builds its index.
func LoadFile(path string) (*Index, error) {
	snap, err := ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return NewIndex(snap), nil
}
