// Package taxonomy holds the read-only category tree and its lookup and search indexes.
package taxonomy

import (
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/Veraticus/taxomap/internal/model"
)

// ErrEmptySnapshot is returned when a snapshot carries no verticals.
var ErrEmptySnapshot = errors.New("taxonomy snapshot has no verticals")

// Index is an immutable, lock-free view of one taxonomy generation.
type Index struct {
	byID      map[string]*model.Category
	byName    map[string][]*model.Category
	children  map[string][]*model.Category
	ancestors map[string][]*model.Category
	version   string
	verticals []model.Vertical
	all       []*model.Category
	maxLevel  int
}

// NewIndex builds an index from a snapshot. References to categories that are
// not present in the snapshot are dropped here, once, so lookups never have to
// re-check them.
func NewIndex(snap *Snapshot) *Index {
	idx := &Index{
		version:   snap.Version,
		byID:      make(map[string]*model.Category),
		byName:    make(map[string][]*model.Category),
		children:  make(map[string][]*model.Category),
		ancestors: make(map[string][]*model.Category),
		maxLevel:  -1,
	}

	roots := make([]*model.Category, len(snap.Verticals))
	for vi, v := range snap.Verticals {
		for _, sc := range v.Categories {
			if _, dup := idx.byID[sc.ID]; dup {
				slog.Debug("skipping duplicate category id", "id", sc.ID)
				continue
			}
			cat := &model.Category{
				ID:        sc.ID,
				Level:     sc.Level,
				Name:      sc.Name,
				FullName:  sc.FullName,
				Children:  sc.Children,
				Ancestors: sc.Ancestors,
			}
			if sc.ParentID != nil {
				cat.ParentID = *sc.ParentID
			}
			idx.add(cat)
			if roots[vi] == nil && cat.Level == 0 {
				roots[vi] = cat
			}
		}
	}

	dropped := 0
	for _, cat := range idx.all {
		kids, n := idx.resolve(cat.Children)
		dropped += n
		cat.Children = refsOf(kids)
		idx.children[cat.ID] = kids

		anc, n := idx.resolve(cat.Ancestors)
		dropped += n
		cat.Ancestors = refsOf(anc)
		idx.ancestors[cat.ID] = anc
	}
	if dropped > 0 {
		slog.Warn("dropped unresolved category references", "count", dropped, "version", snap.Version)
	}

	for vi, v := range snap.Verticals {
		if roots[vi] == nil {
			slog.Warn("vertical has no root category", "vertical", v.Name)
			continue
		}
		idx.verticals = append(idx.verticals, model.Vertical{
			Name:   v.Name,
			Prefix: v.Prefix,
			Root:   roots[vi],
		})
	}

	return idx
}

func (idx *Index) add(cat *model.Category) {
	idx.all = append(idx.all, cat)
	idx.byID[cat.ID] = cat
	if alias := aliasOf(cat.ID); alias != cat.ID {
		if _, taken := idx.byID[alias]; !taken {
			idx.byID[alias] = cat
		}
	}

	name := normalize(cat.Name)
	idx.byName[name] = append(idx.byName[name], cat)
	if full := normalize(cat.FullName); full != name {
		idx.byName[full] = append(idx.byName[full], cat)
	}

	if cat.Level > idx.maxLevel {
		idx.maxLevel = cat.Level
	}
}

// resolve maps refs onto indexed categories, returning how many were dropped.
func (idx *Index) resolve(refs []model.CategoryRef) ([]*model.Category, int) {
	out := make([]*model.Category, 0, len(refs))
	for _, ref := range refs {
		if cat, ok := idx.byID[ref.ID]; ok {
			out = append(out, cat)
		}
	}
	return slices.Clip(out), len(refs) - len(out)
}

func refsOf(cats []*model.Category) []model.CategoryRef {
	refs := make([]model.CategoryRef, len(cats))
	for i, c := range cats {
		refs[i] = model.CategoryRef{ID: c.ID, Name: c.Name}
	}
	return refs
}

// aliasOf returns the other id form: bare for a prefixed id, prefixed for a bare one.
func aliasOf(id string) string {
	if bare := model.BareID(id); bare != id {
		return bare
	}
	return model.AliasID(id)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Version returns the snapshot version the index was built from.
func (idx *Index) Version() string {
	return idx.version
}

// Len returns the number of distinct categories.
func (idx *Index) Len() int {
	return len(idx.all)
}

// MaxDepth returns the number of levels in the tree, which bounds the number of
// oracle turns a navigation can take.
func (idx *Index) MaxDepth() int {
	return idx.maxLevel + 1
}

// Category looks a category up by its canonical or alias id.
func (idx *Index) Category(id string) (*model.Category, bool) {
	cat, ok := idx.byID[id]
	return cat, ok
}

// Children returns the ordered children of id, or nil if id is unknown.
func (idx *Index) Children(id string) []*model.Category {
	cat, ok := idx.byID[id]
	if !ok {
		return nil
	}
	return idx.children[cat.ID]
}

// Ancestors returns the ancestors of id ordered root to parent.
func (idx *Index) Ancestors(id string) []*model.Category {
	cat, ok := idx.byID[id]
	if !ok {
		return nil
	}
	return idx.ancestors[cat.ID]
}

// Verticals returns the top-level partitions in snapshot order.
func (idx *Index) Verticals() []model.Vertical {
	return slices.Clip(idx.verticals)
}

// FindByName returns every category whose name or full path equals name,
// ignoring case and surrounding whitespace.
func (idx *Index) FindByName(name string) []*model.Category {
	return slices.Clip(idx.byName[normalize(name)])
}
