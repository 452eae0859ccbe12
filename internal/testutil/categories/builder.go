package categories

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Veraticus/taxomap/internal/model"
	"github.com/Veraticus/taxomap/internal/taxonomy"
)

// Name is a category name used in test trees.
type Name = string

// Common names used across tests.
const (
	Electronics   Name = "Electronics"
	Computers     Name = "Computers"
	Laptops       Name = "Laptops"
	Desktops      Name = "Desktops"
	Phones        Name = "Phones"
	Smartphones   Name = "Smartphones"
	FeaturePhones Name = "Feature Phones"
	Furniture     Name = "Furniture"
	Chairs        Name = "Chairs"
	OfficeChairs  Name = "Office Chairs"
	Tables        Name = "Tables"
)

// Builder assembles a taxonomy snapshot from category paths.
type Builder struct {
	nodes    map[string]*node
	version  string
	roots    []*node
	bareIDs  bool
	dangling []dangling
}

type node struct {
	parent   *node
	name     string
	bareID   string
	children []*node
}

type dangling struct {
	path []Name
	id   string
}

// NewBuilder returns an empty builder at version "test".
func NewBuilder() *Builder {
	return &Builder{
		nodes:   make(map[string]*node),
		version: "test",
	}
}

// WithVersion sets the snapshot version.
func (b *Builder) WithVersion(version string) *Builder {
	b.version = version
	return b
}

// WithBareIDs emits short ids instead of the global form.
func (b *Builder) WithBareIDs() *Builder {
	b.bareIDs = true
	return b
}

// WithPath adds the categories along path, creating missing ones in order.
func (b *Builder) WithPath(path ...Name) *Builder {
	var parent *node
	for depth := range path {
		key := strings.Join(path[:depth+1], " > ")
		n, ok := b.nodes[key]
		if !ok {
			n = &node{parent: parent, name: path[depth]}
			if parent == nil {
				n.bareID = b.prefixFor(path[0])
				b.roots = append(b.roots, n)
			} else {
				parent.children = append(parent.children, n)
				n.bareID = fmt.Sprintf("%s-%d", parent.bareID, len(parent.children))
			}
			b.nodes[key] = n
		}
		parent = n
	}
	return b
}

// WithDanglingChild adds a child reference to the category at path that points
// at an id absent from the snapshot.
func (b *Builder) WithDanglingChild(id string, path ...Name) *Builder {
	b.dangling = append(b.dangling, dangling{path: path, id: id})
	return b
}

// WithFixture adds every path of f.
func (b *Builder) WithFixture(f Fixture) *Builder {
	for _, p := range f.Paths {
		b.WithPath(p...)
	}
	return b
}

// Snapshot renders the tree in snapshot form.
func (b *Builder) Snapshot() *taxonomy.Snapshot {
	snap := &taxonomy.Snapshot{Version: b.version}
	for _, root := range b.roots {
		v := taxonomy.SnapshotVertical{Name: root.name, Prefix: root.bareID}
		b.walk(root, nil, &v.Categories)
		snap.Verticals = append(snap.Verticals, v)
	}
	return snap
}

// Index builds the snapshot's index.
func (b *Builder) Index() *taxonomy.Index {
	return taxonomy.NewIndex(b.Snapshot())
}

// ID returns the id the builder assigned to path, failing the test if absent.
func (b *Builder) ID(t *testing.T, path ...Name) string {
	t.Helper()
	n, ok := b.nodes[strings.Join(path, " > ")]
	if !ok {
		t.Fatalf("path %q not in test tree", strings.Join(path, " > "))
	}
	return b.id(n)
}

func (b *Builder) id(n *node) string {
	if b.bareIDs {
		return n.bareID
	}
	return model.AliasID(n.bareID)
}

func (b *Builder) walk(n *node, ancestors []*node, out *[]taxonomy.SnapshotCategory) {
	names := make([]string, 0, len(ancestors)+1)
	refs := make([]model.CategoryRef, 0, len(ancestors))
	for _, a := range ancestors {
		names = append(names, a.name)
		refs = append(refs, model.CategoryRef{ID: b.id(a), Name: a.name})
	}
	names = append(names, n.name)

	sc := taxonomy.SnapshotCategory{
		ID:        b.id(n),
		Level:     len(ancestors),
		Name:      n.name,
		FullName:  strings.Join(names, " > "),
		Ancestors: refs,
		Children:  []model.CategoryRef{},
	}
	if n.parent != nil {
		pid := b.id(n.parent)
		sc.ParentID = &pid
	}
	for _, c := range n.children {
		sc.Children = append(sc.Children, model.CategoryRef{ID: b.id(c), Name: c.name})
	}
	for _, d := range b.dangling {
		if strings.Join(d.path, " > ") == sc.FullName {
			sc.Children = append(sc.Children, model.CategoryRef{ID: d.id, Name: "missing"})
		}
	}
	*out = append(*out, sc)

	next := append(append([]*node{}, ancestors...), n)
	for _, c := range n.children {
		b.walk(c, next, out)
	}
}

// prefixFor derives a two-letter vertical prefix, numbered on collision.
func (b *Builder) prefixFor(name string) string {
	p := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	if len(p) > 2 {
		p = p[:2]
	}
	candidate := p
	for i := 2; b.usesPrefix(candidate); i++ {
		candidate = fmt.Sprintf("%s%d", p, i)
	}
	return candidate
}

func (b *Builder) usesPrefix(prefix string) bool {
	for _, r := range b.roots {
		if r.bareID == prefix {
			return true
		}
	}
	return false
}
