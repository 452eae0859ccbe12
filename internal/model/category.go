package model

import "strings"

// AliasPrefix is the global-id form that snapshot ids may carry in front of the bare id.
const AliasPrefix = "gid://shopify/TaxonomyCategory/"

// CategoryRef is an (id, name) pair as it appears in a snapshot's children and ancestor lists.
type CategoryRef struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Category is one node of the taxonomy tree.
type Category struct {
	ID        string
	Name      string
	FullName  string
	ParentID  string
	Children  []CategoryRef
	Ancestors []CategoryRef
	Level     int
}

// IsLeaf reports whether the category has no children.
func (c *Category) IsLeaf() bool {
	return len(c.Children) == 0
}

// BareID returns the category id without the alias prefix.
func (c *Category) BareID() string {
	return BareID(c.ID)
}

// Vertical is a top-level partition of the taxonomy.
type Vertical struct {
	Root   *Category
	Name   string
	Prefix string
}

// BareID strips the alias prefix from id, if present.
func BareID(id string) string {
	return strings.TrimPrefix(id, AliasPrefix)
}

// AliasID returns the long global form of id.
func AliasID(id string) string {
	if strings.HasPrefix(id, AliasPrefix) {
		return id
	}
	return AliasPrefix + id
}
