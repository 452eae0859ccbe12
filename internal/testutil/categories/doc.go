// Package categories provides test infrastructure for building taxonomy trees.
//
// Trees are described as paths from a vertical down to a category; the builder
// assigns snapshot-style ids, levels, full names, children and ancestors, so
// tests can state the shape they need and nothing else.
//
// # Basic Usage
//
//	idx := categories.NewBuilder().
//		WithPath("Electronics", "Computers").
//		WithPath("Electronics", "Phones", "Smartphones").
//		WithPath("Furniture").
//		Index()
//
// # Fixtures
//
// FixtureElectronics is the small two-vertical tree used across the navigator
// and mapper tests:
//
//	idx := categories.NewBuilder().WithFixture(categories.FixtureElectronics).Index()
//
// # Identifiers
//
// Ids follow the vertical-prefix scheme: a vertical named "Electronics" gets
// prefix "el", its second child "el-2", that child's first child "el-2-1".
// By default ids are emitted in the long global form; WithBareIDs switches to
// the short form.
package categories
