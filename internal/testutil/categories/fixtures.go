package categories

// Fixture is a named set of category paths.
type Fixture struct {
	Name  string
	Paths [][]Name
}

// Predefined fixtures.
var (
	// FixtureElectronics has two verticals. Computers is a leaf, Phones has
	// two leaves, and Furniture reaches three levels under Chairs.
	FixtureElectronics = Fixture{
		Name: "Electronics",
		Paths: [][]Name{
			{Electronics, Computers},
			{Electronics, Phones, Smartphones},
			{Electronics, Phones, FeaturePhones},
			{Furniture, Chairs, OfficeChairs},
			{Furniture, Tables},
		},
	}

	// FixtureDeep is a single chain used for turn-bound tests.
	FixtureDeep = Fixture{
		Name: "Deep",
		Paths: [][]Name{
			{"L0", "L1", "L2", "L3", "L4", "L5"},
			{"L0", "L1", "Side"},
		},
	}
)
