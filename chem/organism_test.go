package chem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSourceOrganism(t *testing.T) {
	cases := []struct {
		in          string
		wantGenus   string
		wantSpecies string
	}{
		{"Streptomyces coelicolor", "Streptomyces", "coelicolor"},
		{"Streptomyces", "Streptomyces", "sp."},
		{"", "", "sp."},
		{"Unknown sp. bacterium XYZ", "Unknown-sp.", "bacterium XYZ"},
		{"unknown fungus MF-37", "unknown-fungus", "mF-37"},
		{"Aspergillus Sp.", "Aspergillus", "sp."},
		{"Penicillium spp.", "Penicillium", "sp."},
	}
	for _, tc := range cases {
		genus, species := SplitSourceOrganism(tc.in)
		assert.Equal(t, tc.wantGenus, genus, "genus of %q", tc.in)
		assert.Equal(t, tc.wantSpecies, species, "species of %q", tc.in)
	}
}

func TestCleanSpeciesPlaceholders(t *testing.T) {
	for _, placeholder := range []string{"sp", "sp.", "sps", "sps.", "spp", "spp.", "Spp"} {
		assert.Equal(t, "sp.", CleanSpecies(placeholder), "placeholder %q", placeholder)
	}
	// Echte Artnamen bleiben unangetastet.
	assert.Equal(t, "spoon", CleanSpecies("spoon"))
	assert.Equal(t, "coelicolor", CleanSpecies("Coelicolor"))
}
