package chem

import (
	"regexp"
	"strings"
)

var speciesPlaceholder = regexp.MustCompile(`(?i)\b(spp\.|sps\.|spp|sps|sp)(\s|$)`)

// SplitSourceOrganism zerlegt einen freien "Genus species"-String. Beginnt der
// String mit "Unknown", umfasst der Genus die ersten zwei Tokens (mit "-"
// verbunden). Fehlt die Art, wird "sp." eingesetzt.
func SplitSourceOrganism(organism string) (genus, species string) {
	tokens := strings.Fields(strings.TrimSpace(organism))
	if len(tokens) == 0 {
		return "", "sp."
	}
	if len(tokens) == 1 {
		return tokens[0], "sp."
	}

	genusIndex := 1
	if tokens[0] == "Unknown" || tokens[0] == "unknown" {
		genusIndex = 2
	}
	genus = strings.Join(tokens[:genusIndex], "-")
	species = strings.Join(tokens[genusIndex:], " ")
	if species == "" {
		species = "sp."
	}
	return genus, CleanSpecies(species)
}

// CleanSpecies dekapitalisiert den Art-Namen und normalisiert alle gängigen
// "species"-Platzhalter (sp, sps, sps., spp., spp) zu "sp.".
func CleanSpecies(species string) string {
	species = DecapitalizeFirst(species)
	return speciesPlaceholder.ReplaceAllString(species, "sp.$2")
}
