package chem

import (
	"strings"
	"unicode"
)

// NotNamed is the sentinel used for compounds without a real name.
const NotNamed = "Not named"

// Markers curators use for unnamed compounds, in lowercase.
var unnamedMarkers = map[string]bool{
	"":          true,
	"no name":   true,
	"not named": true,
	"none":      true,
	"unknown":   true,
	"unkown":    true,
	"non":       true,
	"unnamed":   true,
	"unnnamed":  true,
	"n/a":       true,
	"na":        true,
}

// RegularizeName bringt einen kuratierten Verbindungs-Namen in kanonische
// Form: Platzhalter werden zu "Not named", das erste Wort wird großgeschrieben,
// nachfolgende reine Buchstaben-Wörter kleingeschrieben und Wörter mit Ziffern
// (z.B. "a1" -> "A1") großgeschrieben.
func RegularizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if unnamedMarkers[strings.ToLower(name)] {
		return NotNamed
	}

	words := strings.Split(name, " ")
	for i, word := range words {
		switch {
		case i == 0:
			words[i] = CapitalizeFirst(word)
		case containsDigit(word):
			words[i] = CapitalizeFirst(word)
		case isAlphabetic(word):
			words[i] = DecapitalizeFirst(word)
		}
	}
	return strings.Join(words, " ")
}

// CapitalizeFirst schreibt den ersten Buchstaben eines Strings groß.
func CapitalizeFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// DecapitalizeFirst schreibt den ersten Buchstaben eines Strings klein.
func DecapitalizeFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func isAlphabetic(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return len(s) > 0
}
