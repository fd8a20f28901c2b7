package domain

import "strings"

// SpeciesInput is species text with its manual-entry suffixes split off.
type SpeciesInput struct {
	Text      string
	Force     bool
	SearchAll bool
}

// ParseSpeciesInput handles "Pikachu|1", "Tyrogue*" and "Porygon-Z*|2".
// A "|" requests forced confirmation and a "*" widens the search to every
// species; the species text is whatever precedes the first of either.
func ParseSpeciesInput(raw string) SpeciesInput {
	in := SpeciesInput{
		Force:     strings.Contains(raw, "|"),
		SearchAll: strings.Contains(raw, "*"),
	}
	text, _, _ := strings.Cut(raw, "|")
	text, _, _ = strings.Cut(text, "*")
	in.Text = strings.TrimSpace(text)
	return in
}
