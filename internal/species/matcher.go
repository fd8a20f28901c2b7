// Package species resolves free-text and dex-number species input.
//
// Input is tried against a ranked chain of strategies; the first strategy
// that claims the input decides the result, even when that result is empty.
//
//	exact     case-insensitive full name
//	starter   any input containing "start" returns starter species
//	dex       a number matches that dex number across every species
//	short     fewer than three characters is a name substring search
//	region    region name substring or exact type name, claimed only on a hit
//	name      name substring
package species

import (
	"sort"
	"strconv"
	"strings"

	"github.com/duck57/poke-db/internal/domain"
)

type query struct {
	text     string
	universe []domain.Species
	all      []domain.Species
}

type strategy struct {
	name  string
	match func(q query) (found []domain.Species, claimed bool)
}

var chain = []strategy{
	{"exact", exactName},
	{"starter", starters},
	{"dex", dexNumber},
	{"short", shortName},
	{"region", regionOrType},
	{"name", nameSubstring},
}

// Match runs input through the strategy chain against all, restricted to
// universe except where a strategy searches every species. The result is
// ordered by dex number.
func Match(all []domain.Species, input string, universe domain.SpeciesUniverse) []domain.Species {
	_, found := matchWith(all, input, universe)
	return found
}

// Strategy reports which strategy claimed input. Empty when none did.
func Strategy(all []domain.Species, input string, universe domain.SpeciesUniverse) string {
	name, _ := matchWith(all, input, universe)
	return name
}

func matchWith(all []domain.Species, input string, universe domain.SpeciesUniverse) (string, []domain.Species) {
	text := strings.ToLower(strings.TrimSpace(input))
	if text == "" {
		return "", nil
	}
	q := query{text: text, all: all, universe: filter(all, universe.Allows)}
	for _, s := range chain {
		if found, claimed := s.match(q); claimed {
			return s.name, sorted(found)
		}
	}
	return "", nil
}

func exactName(q query) ([]domain.Species, bool) {
	found := filter(q.universe, func(s domain.Species) bool { return strings.ToLower(s.Name) == q.text })
	return found, len(found) > 0
}

func starters(q query) ([]domain.Species, bool) {
	if !strings.Contains(q.text, "start") {
		return nil, false
	}
	return filter(q.universe, func(s domain.Species) bool { return s.Category == domain.CategoryStarter }), true
}

func dexNumber(q query) ([]domain.Species, bool) {
	n, err := strconv.Atoi(q.text)
	if err != nil {
		return nil, false
	}
	return filter(q.all, func(s domain.Species) bool { return s.DexNumber == n }), true
}

func shortName(q query) ([]domain.Species, bool) {
	if len(q.text) >= 3 {
		return nil, false
	}
	return nameSubstring(q)
}

func regionOrType(q query) ([]domain.Species, bool) {
	found := filter(q.universe, func(s domain.Species) bool {
		return (s.Region != "" && strings.Contains(strings.ToLower(s.Region), q.text)) || s.HasType(q.text)
	})
	return found, len(found) > 0
}

func nameSubstring(q query) ([]domain.Species, bool) {
	return filter(q.universe, func(s domain.Species) bool {
		return strings.Contains(strings.ToLower(s.Name), q.text)
	}), true
}

// Family widens seeds with up to two evolution steps back and/or forward,
// limited to candidates in all.
func Family(all, seeds []domain.Species, previous, next bool) []domain.Species {
	byName := make(map[string]domain.Species, len(all))
	for _, s := range all {
		byName[strings.ToLower(s.Name)] = s
	}
	out := make(map[string]domain.Species, len(seeds))
	for _, s := range seeds {
		out[s.Name] = s
	}
	if previous {
		for _, s := range seeds {
			cur := s
			for step := 0; step < 2 && cur.PreviousEvolution != ""; step++ {
				prev, ok := byName[strings.ToLower(cur.PreviousEvolution)]
				if !ok {
					break
				}
				out[prev.Name] = prev
				cur = prev
			}
		}
	}
	if next {
		frontier := seeds
		for step := 0; step < 2 && len(frontier) > 0; step++ {
			var grown []domain.Species
			for _, f := range frontier {
				for _, c := range all {
					if c.PreviousEvolution != "" && strings.EqualFold(c.PreviousEvolution, f.Name) {
						if _, seen := out[c.Name]; !seen {
							out[c.Name] = c
							grown = append(grown, c)
						}
					}
				}
			}
			frontier = grown
		}
	}
	list := make([]domain.Species, 0, len(out))
	for _, s := range out {
		list = append(list, s)
	}
	return sorted(list)
}

func filter(in []domain.Species, keep func(domain.Species) bool) []domain.Species {
	var out []domain.Species
	for _, s := range in {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func sorted(in []domain.Species) []domain.Species {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].DexNumber != in[j].DexNumber {
			return in[i].DexNumber < in[j].DexNumber
		}
		return in[i].Name < in[j].Name
	})
	return in
}
