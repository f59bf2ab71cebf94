// Package reconcile matches priced inventory items against storefront rows.
package reconcile

import (
	"strings"
	"unicode/utf8"

	"github.com/and161185/storefront-sync/internal/model"
)

// MatchFunc finds the rows a name maps to. It must not mutate catalog.
type MatchFunc func(name string, catalog []model.CatalogRow) []model.CatalogRow

// Strategy is a named matcher. Single strategies update at most one row.
type Strategy struct {
	Name   string
	Match  MatchFunc
	Single bool
}

const (
	StrategyExact           = "exact"
	StrategyCaseInsensitive = "case_insensitive"
	StrategyTrimmed         = "trimmed"
	StrategyPrefix          = "prefix"
	StrategySingleWord      = "single_word"
)

const (
	prefixLen      = 20
	wordMinForPick = 4 // first word longer than 3 characters
)

// Cascade is the ordered list of strategies; the first non-empty result wins.
var Cascade = []Strategy{
	{Name: StrategyExact, Match: MatchExact},
	{Name: StrategyCaseInsensitive, Match: MatchCaseInsensitive},
	{Name: StrategyTrimmed, Match: MatchTrimmed},
	{Name: StrategyPrefix, Match: MatchPrefix},
	{Name: StrategySingleWord, Match: MatchSingleWord, Single: true},
}

// FirstMatch runs strategies in order and returns the first one that matched.
func FirstMatch(strategies []Strategy, name string, catalog []model.CatalogRow) (Strategy, []model.CatalogRow, bool) {
	for _, s := range strategies {
		if rows := s.Match(name, catalog); len(rows) > 0 {
			if s.Single {
				rows = rows[:1]
			}
			return s, rows, true
		}
	}
	return Strategy{}, nil, false
}

func filter(catalog []model.CatalogRow, keep func(model.CatalogRow) bool) []model.CatalogRow {
	var out []model.CatalogRow
	for _, r := range catalog {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// MatchExact compares names byte for byte.
func MatchExact(name string, catalog []model.CatalogRow) []model.CatalogRow {
	return filter(catalog, func(r model.CatalogRow) bool { return r.Name == name })
}

// MatchCaseInsensitive compares names under Unicode case folding.
func MatchCaseInsensitive(name string, catalog []model.CatalogRow) []model.CatalogRow {
	return filter(catalog, func(r model.CatalogRow) bool { return strings.EqualFold(r.Name, name) })
}

// MatchTrimmed applies only when trimming changes the name, then compares trimmed names case-insensitively.
func MatchTrimmed(name string, catalog []model.CatalogRow) []model.CatalogRow {
	t := strings.TrimSpace(name)
	if t == name || t == "" {
		return nil
	}
	return filter(catalog, func(r model.CatalogRow) bool { return strings.EqualFold(strings.TrimSpace(r.Name), t) })
}

// MatchPrefix matches rows starting with the first 20 characters of name, compared
// case-insensitively. A shorter name is its own prefix.
func MatchPrefix(name string, catalog []model.CatalogRow) []model.CatalogRow {
	p := strings.ToLower(runePrefix(strings.TrimSpace(name), prefixLen))
	if p == "" {
		return nil
	}
	return filter(catalog, func(r model.CatalogRow) bool {
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Name)), p)
	})
}

// MatchSingleWord matches rows containing the first word of name longer than 3 characters.
func MatchSingleWord(name string, catalog []model.CatalogRow) []model.CatalogRow {
	w := SignificantWord(name)
	if w == "" {
		return nil
	}
	return filter(catalog, func(r model.CatalogRow) bool {
		for _, f := range strings.Fields(strings.ToLower(r.Name)) {
			if f == w {
				return true
			}
		}
		return false
	})
}

// SignificantWord returns the lower-cased first word longer than 3 characters, or "".
func SignificantWord(name string) string {
	for _, f := range strings.Fields(strings.ToLower(name)) {
		if utf8.RuneCountInString(f) >= wordMinForPick {
			return f
		}
	}
	return ""
}

func runePrefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Diagnose lists up to limit catalog names sharing a substring with name, for operator inspection.
func Diagnose(name string, catalog []model.CatalogRow, limit int) []string {
	needle := strings.ToLower(strings.TrimSpace(name))
	words := strings.Fields(needle)
	var out []string
	for _, r := range catalog {
		if len(out) >= limit {
			break
		}
		hay := strings.ToLower(strings.TrimSpace(r.Name))
		if hay == "" {
			continue
		}
		if needle != "" && (strings.Contains(hay, needle) || strings.Contains(needle, hay)) {
			out = append(out, r.Name)
			continue
		}
		for _, w := range words {
			if utf8.RuneCountInString(w) >= wordMinForPick && strings.Contains(hay, w) {
				out = append(out, r.Name)
				break
			}
		}
	}
	return out
}
