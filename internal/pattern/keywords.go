package pattern

import (
	"strings"

	"github.com/fieldmend/fieldmend/internal/model"
)

// patternKeywords is the fixed keyword vocabulary per correction
// pattern. Shared by recall (relevance scoring), apply (applicability)
// and learn (pattern inference) so all three stages agree on what
// textual evidence means.
var patternKeywords = map[string][]string{
	model.PatternVATIncluded: {"vat", "mwst", "inkl", "incl", "included", "prices incl"},
	model.PatternSkonto:      {"skonto", "discount", "within", "days"},
	model.PatternFreightSKU:  {"seefracht", "shipping", "transport", "freight"},
}

// Keywords returns the keyword set for a pattern name. Unknown patterns
// have no keywords and therefore never match on text.
func Keywords(pattern string) []string {
	return patternKeywords[pattern]
}

// AnyKeyword reports whether any of the pattern's keywords appears in
// rawLower. rawLower must already be lowercased.
func AnyKeyword(pattern, rawLower string) bool {
	for _, kw := range patternKeywords[pattern] {
		if strings.Contains(rawLower, kw) {
			return true
		}
	}
	return false
}

// CountKeywords counts how many of the pattern's keywords appear in
// rawLower.
func CountKeywords(pattern, rawLower string) int {
	n := 0
	for _, kw := range patternKeywords[pattern] {
		if strings.Contains(rawLower, kw) {
			n++
		}
	}
	return n
}
