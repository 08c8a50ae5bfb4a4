// Package pattern implements the text scanning used by the correction
// pipeline: label-anchored value extraction, bounded-vocabulary
// recovery, discount-terms extraction, and the keyword sets that make
// learned patterns recognizable in raw document text.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Label-anchored extraction grammar:
//
//	match    := label separator value
//	separator := one or more of ':' or whitespace
//	value    := one or more of [0-9 . / -]
//
// A value containing '.' separators is treated as a dotted date in
// day.month.year order and renormalized to year-month-day.

var (
	labelMu    sync.Mutex
	labelCache = make(map[string]*regexp.Regexp)
)

func labelRegexp(label string) *regexp.Regexp {
	labelMu.Lock()
	defer labelMu.Unlock()

	if re, ok := labelCache[label]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(label) + `[:\s]+([\d./-]+)`)
	labelCache[label] = re
	return re
}

// ExtractLabeledValue scans rawText for label followed by a separator
// and a numeric/date token. The second return is false when the label
// does not anchor a value anywhere in the text.
func ExtractLabeledValue(rawText, label string) (string, bool) {
	m := labelRegexp(label).FindStringSubmatch(rawText)
	if m == nil {
		return "", false
	}
	return NormalizeDate(m[1]), true
}

// NormalizeDate renormalizes a dotted day.month.year token to
// year-month-day (20.01.2024 -> 2024-01-20). Other values pass through
// unchanged.
func NormalizeDate(value string) string {
	if !strings.Contains(value, ".") {
		return value
	}
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return value
	}
	return fmt.Sprintf("%s-%s-%s", parts[2], parts[1], parts[0])
}

// currencyRe covers the bounded currency alphabet recoverable from raw
// text when extraction left the field empty.
var currencyRe = regexp.MustCompile(`(?i)\b(EUR|USD|INR|GBP|CHF|AUD|CAD)\b`)

// ExtractCurrency recovers an uppercase ISO currency code from rawText.
func ExtractCurrency(rawText string) (string, bool) {
	m := currencyRe.FindStringSubmatch(rawText)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

// Discount clause extraction accepts both word orders and both language
// variants: "2% Skonto within 10 days", "3% Skonto innerhalb von 14
// Tagen", "Skonto ... 2% ... 10 Tagen".
var (
	discountPercentFirstRe = regexp.MustCompile(`(?i)(\d{1,2}\s*%\s*skonto[^.\n]*?\b\d{1,3}\s*(?:days|tagen)\b)`)
	discountWordFirstRe    = regexp.MustCompile(`(?i)(skonto[^.\n]*?\d{1,2}\s*%[^.\n]*?\b\d{1,3}\s*(?:days|tagen)\b)`)
	spaceRe                = regexp.MustCompile(`\s+`)
)

// ExtractDiscountTerms pulls a discount clause out of rawText,
// collapsing internal whitespace. The second return is false when no
// clause is present.
func ExtractDiscountTerms(rawText string) (string, bool) {
	m := discountPercentFirstRe.FindStringSubmatch(rawText)
	if m == nil {
		m = discountWordFirstRe.FindStringSubmatch(rawText)
	}
	if m == nil {
		return "", false
	}
	return spaceRe.ReplaceAllString(strings.TrimSpace(m[1]), " "), true
}

// ContainsLabel reports whether label appears in rawText, ignoring case.
// Vendor mapping relevance is exactly this test.
func ContainsLabel(rawText, label string) bool {
	return strings.Contains(strings.ToLower(rawText), strings.ToLower(label))
}
