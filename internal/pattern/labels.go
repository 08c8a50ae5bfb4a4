package pattern

import (
	"strings"

	"github.com/fieldmend/fieldmend/internal/model"
)

// fieldLabels maps a structured target field to the source labels
// known to carry it in vendor documents. Learning consults this lexicon
// instead of matching on vendor or document identity: a mapping is only
// learned when one of these labels is discoverable verbatim in the
// document's raw text or in the reviewer's stated reason.
var fieldLabels = map[string][]string{
	model.FieldServiceDate: {"Leistungsdatum", "Leistungszeitraum", "Service Date"},
	model.FieldPONumber:    {"Bestellnummer", "PO Number", "Order No"},
	model.FieldCurrency:    {"Währung", "Currency"},
}

// DiscoverSourceLabel finds a known source label for field that appears
// in either the document raw text or the reviewer's reason. The match
// is case-insensitive, but the returned label keeps its canonical
// casing so repeated learning converges on one natural key.
func DiscoverSourceLabel(field, rawText, reason string) (string, bool) {
	rawLower := strings.ToLower(rawText)
	reasonLower := strings.ToLower(reason)

	for _, label := range fieldLabels[field] {
		ll := strings.ToLower(label)
		if strings.Contains(rawLower, ll) || strings.Contains(reasonLower, ll) {
			return label, true
		}
	}
	return "", false
}
