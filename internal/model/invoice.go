// Package model defines the core data structures for the fieldmend application.
package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LineItem is a single invoice line.
type LineItem struct {
	SKU         *string `yaml:"sku" json:"sku"`
	Description string  `yaml:"description" json:"description"`
	Qty         float64 `yaml:"qty" json:"qty"`
	UnitPrice   float64 `yaml:"unit_price" json:"unit_price"`
}

// InvoiceFields is the structured field set produced by upstream extraction.
// Optional fields use pointers so "absent" is distinguishable from zero.
type InvoiceFields struct {
	InvoiceNumber string     `yaml:"invoice_number" json:"invoice_number"`
	InvoiceDate   string     `yaml:"invoice_date" json:"invoice_date"`
	ServiceDate   *string    `yaml:"service_date" json:"service_date"`
	Currency      *string    `yaml:"currency" json:"currency"`
	PONumber      *string    `yaml:"po_number" json:"po_number"`
	DiscountTerms *string    `yaml:"discount_terms" json:"discount_terms"`
	NetTotal      *float64   `yaml:"net_total" json:"net_total"`
	TaxRate       *float64   `yaml:"tax_rate" json:"tax_rate"`
	TaxTotal      *float64   `yaml:"tax_total" json:"tax_total"`
	GrossTotal    *float64   `yaml:"gross_total" json:"gross_total"`
	LineItems     []LineItem `yaml:"line_items" json:"line_items"`
}

// Invoice is a document entering the pipeline. The pipeline only reads it.
type Invoice struct {
	ID         string        `yaml:"id" json:"id"`
	Vendor     string        `yaml:"vendor" json:"vendor"`
	Fields     InvoiceFields `yaml:"fields" json:"fields"`
	Confidence float64       `yaml:"confidence" json:"confidence"`
	RawText    string        `yaml:"raw_text" json:"raw_text"`
}

// Field path constants used by corrections and learning signals.
const (
	FieldServiceDate   = "serviceDate"
	FieldCurrency      = "currency"
	FieldPONumber      = "poNumber"
	FieldDiscountTerms = "discountTerms"
	FieldNetTotal      = "netTotal"
	FieldTaxTotal      = "taxTotal"
	FieldGrossTotal    = "grossTotal"
)

// LineItemSKUField returns the correction field path for a line item's SKU.
func LineItemSKUField(index int) string {
	return fmt.Sprintf("lineItems[%d].sku", index)
}

var lineItemSKURe = regexp.MustCompile(`^lineItems\[(\d+)\]\.sku$`)

// LineItemSKUIndex parses a lineItems[N].sku path. The second return is
// false when the path is not a line item SKU path.
func LineItemSKUIndex(path string) (int, bool) {
	m := lineItemSKURe.FindStringSubmatch(path)
	if m == nil {
		return 0, false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return idx, true
}

// Lookup resolves a correction field path to its current value.
// Absent optional fields resolve to nil.
func (f *InvoiceFields) Lookup(path string) any {
	switch path {
	case "invoiceNumber":
		return f.InvoiceNumber
	case "invoiceDate":
		return f.InvoiceDate
	case FieldServiceDate:
		return deref(f.ServiceDate)
	case FieldCurrency:
		return deref(f.Currency)
	case FieldPONumber:
		return deref(f.PONumber)
	case FieldDiscountTerms:
		return deref(f.DiscountTerms)
	case FieldNetTotal:
		return derefFloat(f.NetTotal)
	case FieldTaxTotal:
		return derefFloat(f.TaxTotal)
	case FieldGrossTotal:
		return derefFloat(f.GrossTotal)
	case "taxRate":
		return derefFloat(f.TaxRate)
	}

	if idx, ok := LineItemSKUIndex(path); ok && idx < len(f.LineItems) {
		return deref(f.LineItems[idx].SKU)
	}

	return nil
}

// Validate checks invariants required before a pipeline run.
func (inv *Invoice) Validate() error {
	if strings.TrimSpace(inv.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidInvoice)
	}
	if strings.TrimSpace(inv.Vendor) == "" {
		return fmt.Errorf("%w: missing vendor", ErrInvalidInvoice)
	}
	if strings.TrimSpace(inv.Fields.InvoiceNumber) == "" {
		return fmt.Errorf("%w: missing invoice number", ErrInvalidInvoice)
	}
	return nil
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
