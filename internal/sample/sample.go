// Package sample loads invoice documents and human feedback files from
// YAML. These are boundary payloads only; the pipeline never reads
// files itself.
package sample

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fieldmend/fieldmend/internal/model"
)

// LoadInvoice reads and validates a single invoice document.
func LoadInvoice(path string) (*model.Invoice, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied fixture path
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice file: %w", err)
	}

	var inv model.Invoice
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse invoice file %s: %w", path, err)
	}
	if err := inv.Validate(); err != nil {
		return nil, fmt.Errorf("invoice file %s: %w", path, err)
	}
	return &inv, nil
}

// LoadInvoices reads all invoice documents in a directory, sorted by
// file name for deterministic batch order. Non-YAML files are skipped.
func LoadInvoices(dir string) ([]model.Invoice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	invoices := make([]model.Invoice, 0, len(paths))
	for _, path := range paths {
		inv, loadErr := LoadInvoice(path)
		if loadErr != nil {
			return nil, loadErr
		}
		invoices = append(invoices, *inv)
	}
	return invoices, nil
}

// LoadFeedback reads and validates a human correction log.
func LoadFeedback(path string) (*model.HumanCorrectionLog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied fixture path
	if err != nil {
		return nil, fmt.Errorf("failed to read feedback file: %w", err)
	}

	var log model.HumanCorrectionLog
	if err := yaml.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("failed to parse feedback file %s: %w", path, err)
	}
	if err := log.Validate(); err != nil {
		return nil, fmt.Errorf("feedback file %s: %w", path, err)
	}
	return &log, nil
}
