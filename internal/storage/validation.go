// Package storage provides the data persistence layer for the fieldmend application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fieldmend/fieldmend/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrInvalidRecord    = errors.New("invalid resolution record")
	ErrInvalidMemoryKey = errors.New("invalid memory key")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateVendorKey validates the natural key of a vendor memory.
func validateVendorKey(vendor, sourceLabel, targetField string) error {
	if err := validateString(vendor, "vendor"); err != nil {
		return err
	}
	if err := validateString(sourceLabel, "sourceLabel"); err != nil {
		return err
	}
	if err := validateString(targetField, "targetField"); err != nil {
		return err
	}
	return nil
}

// validateCorrectionKey validates the natural key of a correction
// memory. A nil vendor is valid and means globally applicable; a
// non-nil empty vendor is not.
func validateCorrectionKey(vendor *string, pattern, remediation string) error {
	if vendor != nil && strings.TrimSpace(*vendor) == "" {
		return fmt.Errorf("%w: vendor must be nil or non-empty", ErrInvalidMemoryKey)
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return err
	}
	if err := validateString(remediation, "remediation"); err != nil {
		return err
	}
	return nil
}

// validateResolutionRecord validates a resolution record before append.
func validateResolutionRecord(record *model.ResolutionRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record", ErrNilParameter)
	}
	if strings.TrimSpace(record.DocumentID) == "" {
		return fmt.Errorf("%w: missing document ID", ErrInvalidRecord)
	}
	if strings.TrimSpace(record.Vendor) == "" {
		return fmt.Errorf("%w: missing vendor", ErrInvalidRecord)
	}
	switch record.MemoryKind {
	case model.KindVendor, model.KindCorrection:
	default:
		return fmt.Errorf("%w: unknown memory kind %q", ErrInvalidRecord, record.MemoryKind)
	}
	return nil
}
