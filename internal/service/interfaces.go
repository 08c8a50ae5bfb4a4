// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/fieldmend/fieldmend/internal/model"
)

// Storage defines the contract for the persistence layer backing the
// correction pipeline. Read-modify-write sequences against the same
// natural key must be serialized by the implementation: the upsert
// primitives are atomic so two concurrent approvals for one memory
// cannot drop a reinforcement.
type Storage interface {
	// Vendor memory operations.
	GetVendorMemory(ctx context.Context, vendor, sourceLabel, targetField string) (*model.VendorMemory, error)
	GetVendorMemories(ctx context.Context, vendor string) ([]model.VendorMemory, error)
	UpsertVendorMemoryOnApproval(ctx context.Context, vendor, sourceLabel, targetField string) error
	RejectVendorMemory(ctx context.Context, id int64) error

	// Correction memory operations. GetCorrectionMemories returns the
	// vendor's patterns plus all global (nil vendor) patterns.
	GetCorrectionMemory(ctx context.Context, vendor *string, pattern, remediation string) (*model.CorrectionMemory, error)
	GetCorrectionMemories(ctx context.Context, vendor string) ([]model.CorrectionMemory, error)
	UpsertCorrectionMemoryOnApproval(ctx context.Context, vendor *string, pattern, remediation string) error
	RejectCorrectionMemory(ctx context.Context, id int64) error

	// Duplicate guard operations. MarkSeen is an idempotent insert
	// unique on (vendor, documentNumber).
	IsSeen(ctx context.Context, vendor, documentNumber string) (bool, error)
	MarkSeen(ctx context.Context, vendor, documentNumber string) error

	// Resolution log operations (append-only).
	AppendResolution(ctx context.Context, record *model.ResolutionRecord) error
	GetResolutions(ctx context.Context, documentID string) ([]model.ResolutionRecord, error)

	// Seeding.
	SeedDefaultCorrections(ctx context.Context) error

	// Database management.
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// PipelineStats summarizes the results of a batch processing run.
type PipelineStats struct {
	TotalDocuments int
	AutoAccepted   int
	AutoCorrected  int
	Escalated      int
	Duration       time.Duration
}
