package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fieldmend/fieldmend/internal/common"
	"github.com/fieldmend/fieldmend/internal/confidence"
	"github.com/fieldmend/fieldmend/internal/model"
	"github.com/fieldmend/fieldmend/internal/service"
)

// mockStorage is an in-memory service.Storage for engine unit tests.
type mockStorage struct {
	vendorMemories     []model.VendorMemory
	correctionMemories []model.CorrectionMemory
	resolutions        []model.ResolutionRecord
	seen               map[string]bool
	nextID             int64

	failReads bool
}

func newMockStorage() *mockStorage {
	return &mockStorage{seen: make(map[string]bool), nextID: 1}
}

func (m *mockStorage) addVendorMemory(mem model.VendorMemory) *model.VendorMemory {
	mem.ID = m.nextID
	m.nextID++
	m.vendorMemories = append(m.vendorMemories, mem)
	return &m.vendorMemories[len(m.vendorMemories)-1]
}

func (m *mockStorage) addCorrectionMemory(mem model.CorrectionMemory) *model.CorrectionMemory {
	mem.ID = m.nextID
	m.nextID++
	m.correctionMemories = append(m.correctionMemories, mem)
	return &m.correctionMemories[len(m.correctionMemories)-1]
}

func seenKey(vendor, documentNumber string) string {
	return vendor + "|" + documentNumber
}

func (m *mockStorage) GetVendorMemory(_ context.Context, vendor, sourceLabel, targetField string) (*model.VendorMemory, error) {
	for i := range m.vendorMemories {
		mem := &m.vendorMemories[i]
		if mem.Vendor == vendor && mem.SourceLabel == sourceLabel && mem.TargetField == targetField {
			out := *mem
			return &out, nil
		}
	}
	return nil, nil
}

func (m *mockStorage) GetVendorMemories(_ context.Context, vendor string) ([]model.VendorMemory, error) {
	if m.failReads {
		return nil, fmt.Errorf("storage unavailable")
	}
	var out []model.VendorMemory
	for _, mem := range m.vendorMemories {
		if mem.Vendor == vendor {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *mockStorage) UpsertVendorMemoryOnApproval(_ context.Context, vendor, sourceLabel, targetField string) error {
	now := time.Now().UTC()
	for i := range m.vendorMemories {
		mem := &m.vendorMemories[i]
		if mem.Vendor == vendor && mem.SourceLabel == sourceLabel && mem.TargetField == targetField {
			mem.Confidence = confidence.Reinforce(mem.Confidence)
			mem.ReinforcedCount++
			mem.UsageCount++
			mem.LastUsedAt = &now
			mem.UpdatedAt = now
			return nil
		}
	}
	m.addVendorMemory(model.VendorMemory{
		Vendor:          vendor,
		SourceLabel:     sourceLabel,
		TargetField:     targetField,
		Confidence:      confidence.Initial,
		ReinforcedCount: 1,
		LastUsedAt:      &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	return nil
}

func (m *mockStorage) RejectVendorMemory(_ context.Context, id int64) error {
	for i := range m.vendorMemories {
		if m.vendorMemories[i].ID == id {
			m.vendorMemories[i].RejectedCount++
			return nil
		}
	}
	return common.ErrMemoryNotFound
}

func (m *mockStorage) GetCorrectionMemory(_ context.Context, vendor *string, pattern, remediation string) (*model.CorrectionMemory, error) {
	for i := range m.correctionMemories {
		mem := &m.correctionMemories[i]
		if sameVendor(mem.Vendor, vendor) && mem.Pattern == pattern && mem.Remediation == remediation {
			out := *mem
			return &out, nil
		}
	}
	return nil, nil
}

func (m *mockStorage) GetCorrectionMemories(_ context.Context, vendor string) ([]model.CorrectionMemory, error) {
	if m.failReads {
		return nil, fmt.Errorf("storage unavailable")
	}
	var out []model.CorrectionMemory
	for _, mem := range m.correctionMemories {
		if mem.Vendor == nil || *mem.Vendor == vendor {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *mockStorage) UpsertCorrectionMemoryOnApproval(_ context.Context, vendor *string, pattern, remediation string) error {
	now := time.Now().UTC()
	for i := range m.correctionMemories {
		mem := &m.correctionMemories[i]
		if sameVendor(mem.Vendor, vendor) && mem.Pattern == pattern && mem.Remediation == remediation {
			mem.Confidence = confidence.Reinforce(mem.Confidence)
			mem.ReinforcedCount++
			mem.UsageCount++
			mem.LastUsedAt = &now
			mem.UpdatedAt = now
			return nil
		}
	}
	var v *string
	if vendor != nil {
		copied := *vendor
		v = &copied
	}
	m.addCorrectionMemory(model.CorrectionMemory{
		Vendor:          v,
		Pattern:         pattern,
		Remediation:     remediation,
		Confidence:      confidence.Initial,
		ReinforcedCount: 1,
		LastUsedAt:      &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	return nil
}

func (m *mockStorage) RejectCorrectionMemory(_ context.Context, id int64) error {
	for i := range m.correctionMemories {
		if m.correctionMemories[i].ID == id {
			m.correctionMemories[i].RejectedCount++
			return nil
		}
	}
	return common.ErrMemoryNotFound
}

func (m *mockStorage) IsSeen(_ context.Context, vendor, documentNumber string) (bool, error) {
	return m.seen[seenKey(vendor, documentNumber)], nil
}

func (m *mockStorage) MarkSeen(_ context.Context, vendor, documentNumber string) error {
	m.seen[seenKey(vendor, documentNumber)] = true
	return nil
}

func (m *mockStorage) AppendResolution(_ context.Context, record *model.ResolutionRecord) error {
	record.ID = m.nextID
	m.nextID++
	record.Timestamp = time.Now().UTC()
	m.resolutions = append(m.resolutions, *record)
	return nil
}

func (m *mockStorage) GetResolutions(_ context.Context, documentID string) ([]model.ResolutionRecord, error) {
	var out []model.ResolutionRecord
	for _, r := range m.resolutions {
		if r.DocumentID == documentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStorage) SeedDefaultCorrections(context.Context) error { return nil }
func (m *mockStorage) Migrate(context.Context) error                { return nil }
func (m *mockStorage) Close() error                                 { return nil }

func (m *mockStorage) BeginTx(context.Context) (service.Transaction, error) {
	return &mockTransaction{mockStorage: m}, nil
}

// mockTransaction writes straight through; engine tests assert
// semantics, not isolation.
type mockTransaction struct {
	*mockStorage
}

func (t *mockTransaction) Commit() error   { return nil }
func (t *mockTransaction) Rollback() error { return nil }

// gatedStorage serializes transactions behind a single-writer lock and
// holds every BeginTx until all expected callers have arrived. That
// pins the interleaving where several learns for one document race
// past any state read taken before their transactions begin.
type gatedStorage struct {
	*mockStorage
	arrivals sync.WaitGroup
	writer   sync.Mutex
}

func newGatedStorage(callers int) *gatedStorage {
	g := &gatedStorage{mockStorage: newMockStorage()}
	g.arrivals.Add(callers)
	return g
}

func (g *gatedStorage) BeginTx(context.Context) (service.Transaction, error) {
	g.arrivals.Done()
	g.arrivals.Wait()
	g.writer.Lock()
	return &gatedTransaction{
		mockTransaction: mockTransaction{mockStorage: g.mockStorage},
		writer:          &g.writer,
	}, nil
}

type gatedTransaction struct {
	mockTransaction
	writer *sync.Mutex
}

func (t *gatedTransaction) Commit() error   { t.writer.Unlock(); return nil }
func (t *gatedTransaction) Rollback() error { t.writer.Unlock(); return nil }

func sameVendor(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
