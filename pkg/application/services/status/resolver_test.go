package status

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vsinha/fruitalloc/pkg/application/dto"
	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

type stubLedger struct {
	records []*entities.AllocationRecord
}

func (s *stubLedger) GetAllocationsByOrder(doc, item string) []*entities.AllocationRecord {
	var out []*entities.AllocationRecord
	for _, r := range s.records {
		if r.SalesDocument == doc && r.SalesDocumentItem == item {
			out = append(out, r)
		}
	}
	return out
}

func (s *stubLedger) GetAllocationsByBatch(batch string) []*entities.AllocationRecord {
	var out []*entities.AllocationRecord
	for _, r := range s.records {
		if r.BatchNumber == batch {
			out = append(out, r)
		}
	}
	return out
}

func rec(batch, customer, doc string, kg int64, canReallocate bool) *entities.AllocationRecord {
	return &entities.AllocationRecord{
		BatchNumber:       batch,
		CustomerID:        customer,
		SalesDocument:     doc,
		SalesDocumentItem: "10",
		QuantityKg:        decimal.NewFromInt(kg),
		CanReallocate:     canReallocate,
	}
}

func newResolver(records ...*entities.AllocationRecord) *Resolver {
	return NewResolver(&stubLedger{records: records}, decimal.RequireFromString("0.01"), decimal.NewFromInt(10))
}

func TestOrderAllocationStatus(t *testing.T) {
	tests := []struct {
		name          string
		records       []*entities.AllocationRecord
		required      int64
		status        dto.AllocationStatus
		canReallocate bool
		bufferMet     bool
	}{
		{
			name:     "no_records",
			required: 900,
			status:   dto.StatusUnallocated,
		},
		{
			name:      "exact_fit_with_buffer",
			records:   []*entities.AllocationRecord{rec("B1000", "Acme", "SO1", 990, false)},
			required:  900,
			status:    dto.StatusAllocated,
			bufferMet: true,
		},
		{
			name:     "within_tolerance",
			records:  []*entities.AllocationRecord{rec("B1", "Acme", "SO1", 991, false)},
			required: 1000,
			status:   dto.StatusAllocated,
		},
		{
			name:     "just_below_tolerance",
			records:  []*entities.AllocationRecord{rec("B1", "Acme", "SO1", 989, false)},
			required: 1000,
			status:   dto.StatusPartial,
		},
		{
			name:     "shortfall",
			records:  []*entities.AllocationRecord{rec("B500", "Acme", "SO1", 500, false)},
			required: 600,
			status:   dto.StatusPartial,
		},
		{
			name: "all_reallocatable",
			records: []*entities.AllocationRecord{
				rec("B1", "Acme", "SO1", 300, true),
				rec("B2", "Acme", "SO1", 300, true),
			},
			required:      600,
			status:        dto.StatusAllocated,
			canReallocate: true,
		},
		{
			name: "one_locked_record",
			records: []*entities.AllocationRecord{
				rec("B1", "Acme", "SO1", 300, true),
				rec("B2", "Acme", "SO1", 300, false),
			},
			required: 600,
			status:   dto.StatusAllocated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := newResolver(tt.records...).OrderAllocationStatus("SO1", "", decimal.NewFromInt(tt.required))

			if view.Status != tt.status {
				t.Errorf("Expected status %s, got %s", tt.status, view.Status)
			}
			if view.CanReallocate != tt.canReallocate {
				t.Errorf("Expected CanReallocate %v, got %v", tt.canReallocate, view.CanReallocate)
			}
			if view.BufferMet != tt.bufferMet {
				t.Errorf("Expected BufferMet %v, got %v", tt.bufferMet, view.BufferMet)
			}
			if view.SalesDocumentItem != entities.DefaultSalesDocumentItem {
				t.Errorf("Expected default item %s, got %s", entities.DefaultSalesDocumentItem, view.SalesDocumentItem)
			}
			if view.DisplayText == "" {
				t.Error("Expected a display text")
			}
		})
	}
}

func TestOrderAllocationStatus_DisplayText(t *testing.T) {
	view := newResolver(rec("B500", "Acme", "SO1", 500, false)).OrderAllocationStatus("SO1", "10", decimal.NewFromInt(600))

	if view.DisplayText != "Partially allocated (500 of 600 kg)" {
		t.Errorf("Expected partial display text, got %q", view.DisplayText)
	}
}

func TestBatchAllocationStatus(t *testing.T) {
	r := newResolver(
		rec("X100", "Zest", "SO2", 200, false),
		rec("X100", "Acme", "SO1", 300, false),
		rec("X100", "Acme", "SO3", 100, false),
	)

	view := r.BatchAllocationStatus("x-100")
	if view.Status != dto.StatusAllocated {
		t.Fatalf("Expected allocated, got %s", view.Status)
	}
	if len(view.Customers) != 2 || view.Customer() != "Acme" {
		t.Errorf("Expected customers [Acme Zest], got %v", view.Customers)
	}
	if !view.AllocatedKg.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected 600 kg, got %s", view.AllocatedKg)
	}
	if !strings.Contains(view.DisplayText, "Acme, Zest") {
		t.Errorf("Expected display text to list holders, got %q", view.DisplayText)
	}

	free := r.BatchAllocationStatus("Y200")
	if free.Status != dto.StatusUnallocated || free.Customer() != "" {
		t.Errorf("Expected an unallocated batch without holder, got %+v", free)
	}
}
