package ledger

import (
	"github.com/shopspring/decimal"
	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

// Allocations returns a copy of every committed record
func (l *Ledger) Allocations() []*entities.AllocationRecord {
	return l.query(false, func(*entities.AllocationRecord) bool { return true })
}

// Staged returns a copy of the records staged by the open transaction
func (l *Ledger) Staged() []*entities.AllocationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneRecords(l.staged)
}

// GetAllocationsByBatch returns the committed records of a batch
func (l *Ledger) GetAllocationsByBatch(batchNumber string) []*entities.AllocationRecord {
	return l.query(false, byBatch(batchNumber))
}

// GetAllocationsByOrder returns the committed records of a sales document line
func (l *Ledger) GetAllocationsByOrder(salesDocument, salesDocumentItem string) []*entities.AllocationRecord {
	return l.query(false, byOrder(salesDocument, salesDocumentItem))
}

// GetAllocationsByCustomer returns the committed records of a customer
func (l *Ledger) GetAllocationsByCustomer(customerID string) []*entities.AllocationRecord {
	return l.query(false, byCustomer(customerID))
}

// WorkingAllocationsByBatch is the writer view of GetAllocationsByBatch,
// including records staged by the open transaction
func (l *Ledger) WorkingAllocationsByBatch(batchNumber string) []*entities.AllocationRecord {
	return l.query(true, byBatch(batchNumber))
}

// WorkingAllocationsByOrder is the writer view of GetAllocationsByOrder
func (l *Ledger) WorkingAllocationsByOrder(salesDocument, salesDocumentItem string) []*entities.AllocationRecord {
	return l.query(true, byOrder(salesDocument, salesDocumentItem))
}

// WorkingAllocationsByCustomer is the writer view of GetAllocationsByCustomer
func (l *Ledger) WorkingAllocationsByCustomer(customerID string) []*entities.AllocationRecord {
	return l.query(true, byCustomer(customerID))
}

// WorkingAllocatedKg sums committed and staged quantities per batch
func (l *Ledger) WorkingAllocatedKg() map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	totals := make(map[string]decimal.Decimal)
	for _, set := range [][]*entities.AllocationRecord{l.committed, l.staged} {
		for _, r := range set {
			if r.IsActive() {
				totals[r.BatchNumber] = totals[r.BatchNumber].Add(r.QuantityKg)
			}
		}
	}
	return totals
}

func (l *Ledger) query(includeStaged bool, match func(*entities.AllocationRecord) bool) []*entities.AllocationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*entities.AllocationRecord
	for _, r := range l.committed {
		if r.IsActive() && match(r) {
			out = append(out, r.Clone())
		}
	}
	if includeStaged && l.inTx {
		for _, r := range l.staged {
			if match(r) {
				out = append(out, r.Clone())
			}
		}
	}
	return out
}

func byBatch(batchNumber string) func(*entities.AllocationRecord) bool {
	normalized := entities.NormalizeBatchNumber(batchNumber)
	return func(r *entities.AllocationRecord) bool { return r.BatchNumber == normalized }
}

func byOrder(salesDocument, salesDocumentItem string) func(*entities.AllocationRecord) bool {
	if salesDocumentItem == "" {
		salesDocumentItem = entities.DefaultSalesDocumentItem
	}
	key := entities.OrderKey{SalesDocument: salesDocument, SalesDocumentItem: salesDocumentItem}
	return func(r *entities.AllocationRecord) bool { return r.OrderKey() == key }
}

func byCustomer(customerID string) func(*entities.AllocationRecord) bool {
	return func(r *entities.AllocationRecord) bool { return r.CustomerID == customerID }
}
