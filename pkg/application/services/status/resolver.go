package status

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vsinha/fruitalloc/pkg/application/dto"
	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

// LedgerReader is the read side of the allocation ledger
type LedgerReader interface {
	GetAllocationsByOrder(salesDocument, salesDocumentItem string) []*entities.AllocationRecord
	GetAllocationsByBatch(batchNumber string) []*entities.AllocationRecord
}

// Resolver derives display statuses from committed ledger records. It never
// writes to the ledger.
type Resolver struct {
	ledger        LedgerReader
	tolerance     decimal.Decimal
	bufferPercent decimal.Decimal
}

// NewResolver creates a status resolver. Tolerance is relative (0.01 = 1%).
func NewResolver(ledger LedgerReader, tolerance, bufferPercent decimal.Decimal) *Resolver {
	return &Resolver{
		ledger:        ledger,
		tolerance:     tolerance,
		bufferPercent: bufferPercent,
	}
}

// OrderAllocationStatus reports how much of an order line is covered.
// The line counts as allocated once the allocated sum reaches the required
// quantity less the tolerance.
func (r *Resolver) OrderAllocationStatus(salesDocument, salesDocumentItem string, required decimal.Decimal) dto.OrderStatusView {
	if salesDocumentItem == "" {
		salesDocumentItem = entities.DefaultSalesDocumentItem
	}
	records := r.ledger.GetAllocationsByOrder(salesDocument, salesDocumentItem)
	allocated := entities.SumQuantity(records)

	view := dto.OrderStatusView{
		SalesDocument:     salesDocument,
		SalesDocumentItem: salesDocumentItem,
		RequiredKg:        required,
		AllocatedKg:       allocated,
		Status:            dto.StatusUnallocated,
	}
	if len(records) == 0 || !allocated.IsPositive() {
		view.DisplayText = "Not allocated"
		return view
	}

	one := decimal.NewFromInt(1)
	threshold := required.Mul(one.Sub(r.tolerance))
	if allocated.GreaterThanOrEqual(threshold) {
		view.Status = dto.StatusAllocated
		view.CanReallocate = allReallocatable(records)
		target := required.Mul(one.Add(r.bufferPercent.Div(decimal.NewFromInt(100))))
		view.BufferMet = allocated.GreaterThanOrEqual(target.Mul(one.Sub(r.tolerance)))
		view.DisplayText = fmt.Sprintf("Fully allocated (%s of %s kg)", allocated.StringFixed(0), required.StringFixed(0))
		if view.CanReallocate {
			view.DisplayText += ", can be reallocated"
		}
		return view
	}

	view.Status = dto.StatusPartial
	view.DisplayText = fmt.Sprintf("Partially allocated (%s of %s kg)", allocated.StringFixed(0), required.StringFixed(0))
	return view
}

// BatchAllocationStatus reports whether a batch carries committed records
// and which customers hold it
func (r *Resolver) BatchAllocationStatus(batchNumber string) dto.BatchStatusView {
	number := entities.NormalizeBatchNumber(batchNumber)
	records := r.ledger.GetAllocationsByBatch(number)

	view := dto.BatchStatusView{
		BatchNumber: number,
		Status:      dto.StatusUnallocated,
		AllocatedKg: entities.SumQuantity(records),
		DisplayText: "Available",
	}
	if len(records) == 0 {
		return view
	}

	seen := make(map[string]bool)
	for _, rec := range records {
		if !seen[rec.CustomerID] {
			seen[rec.CustomerID] = true
			view.Customers = append(view.Customers, rec.CustomerID)
		}
	}
	sort.Strings(view.Customers)

	view.Status = dto.StatusAllocated
	view.DisplayText = "Allocated to " + strings.Join(view.Customers, ", ")
	return view
}

func allReallocatable(records []*entities.AllocationRecord) bool {
	for _, r := range records {
		if !r.CanReallocate {
			return false
		}
	}
	return true
}
