package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordStatus is the state of a single ledger record
type RecordStatus string

const (
	RecordAllocated   RecordStatus = "Allocated"
	RecordUnallocated RecordStatus = "Unallocated"
)

// AllocationRecord is one committed assignment of quantity from a batch to a customer
type AllocationRecord struct {
	ID                       string          `json:"id"`
	BatchNumber              string          `json:"batch_number"`
	CustomerID               string          `json:"customer_id"`
	OrderRef                 string          `json:"order_ref"`
	SalesDocument            string          `json:"sales_document"`
	SalesDocumentItem        string          `json:"sales_document_item"`
	MaterialID               string          `json:"material_id,omitempty"`
	LoadingDate              time.Time       `json:"loading_date"`
	QuantityKg               decimal.Decimal `json:"quantity_kg"`
	AllocatedAt              time.Time       `json:"allocated_at"`
	Status                   RecordStatus    `json:"status"`
	OriginalBatchQuantityKg  decimal.Decimal `json:"original_batch_quantity_kg"`
	RemainingBatchQuantityKg decimal.Decimal `json:"remaining_batch_quantity_kg"`
	CanReallocate            bool            `json:"can_reallocate"`
	OrderStatusSnapshot      OrderStatus     `json:"order_status_snapshot"`
	LastStatusUpdate         time.Time       `json:"last_status_update"`
}

// OrderKey returns the sales document line the record is attributed to
func (r *AllocationRecord) OrderKey() OrderKey {
	item := r.SalesDocumentItem
	if item == "" {
		item = DefaultSalesDocumentItem
	}
	return OrderKey{SalesDocument: r.SalesDocument, SalesDocumentItem: item}
}

// IsActive reports whether the record still holds stock
func (r *AllocationRecord) IsActive() bool {
	return r.Status != RecordUnallocated
}

// Clone returns a copy that callers may mutate freely
func (r *AllocationRecord) Clone() *AllocationRecord {
	c := *r
	return &c
}

// SumQuantity adds up the quantity of all active records
func SumQuantity(records []*AllocationRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if r.IsActive() {
			total = total.Add(r.QuantityKg)
		}
	}
	return total
}
