package dto

import "github.com/shopspring/decimal"

// AllocationStatus is the display status of an order or batch
type AllocationStatus string

const (
	StatusUnallocated AllocationStatus = "unallocated"
	StatusPartial     AllocationStatus = "partial"
	StatusAllocated   AllocationStatus = "allocated"
)

// OrderStatusView is the read-side allocation status of one order line
type OrderStatusView struct {
	SalesDocument     string
	SalesDocumentItem string
	Status            AllocationStatus
	CanReallocate     bool
	BufferMet         bool
	RequiredKg        decimal.Decimal
	AllocatedKg       decimal.Decimal
	DisplayText       string
}

// BatchStatusView is the read-side allocation status of one batch
type BatchStatusView struct {
	BatchNumber string
	Status      AllocationStatus
	Customers   []string
	AllocatedKg decimal.Decimal
	DisplayText string
}

// Customer returns the first holding customer, empty when unallocated
func (v BatchStatusView) Customer() string {
	if len(v.Customers) == 0 {
		return ""
	}
	return v.Customers[0]
}
