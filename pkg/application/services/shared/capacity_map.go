package shared

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

// CapacityContext holds the allocation state of one batch during a pass
type CapacityContext struct {
	Batch       *entities.StockBatch
	AllocatedKg decimal.Decimal
	// committed holders locked by non-reallocatable ledger records
	committedHolders map[string]bool
	// holders that received stock from the batch in the current pass
	passHolders map[string]bool
}

// RemainingKg returns the batch weight not yet allocated
func (c *CapacityContext) RemainingKg() decimal.Decimal {
	return c.Batch.WeightKg.Sub(c.AllocatedKg)
}

// HasCapacity reports whether the batch can still supply stock
func (c *CapacityContext) HasCapacity() bool {
	return c.RemainingKg().IsPositive()
}

// AvailableTo reports whether the batch is held by nobody but the customer
func (c *CapacityContext) AvailableTo(customerID string) bool {
	for holder := range c.committedHolders {
		if holder != customerID {
			return false
		}
	}
	for holder := range c.passHolders {
		if holder != customerID {
			return false
		}
	}
	return true
}

// AvailableToPool reports whether the batch can be shared between recipients
// of a restriction group. Stock taken in the current pass by any group member
// may be shared; committed holdings may only be topped up by their holder.
func (c *CapacityContext) AvailableToPool(members, recipients []string) bool {
	for holder := range c.committedHolders {
		if len(recipients) != 1 || recipients[0] != holder {
			return false
		}
	}
	for holder := range c.passHolders {
		if !contains(members, holder) {
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// CapacityMap tracks remaining capacity and holders per batch number
type CapacityMap map[string]*CapacityContext

// NewCapacityMap seeds the map from a stock snapshot and the records already in
// the ledger. Records for batches outside the snapshot are ignored.
func NewCapacityMap(stock []*entities.StockBatch, records []*entities.AllocationRecord) CapacityMap {
	capMap := make(CapacityMap, len(stock))
	for _, b := range stock {
		capMap[entities.NormalizeBatchNumber(b.BatchNumber)] = &CapacityContext{
			Batch:            b,
			AllocatedKg:      decimal.Zero,
			committedHolders: make(map[string]bool),
			passHolders:      make(map[string]bool),
		}
	}

	for _, r := range records {
		ctx, ok := capMap[r.BatchNumber]
		if !ok || !r.IsActive() {
			continue
		}
		ctx.AllocatedKg = ctx.AllocatedKg.Add(r.QuantityKg)
		if !r.CanReallocate {
			ctx.committedHolders[r.CustomerID] = true
		}
	}
	return capMap
}

// Get retrieves the capacity context of a batch
func (cm CapacityMap) Get(batchNumber string) *CapacityContext {
	return cm[entities.NormalizeBatchNumber(batchNumber)]
}

// Consume records quantity taken from a batch by a customer in the current pass
func (cm CapacityMap) Consume(batchNumber, customerID string, quantity decimal.Decimal) error {
	ctx := cm.Get(batchNumber)
	if ctx == nil {
		return fmt.Errorf("batch %s is not part of the stock snapshot", batchNumber)
	}
	if quantity.GreaterThan(ctx.RemainingKg()) {
		return &entities.CapacityError{
			BatchNumber: ctx.Batch.BatchNumber,
			Requested:   quantity,
			Available:   ctx.RemainingKg(),
		}
	}
	ctx.AllocatedKg = ctx.AllocatedKg.Add(quantity)
	ctx.passHolders[customerID] = true
	return nil
}

// Release gives back quantity taken in the current pass. The customer stops
// holding the batch once release is called with stillHolds false.
func (cm CapacityMap) Release(batchNumber, customerID string, quantity decimal.Decimal, stillHolds bool) {
	ctx := cm.Get(batchNumber)
	if ctx == nil {
		return
	}
	ctx.AllocatedKg = ctx.AllocatedKg.Sub(quantity)
	if ctx.AllocatedKg.IsNegative() {
		ctx.AllocatedKg = decimal.Zero
	}
	if !stillHolds {
		delete(ctx.passHolders, customerID)
	}
}

// GetTotalAllocated returns the allocated quantity across all batches
func (cm CapacityMap) GetTotalAllocated() decimal.Decimal {
	total := decimal.Zero
	for _, ctx := range cm {
		total = total.Add(ctx.AllocatedKg)
	}
	return total
}

// GetTotalCapacity returns the combined weight of all batches
func (cm CapacityMap) GetTotalCapacity() decimal.Decimal {
	total := decimal.Zero
	for _, ctx := range cm {
		total = total.Add(ctx.Batch.WeightKg)
	}
	return total
}

// GetUtilization returns the allocated share of the total capacity (0.0 to 1.0)
func (cm CapacityMap) GetUtilization() float64 {
	capacity := cm.GetTotalCapacity()
	if !capacity.IsPositive() {
		return 0.0
	}
	return cm.GetTotalAllocated().Div(capacity).InexactFloat64()
}
