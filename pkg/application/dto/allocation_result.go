package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

// AllocationResult contains the complete output of one allocation pass
type AllocationResult struct {
	RunID      string
	Committed  []*entities.AllocationRecord
	Errors     []string
	Warnings   []string
	Shortfalls []Shortfall
	RolledBack bool
	Summary    RunSummary
}

// HasErrors reports whether the pass recorded any error, fatal or not
func (r *AllocationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Shortfall describes demand a bucket could not cover
type Shortfall struct {
	CustomerID  string
	Class       entities.DemandClass
	MaterialID  string
	RequiredKg  decimal.Decimal
	TargetKg    decimal.Decimal
	AllocatedKg decimal.Decimal
	ShortfallKg decimal.Decimal
}

// RunSummary aggregates the quantities committed by one pass
type RunSummary struct {
	StartedAt      time.Time
	Duration       time.Duration
	Buckets        int
	Records        int
	BatchesTouched int
	AllocatedKg    map[entities.DemandClass]decimal.Decimal
	ShortfallKg    decimal.Decimal
	// StockKg is the weight of the stock snapshot; Utilization the share of
	// it held by active ledger records once the pass commits (0.0 to 1.0)
	StockKg        decimal.Decimal
	Utilization    float64
}

// TotalAllocatedKg sums the allocated quantity over every class
func (s RunSummary) TotalAllocatedKg() decimal.Decimal {
	total := decimal.Zero
	for _, kg := range s.AllocatedKg {
		total = total.Add(kg)
	}
	return total
}
