package events

import (
	"github.com/shopspring/decimal"
	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

// LedgerStream is the stream every ledger mutation is appended to
const LedgerStream = "allocation-ledger"

const (
	AllocationCommittedEvent  = "allocation.committed"
	AllocationRemovedEvent    = "allocation.removed"
	AllocationPrunedEvent     = "allocation.pruned"
	AllocationRolledBackEvent = "allocation.rolled_back"
	AllocationShortfallEvent  = "allocation.shortfall"
	OrderStatusChangedEvent   = "allocation.status_changed"
)

// AllEventTypes lists the event types emitted by the allocation core
var AllEventTypes = []string{
	AllocationCommittedEvent,
	AllocationRemovedEvent,
	AllocationPrunedEvent,
	AllocationRolledBackEvent,
	AllocationShortfallEvent,
	OrderStatusChangedEvent,
}

type AllocationCommitted struct {
	Records []*entities.AllocationRecord `json:"records"`
}

type AllocationRemoved struct {
	Records []*entities.AllocationRecord `json:"records"`
	Reason  string                       `json:"reason"`
}

type AllocationPruned struct {
	Records []*entities.AllocationRecord `json:"records"`
}

type AllocationRolledBack struct {
	StagedRecords int `json:"staged_records"`
}

type AllocationShortfall struct {
	RunID       string          `json:"run_id"`
	CustomerID  string          `json:"customer_id"`
	Class       string          `json:"class"`
	RequiredKg  decimal.Decimal `json:"required_kg"`
	ShortfallKg decimal.Decimal `json:"shortfall_kg"`
	MaterialID  string          `json:"material_id,omitempty"`
}

type OrderStatusChanged struct {
	Order         entities.OrderKey    `json:"order"`
	Status        entities.OrderStatus `json:"status"`
	CanReallocate bool                 `json:"can_reallocate"`
	Records       int                  `json:"records"`
}
