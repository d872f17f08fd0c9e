package repositories

import (
	"context"
	"time"

	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

// CurrentSchemaVersion is the envelope schema written by this build
const CurrentSchemaVersion = "2.0.0"

// LedgerEnvelope is the versioned, serialized form of the allocation ledger
type LedgerEnvelope struct {
	Records       []*entities.AllocationRecord `json:"records"`
	LastUpdated   time.Time                    `json:"lastUpdated"`
	SchemaVersion string                       `json:"schemaVersion"`
}

// LedgerStore persists the allocation ledger envelope.
// Load returns (nil, nil) when nothing has been saved yet.
type LedgerStore interface {
	Save(ctx context.Context, envelope *LedgerEnvelope) error
	Load(ctx context.Context) (*LedgerEnvelope, error)
}
