package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vsinha/fruitalloc/pkg/domain/repositories"
)

// LedgerStore keeps the serialized ledger envelope in memory. The envelope is
// stored as JSON so that every load returns an independent copy and exercises
// the same encoding as the durable stores.
type LedgerStore struct {
	mu    sync.RWMutex
	data  []byte
	saves int
}

// NewLedgerStore creates an empty in-memory ledger store
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{}
}

// Verify interface compliance
var _ repositories.LedgerStore = (*LedgerStore)(nil)

// Save replaces the stored envelope
func (s *LedgerStore) Save(ctx context.Context, envelope *repositories.LedgerEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode ledger envelope: %w", err)
	}

	s.mu.Lock()
	s.data = data
	s.saves++
	s.mu.Unlock()
	return nil
}

// Load returns the stored envelope, or nil when nothing was saved
func (s *LedgerStore) Load(ctx context.Context) (*repositories.LedgerEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data := s.data
	s.mu.RUnlock()

	if data == nil {
		return nil, nil
	}
	var envelope repositories.LedgerEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode ledger envelope: %w", err)
	}
	return &envelope, nil
}

// Saves returns how many times the envelope was written
func (s *LedgerStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
