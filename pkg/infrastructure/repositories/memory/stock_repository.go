package memory

import (
	"fmt"
	"sync"

	"github.com/vsinha/fruitalloc/pkg/domain/entities"
	"github.com/vsinha/fruitalloc/pkg/domain/repositories"
)

// StockRepository provides in-memory storage of the current stock snapshot
type StockRepository struct {
	mu      sync.RWMutex
	batches []entities.StockBatch
	index   map[string]int
}

// NewStockRepository creates a new in-memory stock repository
func NewStockRepository() *StockRepository {
	return &StockRepository{
		batches: []entities.StockBatch{},
		index:   make(map[string]int),
	}
}

// Verify interface compliance
var _ repositories.StockRepository = (*StockRepository)(nil)

// ReplaceSnapshot swaps the whole stock snapshot. Batch numbers are
// normalized and must be unique within the snapshot.
func (r *StockRepository) ReplaceSnapshot(batches []*entities.StockBatch) error {
	snapshot := make([]entities.StockBatch, 0, len(batches))
	index := make(map[string]int, len(batches))

	for _, b := range batches {
		batch := *b
		batch.BatchNumber = entities.NormalizeBatchNumber(batch.BatchNumber)
		if batch.BatchNumber == "" {
			return fmt.Errorf("stock batch with empty batch number")
		}
		if _, exists := index[batch.BatchNumber]; exists {
			return fmt.Errorf("duplicate batch number %s in stock snapshot", batch.BatchNumber)
		}
		index[batch.BatchNumber] = len(snapshot)
		snapshot = append(snapshot, batch)
	}

	r.mu.Lock()
	r.batches = snapshot
	r.index = index
	r.mu.Unlock()
	return nil
}

// GetBatch returns a batch by number
func (r *StockRepository) GetBatch(batchNumber string) (*entities.StockBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[entities.NormalizeBatchNumber(batchNumber)]
	if !ok {
		return nil, fmt.Errorf("batch %s not found", batchNumber)
	}
	batch := r.batches[i]
	return &batch, nil
}

// GetAllBatches returns every batch of the snapshot in import order
func (r *StockRepository) GetAllBatches() ([]*entities.StockBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	batches := make([]*entities.StockBatch, len(r.batches))
	for i := range r.batches {
		batch := r.batches[i]
		batches[i] = &batch
	}
	return batches, nil
}
