package repositories

import "github.com/vsinha/fruitalloc/pkg/domain/entities"

// StockRepository provides access to the current stock snapshot
type StockRepository interface {
	GetBatch(batchNumber string) (*entities.StockBatch, error)
	GetAllBatches() ([]*entities.StockBatch, error)
	ReplaceSnapshot(batches []*entities.StockBatch) error
}
