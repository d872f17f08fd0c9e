package memory

import (
	"sync"

	"github.com/vsinha/fruitalloc/pkg/domain/entities"
	"github.com/vsinha/fruitalloc/pkg/domain/repositories"
)

// DemandRepository provides in-memory demand storage
type DemandRepository struct {
	mu      sync.RWMutex
	demands []entities.OrderDemand
}

// NewDemandRepository creates a new in-memory demand repository
func NewDemandRepository() *DemandRepository {
	return &DemandRepository{
		demands: []entities.OrderDemand{},
	}
}

// Verify interface compliance
var _ repositories.DemandRepository = (*DemandRepository)(nil)

// LoadDemands replaces the demand with the lines of a new order import
func (r *DemandRepository) LoadDemands(demands []*entities.OrderDemand) error {
	loaded := make([]entities.OrderDemand, 0, len(demands))
	for _, demand := range demands {
		loaded = append(loaded, *demand)
	}

	r.mu.Lock()
	r.demands = loaded
	r.mu.Unlock()
	return nil
}

// GetDemands returns all order demand lines
func (r *DemandRepository) GetDemands() ([]*entities.OrderDemand, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	demands := make([]*entities.OrderDemand, len(r.demands))
	for i := range r.demands {
		demand := r.demands[i]
		demands[i] = &demand
	}
	return demands, nil
}
