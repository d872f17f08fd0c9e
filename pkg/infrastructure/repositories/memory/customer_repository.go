package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vsinha/fruitalloc/pkg/domain/entities"
	"github.com/vsinha/fruitalloc/pkg/domain/repositories"
)

// CustomerRepository provides in-memory customer storage
type CustomerRepository struct {
	mu        sync.RWMutex
	customers map[string]entities.Customer
}

// NewCustomerRepository creates a new in-memory customer repository
func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{
		customers: make(map[string]entities.Customer),
	}
}

// Verify interface compliance
var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

// LoadCustomers replaces the customer master data
func (r *CustomerRepository) LoadCustomers(customers []entities.Customer) error {
	loaded := make(map[string]entities.Customer, len(customers))
	for _, c := range customers {
		if c.ID == "" {
			return fmt.Errorf("customer with empty id")
		}
		if _, exists := loaded[c.ID]; exists {
			return fmt.Errorf("duplicate customer %s", c.ID)
		}
		loaded[c.ID] = c
	}

	r.mu.Lock()
	r.customers = loaded
	r.mu.Unlock()
	return nil
}

// GetCustomer returns a customer by id
func (r *CustomerRepository) GetCustomer(id string) (entities.Customer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customers[id]
	return c, ok
}

// GetCustomers returns every customer sorted by id
func (r *CustomerRepository) GetCustomers() ([]entities.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	customers := make([]entities.Customer, 0, len(r.customers))
	for _, c := range r.customers {
		customers = append(customers, c)
	}
	sort.Slice(customers, func(i, j int) bool {
		return customers[i].ID < customers[j].ID
	})
	return customers, nil
}
