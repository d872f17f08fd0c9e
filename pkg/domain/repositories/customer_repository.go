package repositories

import "github.com/vsinha/fruitalloc/pkg/domain/entities"

// CustomerRepository provides access to customer master data and restrictions
type CustomerRepository interface {
	GetCustomer(id string) (entities.Customer, bool)
	GetCustomers() ([]entities.Customer, error)
	LoadCustomers(customers []entities.Customer) error
}
