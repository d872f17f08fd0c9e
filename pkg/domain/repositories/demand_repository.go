package repositories

import "github.com/vsinha/fruitalloc/pkg/domain/entities"

// DemandRepository provides access to the order demand of the latest import
type DemandRepository interface {
	GetDemands() ([]*entities.OrderDemand, error)
	LoadDemands(demands []*entities.OrderDemand) error
}
