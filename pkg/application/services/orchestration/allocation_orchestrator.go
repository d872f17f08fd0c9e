package orchestration

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vsinha/fruitalloc/pkg/application/dto"
	"github.com/vsinha/fruitalloc/pkg/application/services/allocation"
	"github.com/vsinha/fruitalloc/pkg/application/services/ledger"
	"github.com/vsinha/fruitalloc/pkg/application/services/status"
	"github.com/vsinha/fruitalloc/pkg/domain/entities"
	"github.com/vsinha/fruitalloc/pkg/domain/repositories"
	"github.com/vsinha/fruitalloc/pkg/domain/services"
)

// AllocationOrchestrator coordinates imports, allocation passes and the
// read-side views over the ledger
type AllocationOrchestrator struct {
	engine       *allocation.Engine
	ledger       *ledger.Ledger
	resolver     *status.Resolver
	stockRepo    repositories.StockRepository
	demandRepo   repositories.DemandRepository
	customerRepo repositories.CustomerRepository
	logger       zerolog.Logger
}

// NewAllocationOrchestrator creates a new allocation orchestrator
func NewAllocationOrchestrator(
	engine *allocation.Engine,
	l *ledger.Ledger,
	resolver *status.Resolver,
	stockRepo repositories.StockRepository,
	demandRepo repositories.DemandRepository,
	customerRepo repositories.CustomerRepository,
	logger zerolog.Logger,
) *AllocationOrchestrator {
	return &AllocationOrchestrator{
		engine:       engine,
		ledger:       l,
		resolver:     resolver,
		stockRepo:    stockRepo,
		demandRepo:   demandRepo,
		customerRepo: customerRepo,
		logger:       logger.With().Str("component", "orchestrator").Logger(),
	}
}

// ImportStock replaces the stock snapshot and prunes ledger records whose
// batch left the warehouse. It returns the pruned records.
func (o *AllocationOrchestrator) ImportStock(ctx context.Context, batches []*entities.StockBatch) ([]*entities.AllocationRecord, error) {
	if err := o.stockRepo.ReplaceSnapshot(batches); err != nil {
		return nil, fmt.Errorf("failed to import stock: %w", err)
	}
	snapshot, err := o.stockRepo.GetAllBatches()
	if err != nil {
		return nil, fmt.Errorf("failed to read stock snapshot: %w", err)
	}

	pruned, err := o.ledger.ResetAllocations(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to reset allocations: %w", err)
	}
	o.logger.Info().Int("batches", len(snapshot)).Int("pruned", len(pruned)).Msg("stock imported")
	return pruned, nil
}

// ImportOrders replaces the order demand
func (o *AllocationOrchestrator) ImportOrders(orders []*entities.OrderDemand) error {
	if err := o.demandRepo.LoadDemands(orders); err != nil {
		return fmt.Errorf("failed to import orders: %w", err)
	}
	o.logger.Info().Int("orders", len(orders)).Msg("orders imported")
	return nil
}

// ImportCustomers replaces the customer master data
func (o *AllocationOrchestrator) ImportCustomers(customers []entities.Customer) error {
	if err := o.customerRepo.LoadCustomers(customers); err != nil {
		return fmt.Errorf("failed to import customers: %w", err)
	}
	return nil
}

// Run performs one allocation pass over the imported stock, orders and
// customers. Conventional shortfalls that free organic stock could cover get
// an advisory warning.
func (o *AllocationOrchestrator) Run(ctx context.Context) (*dto.AllocationResult, error) {
	stock, err := o.stockRepo.GetAllBatches()
	if err != nil {
		return nil, fmt.Errorf("failed to load stock: %w", err)
	}
	orders, err := o.demandRepo.GetDemands()
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	customers, err := o.customerRepo.GetCustomers()
	if err != nil {
		return nil, fmt.Errorf("failed to load customers: %w", err)
	}

	result, err := o.engine.Allocate(ctx, stock, orders, customers)
	if err != nil {
		return result, fmt.Errorf("allocation pass failed: %w", err)
	}
	if !result.RolledBack {
		result.Warnings = append(result.Warnings, o.organicAdvice(result, stock)...)
	}
	return result, nil
}

// organicAdvice suggests organic suppliers with free stock for every
// customer whose conventional demand stayed short
func (o *AllocationOrchestrator) organicAdvice(result *dto.AllocationResult, stock []*entities.StockBatch) []string {
	allocated := o.ledger.WorkingAllocatedKg()
	var free []*entities.StockBatch
	for _, b := range stock {
		if b.WeightKg.GreaterThan(allocated[b.BatchNumber]) {
			free = append(free, b)
		}
	}

	var advice []string
	for _, s := range result.Shortfalls {
		options := services.OrganicAllocationOptions(s.Class, free, "")
		if !options.CanUseOrganic {
			continue
		}
		advice = append(advice, fmt.Sprintf(
			"Customer %s could cover the conventional shortfall of %sKG with organic stock from %s (available: %s)",
			s.CustomerID, s.ShortfallKg, options.RecommendedSupplier, strings.Join(options.AvailableSuppliers, ", ")))
	}
	return advice
}

// OrderStatuses resolves the allocation status of every imported order line
func (o *AllocationOrchestrator) OrderStatuses() ([]dto.OrderStatusView, error) {
	orders, err := o.demandRepo.GetDemands()
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}

	views := make([]dto.OrderStatusView, 0, len(orders))
	for _, order := range orders {
		views = append(views, o.resolver.OrderAllocationStatus(order.SalesDocument, order.Item(), order.RequiredQuantityKg))
	}
	return views, nil
}

// BatchStatuses resolves the allocation status of every batch in the snapshot
func (o *AllocationOrchestrator) BatchStatuses() ([]dto.BatchStatusView, error) {
	stock, err := o.stockRepo.GetAllBatches()
	if err != nil {
		return nil, fmt.Errorf("failed to load stock: %w", err)
	}

	views := make([]dto.BatchStatusView, 0, len(stock))
	for _, b := range stock {
		views = append(views, o.resolver.BatchAllocationStatus(b.BatchNumber))
	}
	return views, nil
}

// Export flattens the committed ledger into rows joined with batch data,
// sorted by customer, loading date and batch
func (o *AllocationOrchestrator) Export() ([]dto.ExportRow, error) {
	records := o.ledger.Allocations()
	rows := make([]dto.ExportRow, 0, len(records))

	for _, r := range records {
		row := dto.ExportRow{
			CustomerID:        r.CustomerID,
			SalesDocument:     r.SalesDocument,
			SalesDocumentItem: r.SalesDocumentItem,
			LoadingDate:       r.LoadingDate,
			BatchNumber:       r.BatchNumber,
			MaterialID:        r.MaterialID,
			QuantityKg:        r.QuantityKg,
			CanReallocate:     r.CanReallocate,
		}
		if batch, err := o.stockRepo.GetBatch(r.BatchNumber); err == nil {
			row.QualityGrade = batch.QualityGrade.String()
			row.AgeDays = batch.AgeDays
			row.OriginCountry = batch.OriginCountry
			row.Variety = batch.Variety
			row.Supplier = batch.Supplier
			if row.MaterialID == "" {
				row.MaterialID = batch.MaterialID
			}
		} else {
			o.logger.Debug().Str("batch", r.BatchNumber).Msg("exported record has no batch in the current snapshot")
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.CustomerID != b.CustomerID {
			return a.CustomerID < b.CustomerID
		}
		if !a.LoadingDate.Equal(b.LoadingDate) {
			return a.LoadingDate.Before(b.LoadingDate)
		}
		return a.BatchNumber < b.BatchNumber
	})
	return rows, nil
}
