package orchestration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vsinha/fruitalloc/pkg/application/dto"
	"github.com/vsinha/fruitalloc/pkg/application/services/allocation"
	"github.com/vsinha/fruitalloc/pkg/application/services/ledger"
	"github.com/vsinha/fruitalloc/pkg/application/services/status"
	"github.com/vsinha/fruitalloc/pkg/domain/entities"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/events"
	persistence "github.com/vsinha/fruitalloc/pkg/infrastructure/persistence/memory"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/repositories/memory"
)

func newOrchestrator(t *testing.T) (*AllocationOrchestrator, *ledger.Ledger, *events.InMemoryEventStore) {
	t.Helper()
	eventStore := events.NewInMemoryEventStore()
	l := ledger.NewLedger(persistence.NewLedgerStore(), eventStore, zerolog.Nop())
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Failed to load ledger: %v", err)
	}
	config := allocation.DefaultConfig()
	engine := allocation.NewEngine(l, config, eventStore, zerolog.Nop())
	resolver := status.NewResolver(l, decimal.RequireFromString("0.01"), config.BufferPercent)

	o := NewAllocationOrchestrator(engine, l, resolver,
		memory.NewStockRepository(), memory.NewDemandRepository(), memory.NewCustomerRepository(), zerolog.Nop())
	return o, l, eventStore
}

func fixtureStock() []*entities.StockBatch {
	return []*entities.StockBatch{
		{BatchNumber: "c-500", MaterialID: "FIARGRN01", QualityGrade: entities.QualityFair, WeightKg: decimal.NewFromInt(500), AgeDays: 12, OriginCountry: "Chile", Variety: "Hass", Supplier: "Andes Fruit"},
		{BatchNumber: "O1000", MaterialID: "FIARORG01", QualityGrade: entities.QualityGood, WeightKg: decimal.NewFromInt(1000), AgeDays: 3, OriginCountry: "Peru", Supplier: "BioFarm"},
	}
}

func fixtureOrders() []*entities.OrderDemand {
	return []*entities.OrderDemand{
		{
			CustomerID:         "Acme",
			SalesDocument:      "SO1",
			MaterialID:         "FIARGRN01",
			RequiredQuantityKg: decimal.NewFromInt(600),
			LoadingDate:        time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestAllocationOrchestrator_Run(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	ctx := context.Background()

	if _, err := o.ImportStock(ctx, fixtureStock()); err != nil {
		t.Fatalf("Failed to import stock: %v", err)
	}
	if err := o.ImportOrders(fixtureOrders()); err != nil {
		t.Fatalf("Failed to import orders: %v", err)
	}
	if err := o.ImportCustomers([]entities.Customer{{ID: "Acme"}}); err != nil {
		t.Fatalf("Failed to import customers: %v", err)
	}

	result, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Committed) != 1 || result.Committed[0].BatchNumber != "C500" {
		t.Fatalf("Expected one record on C500, got %v", result.Committed)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("Expected shortfall and organic advice warnings, got %v", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], "Shortfall: 160KG") {
		t.Errorf("Expected shortfall warning first, got %q", result.Warnings[0])
	}
	if !strings.Contains(result.Warnings[1], "BioFarm") {
		t.Errorf("Expected organic advice naming BioFarm, got %q", result.Warnings[1])
	}

	statuses, err := o.OrderStatuses()
	if err != nil {
		t.Fatalf("Failed to resolve statuses: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Status != dto.StatusPartial {
		t.Errorf("Expected SO1 partial, got %+v", statuses)
	}

	batches, err := o.BatchStatuses()
	if err != nil {
		t.Fatalf("Failed to resolve batch statuses: %v", err)
	}
	if batches[0].Customer() != "Acme" || batches[1].Status != dto.StatusUnallocated {
		t.Errorf("Expected C500 held by Acme and O1000 free, got %+v", batches)
	}
}

func TestAllocationOrchestrator_Export(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	ctx := context.Background()

	_, _ = o.ImportStock(ctx, fixtureStock())
	_ = o.ImportOrders(fixtureOrders())
	if _, err := o.Run(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	rows, err := o.Export()
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if row.CustomerID != "Acme" || row.BatchNumber != "C500" || row.SalesDocumentItem != "10" {
		t.Errorf("Unexpected row identity: %+v", row)
	}
	if !row.QuantityKg.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Expected 500 kg, got %s", row.QuantityKg)
	}
	if row.QualityGrade != "Fair" || row.AgeDays != 12 || row.OriginCountry != "Chile" || row.Supplier != "Andes Fruit" {
		t.Errorf("Expected batch attributes joined into the row, got %+v", row)
	}
}

func TestAllocationOrchestrator_ImportStockPrunesLedger(t *testing.T) {
	o, l, eventStore := newOrchestrator(t)
	ctx := context.Background()

	_, _ = o.ImportStock(ctx, fixtureStock())
	_ = o.ImportOrders(fixtureOrders())
	if _, err := o.Run(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	pruned, err := o.ImportStock(ctx, fixtureStock()[1:])
	if err != nil {
		t.Fatalf("Failed to re-import stock: %v", err)
	}
	if len(pruned) != 1 || pruned[0].BatchNumber != "C500" {
		t.Errorf("Expected the C500 record to be pruned, got %v", pruned)
	}
	if len(l.Allocations()) != 0 {
		t.Errorf("Expected an empty ledger, got %d records", len(l.Allocations()))
	}

	eventStore.Wait()
	stream, err := eventStore.ReadEvents(events.LedgerStream, 0)
	if err != nil {
		t.Fatalf("Failed to read events: %v", err)
	}
	prunedEvents := 0
	for _, e := range stream {
		if e.Type() == events.AllocationPrunedEvent {
			prunedEvents++
		}
	}
	if prunedEvents != 1 {
		t.Errorf("Expected 1 pruned event, got %d", prunedEvents)
	}
}

func TestAllocationOrchestrator_RejectsBadImports(t *testing.T) {
	o, _, _ := newOrchestrator(t)

	_, err := o.ImportStock(context.Background(), []*entities.StockBatch{{BatchNumber: "A1"}, {BatchNumber: "a-1"}})
	if err == nil {
		t.Error("Expected duplicate batch numbers to be rejected")
	}
	if err := o.ImportCustomers([]entities.Customer{{ID: ""}}); err == nil {
		t.Error("Expected a customer without id to be rejected")
	}
}
