package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vsinha/fruitalloc/pkg/application/services/allocation"
	"github.com/vsinha/fruitalloc/pkg/application/services/ledger"
	"github.com/vsinha/fruitalloc/pkg/application/services/status"
	"github.com/vsinha/fruitalloc/pkg/domain/entities"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/persistence/memory"
)

func main() {
	ctx := context.Background()

	// Ledger kept in memory only
	l := ledger.NewLedger(memory.NewLedgerStore(), nil, zerolog.Nop())
	config := allocation.DefaultConfig()
	engine := allocation.NewEngine(l, config, nil, zerolog.Nop())

	stock := []*entities.StockBatch{
		mustBatch("B1001", "FIARGRN01", entities.QualityFair, 600, 12),
		mustBatch("B1002", "FIARGRN01", entities.QualityGood, 1200, 4),
		mustBatch("BCB-7", "BCB001", entities.QualityGood, 400, 2),
	}

	loading := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	orders := []*entities.OrderDemand{
		{
			CustomerID:         "Acme",
			SalesDocument:      "SO1",
			SalesDocumentItem:  "10",
			LoadingDate:        loading,
			MaterialID:         "FIARGRN01",
			RequiredQuantityKg: decimal.NewFromInt(1000),
		},
		{
			CustomerID:         "Zest",
			SalesDocument:      "SO2",
			SalesDocumentItem:  "10",
			LoadingDate:        loading.AddDate(0, 0, 2),
			MaterialID:         "BCB001",
			RequiredQuantityKg: decimal.NewFromInt(350),
		},
	}

	fmt.Println("🍐 Allocating stock for next week's loadings...")
	result, err := engine.Allocate(ctx, stock, orders, nil)
	if err != nil {
		log.Fatalf("allocation failed: %v", err)
	}

	for _, r := range result.Committed {
		fmt.Printf("  %s ← %s %s kg\n", r.CustomerID, r.BatchNumber, r.QuantityKg.StringFixed(3))
	}
	for _, w := range result.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}

	resolver := status.NewResolver(l, decimal.RequireFromString("0.01"), config.BufferPercent)
	for _, o := range orders {
		view := resolver.OrderAllocationStatus(o.SalesDocument, o.SalesDocumentItem, o.RequiredQuantityKg)
		fmt.Printf("📋 %s: %s\n", o.SalesDocument, view.DisplayText)
	}
}

func mustBatch(number, material string, quality entities.QualityGrade, weightKg int64, ageDays int) *entities.StockBatch {
	batch, err := entities.NewStockBatch(number, material, quality, decimal.NewFromInt(weightKg), ageDays)
	if err != nil {
		log.Fatal(err)
	}
	return batch
}
