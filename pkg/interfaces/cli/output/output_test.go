package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/fruitalloc/pkg/application/dto"
	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

func sampleReport() *Report {
	return &Report{
		Result: &dto.AllocationResult{
			RunID: "run-1",
			Committed: []*entities.AllocationRecord{{
				BatchNumber:              "B500",
				CustomerID:               "Acme",
				SalesDocument:            "SO1",
				SalesDocumentItem:        "10",
				QuantityKg:               decimal.NewFromInt(500),
				RemainingBatchQuantityKg: decimal.Zero,
			}},
			Warnings: []string{"Customer Acme (conventional orders) could not be fully allocated. Shortfall: 160KG"},
			Summary: dto.RunSummary{
				Buckets:     1,
				ShortfallKg: decimal.NewFromInt(160),
				StockKg:     decimal.NewFromInt(500),
				Utilization: 1,
				AllocatedKg: map[entities.DemandClass]decimal.Decimal{entities.ClassConventional: decimal.NewFromInt(500)},
			},
		},
		Orders: []dto.OrderStatusView{{
			SalesDocument:     "SO1",
			SalesDocumentItem: "10",
			Status:            dto.StatusPartial,
			RequiredKg:        decimal.NewFromInt(600),
			AllocatedKg:       decimal.NewFromInt(500),
			DisplayText:       "Partially allocated (500 of 600 kg)",
		}},
		Export: []dto.ExportRow{{
			CustomerID:        "Acme",
			SalesDocument:     "SO1",
			SalesDocumentItem: "10",
			LoadingDate:       time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
			BatchNumber:       "B500",
			QuantityKg:        decimal.NewFromInt(500),
			QualityGrade:      "Fair",
			AgeDays:           10,
			OriginCountry:     "Chile",
		}},
	}
}

func TestGenerate_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := Generate(sampleReport(), Config{Format: "text", Out: &buf}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"run-1", "B500", "partial", "Shortfall: 160KG", "Allocated: 500.000 kg", "Stock utilization: 100.0% of 500.000 kg"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected text output to contain %q", want)
		}
	}
}

func TestGenerate_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Generate(sampleReport(), Config{Format: "json", Out: &buf}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Expected valid JSON: %v", err)
	}
	for _, key := range []string{"result", "orders", "export"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Expected key %q in JSON output", key)
		}
	}
	if !strings.Contains(string(decoded["result"]), `"conventional"`) {
		t.Error("Expected demand classes to be encoded by name")
	}
}

func TestGenerate_CSVToWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := Generate(sampleReport(), Config{Format: "csv", Out: &buf}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected header and one row, got %d lines", len(lines))
	}
	if lines[1] != "Acme,SO1,10,2025-03-12,B500,,500,Fair,10,Chile,,,false" {
		t.Errorf("Unexpected CSV row: %s", lines[1])
	}
}

func TestGenerate_CSVToDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := Generate(sampleReport(), Config{Format: "csv", OutputDir: dir, Out: &bytes.Buffer{}}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, name := range []string{AllocationsFile, OrderStatusFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to be written: %v", name, err)
		}
	}
	status, _ := os.ReadFile(filepath.Join(dir, OrderStatusFile))
	if !strings.Contains(string(status), "SO1,10,partial,600,500,false,false") {
		t.Errorf("Unexpected order status CSV: %s", status)
	}
}

func TestGenerate_HTML(t *testing.T) {
	var buf bytes.Buffer
	if err := Generate(sampleReport(), Config{Format: "html", Out: &buf}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `<tr class="partial">`) || !strings.Contains(out, "2025-03-12") {
		t.Error("Expected order rows and export rows in the HTML report")
	}
}

func TestGenerate_UnsupportedFormat(t *testing.T) {
	if err := Generate(sampleReport(), Config{Format: "xml"}); err == nil {
		t.Error("Expected an error for an unsupported format")
	}
}
