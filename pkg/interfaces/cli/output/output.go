package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/vsinha/fruitalloc/pkg/application/dto"
)

// Report bundles everything one CLI run prints
type Report struct {
	Result  *dto.AllocationResult `json:"result"`
	Orders  []dto.OrderStatusView `json:"orders"`
	Batches []dto.BatchStatusView `json:"batches"`
	Export  []dto.ExportRow       `json:"export"`
	Pruned  int                   `json:"pruned"`
	Store   string                `json:"store"`
}

// Config holds configuration for output generation
type Config struct {
	Format    string
	OutputDir string
	Verbose   bool
	// Out receives output when no directory is given; defaults to stdout
	Out io.Writer
}

// File names written into the output directory
const (
	TextFile        = "allocation_results.txt"
	JSONFile        = "allocation_results.json"
	HTMLFile        = "allocation_results.html"
	AllocationsFile = "allocations.csv"
	OrderStatusFile = "order_status.csv"
)

// Generate creates output in the specified format
func Generate(report *Report, config Config) error {
	switch config.Format {
	case "text":
		return withDestination(config, TextFile, func(w io.Writer) error { return writeText(w, report) })
	case "json":
		return withDestination(config, JSONFile, func(w io.Writer) error { return writeJSON(w, report) })
	case "html":
		return withDestination(config, HTMLFile, func(w io.Writer) error { return writeHTML(w, report) })
	case "csv":
		return generateCSVOutput(report, config)
	default:
		return fmt.Errorf("unsupported output format: %s", config.Format)
	}
}

// withDestination runs write against a file in the output directory, or
// against config.Out when no directory is set
func withDestination(config Config, name string, write func(io.Writer) error) error {
	if config.OutputDir == "" {
		return write(stdout(config))
	}

	if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := filepath.Join(config.OutputDir, name)
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}
	defer file.Close()

	if err := write(file); err != nil {
		return err
	}
	if config.Verbose {
		fmt.Fprintf(stdout(config), "💾 Results saved to: %s\n", filename)
	}
	return nil
}

func stdout(config Config) io.Writer {
	if config.Out != nil {
		return config.Out
	}
	return os.Stdout
}

// writeText creates human-readable text output
func writeText(w io.Writer, report *Report) error {
	result := report.Result
	summary := result.Summary

	fmt.Fprintf(w, "📊 Allocation Results Summary\n")
	fmt.Fprintf(w, "=============================\n\n")
	fmt.Fprintf(w, "Run: %s\n", result.RunID)
	if report.Store != "" {
		fmt.Fprintf(w, "Ledger store: %s\n", report.Store)
	}
	if report.Pruned > 0 {
		fmt.Fprintf(w, "Pruned records: %d\n", report.Pruned)
	}
	fmt.Fprintf(w, "Demand buckets: %d\n", summary.Buckets)
	fmt.Fprintf(w, "Committed records: %d\n", len(result.Committed))
	fmt.Fprintf(w, "Batches touched: %d\n", summary.BatchesTouched)
	fmt.Fprintf(w, "Allocated: %s kg\n", summary.TotalAllocatedKg().StringFixed(3))
	fmt.Fprintf(w, "Shortfall: %s kg\n", summary.ShortfallKg.StringFixed(3))
	if summary.StockKg.IsPositive() {
		fmt.Fprintf(w, "Stock utilization: %.1f%% of %s kg\n", summary.Utilization*100, summary.StockKg.StringFixed(3))
	}
	fmt.Fprintf(w, "Duration: %v\n", summary.Duration)
	if result.RolledBack {
		fmt.Fprintf(w, "Status: ROLLED BACK\n")
	}
	fmt.Fprintln(w)

	if len(result.Committed) > 0 {
		fmt.Fprintf(w, "📦 New Allocations:\n")
		fmt.Fprintf(w, "%-12s %-12s %-6s %-12s %-12s %-12s\n",
			"Customer", "Sales Doc", "Item", "Batch", "Quantity kg", "Remaining kg")
		fmt.Fprintf(w, "%-12s %-12s %-6s %-12s %-12s %-12s\n",
			"------------", "------------", "------", "------------", "------------", "------------")
		for _, r := range result.Committed {
			fmt.Fprintf(w, "%-12s %-12s %-6s %-12s %-12s %-12s\n",
				r.CustomerID,
				r.SalesDocument,
				r.SalesDocumentItem,
				r.BatchNumber,
				r.QuantityKg.StringFixed(3),
				r.RemainingBatchQuantityKg.StringFixed(3))
		}
		fmt.Fprintln(w)
	}

	if len(report.Orders) > 0 {
		fmt.Fprintf(w, "📋 Order Status:\n")
		fmt.Fprintf(w, "%-12s %-6s %-12s %-12s %-12s %-8s\n",
			"Sales Doc", "Item", "Status", "Required kg", "Allocated kg", "Realloc")
		fmt.Fprintf(w, "%-12s %-6s %-12s %-12s %-12s %-8s\n",
			"------------", "------", "------------", "------------", "------------", "--------")
		for _, o := range report.Orders {
			fmt.Fprintf(w, "%-12s %-6s %-12s %-12s %-12s %-8t\n",
				o.SalesDocument,
				o.SalesDocumentItem,
				o.Status,
				o.RequiredKg.StringFixed(3),
				o.AllocatedKg.StringFixed(3),
				o.CanReallocate)
		}
		fmt.Fprintln(w)
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(w, "⚠️  Warnings:\n")
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
		fmt.Fprintln(w)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "❌ Errors:\n")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// writeJSON creates JSON output
func writeJSON(w io.Writer, report *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

// generateCSVOutput writes the export rows, and the order statuses when an
// output directory is given
func generateCSVOutput(report *Report, config Config) error {
	if config.OutputDir == "" {
		return writeExportCSV(stdout(config), report.Export)
	}

	err := withDestination(config, AllocationsFile, func(w io.Writer) error {
		return writeExportCSV(w, report.Export)
	})
	if err != nil {
		return fmt.Errorf("failed to write allocations CSV: %w", err)
	}
	err = withDestination(config, OrderStatusFile, func(w io.Writer) error {
		return writeOrderStatusCSV(w, report.Orders)
	})
	if err != nil {
		return fmt.Errorf("failed to write order status CSV: %w", err)
	}
	return nil
}

func writeExportCSV(w io.Writer, rows []dto.ExportRow) error {
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"customer_id", "sales_document", "sales_document_item", "loading_date", "batch_number",
		"material_id", "quantity_kg", "quality_grade", "age_days", "origin_country", "variety",
		"supplier", "can_reallocate",
	})
	for _, r := range rows {
		loading := ""
		if !r.LoadingDate.IsZero() {
			loading = r.LoadingDate.Format("2006-01-02")
		}
		_ = writer.Write([]string{
			r.CustomerID,
			r.SalesDocument,
			r.SalesDocumentItem,
			loading,
			r.BatchNumber,
			r.MaterialID,
			r.QuantityKg.String(),
			r.QualityGrade,
			strconv.Itoa(r.AgeDays),
			r.OriginCountry,
			r.Variety,
			r.Supplier,
			strconv.FormatBool(r.CanReallocate),
		})
	}
	writer.Flush()
	return writer.Error()
}

func writeOrderStatusCSV(w io.Writer, orders []dto.OrderStatusView) error {
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"sales_document", "sales_document_item", "status", "required_kg", "allocated_kg",
		"buffer_met", "can_reallocate", "display_text",
	})
	for _, o := range orders {
		_ = writer.Write([]string{
			o.SalesDocument,
			o.SalesDocumentItem,
			string(o.Status),
			o.RequiredKg.String(),
			o.AllocatedKg.String(),
			strconv.FormatBool(o.BufferMet),
			strconv.FormatBool(o.CanReallocate),
			o.DisplayText,
		})
	}
	writer.Flush()
	return writer.Error()
}
