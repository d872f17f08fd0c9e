package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

// DateLayout is the only accepted date format
const DateLayout = "2006-01-02"

// Scenario file names inside a scenario directory
const (
	StockFile     = "stock.csv"
	OrdersFile    = "orders.csv"
	CustomersFile = "customers.csv"
)

var (
	stockHeader = []string{
		"batch_number", "location_code", "material_id", "material_description", "variety",
		"quality_grade", "weight_kg", "age_days", "origin_country", "certification_id",
		"transport_doc_ref", "minimum_size", "origin_pallet_number", "supplier",
	}
	ordersHeader = []string{
		"customer_id", "sales_document", "sales_document_item", "order_ref", "loading_date",
		"material_id", "material_description", "required_quantity_kg", "order_status",
	}
	customersHeader = []string{
		"customer_id", "name", "origin_country", "variety", "certification_id", "quality_grade",
		"transport_doc_ref", "minimum_size", "origin_pallet_number", "supplier",
	}
)

// Loader handles loading allocation input from CSV files with fixed headers
type Loader struct{}

// NewLoader creates a new CSV loader
func NewLoader() *Loader {
	return &Loader{}
}

// Scenario is a complete allocation input
type Scenario struct {
	Stock     []*entities.StockBatch
	Orders    []*entities.OrderDemand
	Customers []entities.Customer
}

// LoadScenario loads stock.csv, orders.csv and the optional customers.csv
// from a directory
func (l *Loader) LoadScenario(dir string) (*Scenario, error) {
	stock, err := l.LoadStock(filepath.Join(dir, StockFile))
	if err != nil {
		return nil, err
	}
	orders, err := l.LoadOrders(filepath.Join(dir, OrdersFile))
	if err != nil {
		return nil, err
	}

	scenario := &Scenario{Stock: stock, Orders: orders}
	customers, err := l.LoadCustomers(filepath.Join(dir, CustomersFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		scenario.Customers = customers
	}
	return scenario, nil
}

// LoadStock loads a stock snapshot from a CSV file
func (l *Loader) LoadStock(filename string) ([]*entities.StockBatch, error) {
	return loadFile(filename, "stock", l.ReadStock)
}

// LoadOrders loads order lines from a CSV file
func (l *Loader) LoadOrders(filename string) ([]*entities.OrderDemand, error) {
	return loadFile(filename, "orders", l.ReadOrders)
}

// LoadCustomers loads customers and their restrictions from a CSV file
func (l *Loader) LoadCustomers(filename string) ([]entities.Customer, error) {
	return loadFile(filename, "customers", l.ReadCustomers)
}

// ReadStock parses a stock snapshot
func (l *Loader) ReadStock(r io.Reader) ([]*entities.StockBatch, error) {
	records, err := readRecords(r, "stock", stockHeader)
	if err != nil {
		return nil, err
	}

	batches := make([]*entities.StockBatch, 0, len(records))
	for i, record := range records {
		batch, err := parseStockBatch(record)
		if err != nil {
			return nil, fmt.Errorf("stock CSV row %d: %w", i+2, err)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// ReadOrders parses order lines. Organic and spot classification is left to
// the material classifier.
func (l *Loader) ReadOrders(r io.Reader) ([]*entities.OrderDemand, error) {
	records, err := readRecords(r, "orders", ordersHeader)
	if err != nil {
		return nil, err
	}

	orders := make([]*entities.OrderDemand, 0, len(records))
	for i, record := range records {
		order, err := parseOrder(record)
		if err != nil {
			return nil, fmt.Errorf("orders CSV row %d: %w", i+2, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// ReadCustomers parses customers; empty restriction cells impose no constraint
func (l *Loader) ReadCustomers(r io.Reader) ([]entities.Customer, error) {
	records, err := readRecords(r, "customers", customersHeader)
	if err != nil {
		return nil, err
	}

	customers := make([]entities.Customer, 0, len(records))
	for i, record := range records {
		id := strings.TrimSpace(record[0])
		if id == "" {
			return nil, fmt.Errorf("customers CSV row %d: customer_id cannot be empty", i+2)
		}
		customers = append(customers, entities.Customer{
			ID:   id,
			Name: strings.TrimSpace(record[1]),
			Restrictions: entities.CustomerRestrictions{
				OriginCountry:      strings.TrimSpace(record[2]),
				Variety:            strings.TrimSpace(record[3]),
				CertificationID:    strings.TrimSpace(record[4]),
				QualityGrade:       strings.TrimSpace(record[5]),
				TransportDocRef:    strings.TrimSpace(record[6]),
				MinimumSize:        strings.TrimSpace(record[7]),
				OriginPalletNumber: strings.TrimSpace(record[8]),
				Supplier:           strings.TrimSpace(record[9]),
			},
		})
	}
	return customers, nil
}

// Helper functions for parsing CSV records

func loadFile[T any](filename, kind string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	file, err := os.Open(filename)
	if err != nil {
		return zero, fmt.Errorf("failed to open %s file %s: %w", kind, filename, err)
	}
	defer file.Close()
	return read(file)
}

func readRecords(r io.Reader, kind string, expectedHeader []string) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(expectedHeader)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s CSV: %w", kind, err)
	}

	if len(records) < 1 {
		return nil, fmt.Errorf("%s CSV must have a header", kind)
	}
	if !validateHeader(records[0], expectedHeader) {
		return nil, fmt.Errorf("%s CSV header mismatch. Expected: %v, Got: %v", kind, expectedHeader, records[0])
	}
	return records[1:], nil
}

func validateHeader(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}

	for i, col := range expected {
		if strings.ToLower(strings.TrimSpace(strings.TrimPrefix(actual[i], "\ufeff"))) != col {
			return false
		}
	}

	return true
}

func parseStockBatch(record []string) (*entities.StockBatch, error) {
	weight, err := decimal.NewFromString(strings.TrimSpace(record[6]))
	if err != nil {
		return nil, fmt.Errorf("invalid weight_kg %q: %w", record[6], err)
	}
	age, err := strconv.Atoi(strings.TrimSpace(record[7]))
	if err != nil {
		return nil, fmt.Errorf("invalid age_days %q: %w", record[7], err)
	}

	batch, err := entities.NewStockBatch(record[0], strings.TrimSpace(record[2]), entities.QualityGrade(strings.TrimSpace(record[5])), weight, age)
	if err != nil {
		return nil, err
	}
	batch.LocationCode = strings.TrimSpace(record[1])
	batch.MaterialDescription = strings.TrimSpace(record[3])
	batch.Variety = strings.TrimSpace(record[4])
	batch.OriginCountry = strings.TrimSpace(record[8])
	batch.CertificationID = strings.TrimSpace(record[9])
	batch.TransportDocRef = strings.TrimSpace(record[10])
	batch.MinimumSize = strings.TrimSpace(record[11])
	batch.OriginPalletNumber = strings.TrimSpace(record[12])
	batch.Supplier = strings.TrimSpace(record[13])
	return batch, nil
}

func parseOrder(record []string) (*entities.OrderDemand, error) {
	loadingDate, err := time.Parse(DateLayout, strings.TrimSpace(record[4]))
	if err != nil {
		return nil, fmt.Errorf("invalid loading_date %q: expected YYYY-MM-DD", record[4])
	}
	required, err := decimal.NewFromString(strings.TrimSpace(record[7]))
	if err != nil {
		return nil, fmt.Errorf("invalid required_quantity_kg %q: %w", record[7], err)
	}

	order, err := entities.NewOrderDemand(strings.TrimSpace(record[0]), strings.TrimSpace(record[1]), strings.TrimSpace(record[2]), required, loadingDate)
	if err != nil {
		return nil, err
	}
	order.OrderRef = strings.TrimSpace(record[3])
	order.MaterialID = strings.TrimSpace(record[5])
	order.MaterialDescription = strings.TrimSpace(record[6])
	order.OrderStatusRaw = strings.TrimSpace(record[8])
	return order, nil
}
