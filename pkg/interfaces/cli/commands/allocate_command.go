package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vsinha/fruitalloc/pkg/application/services/allocation"
	"github.com/vsinha/fruitalloc/pkg/application/services/ledger"
	"github.com/vsinha/fruitalloc/pkg/application/services/orchestration"
	"github.com/vsinha/fruitalloc/pkg/application/services/status"
	"github.com/vsinha/fruitalloc/pkg/domain/repositories"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/config"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/events"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/kafka"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/logger"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/metrics"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/persistence/badger"
	persistence "github.com/vsinha/fruitalloc/pkg/infrastructure/persistence/memory"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/persistence/postgres"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/persistence/redis"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/repositories/csv"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/repositories/memory"
	"github.com/vsinha/fruitalloc/pkg/interfaces/cli/output"
)

// Config holds configuration for the allocate command
type Config struct {
	ConfigFile    string
	ScenarioDir   string
	StockFile     string
	OrdersFile    string
	CustomersFile string
	OutputDir     string
	Format        string
	// Store overrides storage.driver from the config file
	Store       string
	MetricsAddr string
	Reset       bool
	Verbose     bool
	Help        bool
	Out         io.Writer
}

// AllocateCommand loads a scenario, runs one allocation pass and reports it
type AllocateCommand struct {
	config Config
}

// NewAllocateCommand creates a new allocate command with the given configuration
func NewAllocateCommand(config Config) *AllocateCommand {
	return &AllocateCommand{
		config: config,
	}
}

type closableStore interface {
	repositories.LedgerStore
	Close() error
}

// Execute runs the allocate command
func (c *AllocateCommand) Execute(ctx context.Context) error {
	if c.config.Help {
		c.showHelp()
		return nil
	}

	if err := c.validateInputs(); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	cfg, err := config.Load(c.config.ConfigFile)
	if err != nil {
		return err
	}
	if c.config.Store != "" {
		cfg.Storage.Driver = c.config.Store
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validation error: %w", err)
		}
	}
	if c.config.MetricsAddr != "" {
		cfg.Metrics.Addr = c.config.MetricsAddr
	}

	logger.Init("fruitalloc", cfg.Log.Pretty)
	level := cfg.Log.Level
	if c.config.Verbose {
		level = "debug"
	}
	logger.SetLevel(level)
	log := logger.For("cli")

	if c.config.Verbose {
		c.printHeader(cfg)
	}

	store, err := c.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close ledger store")
			}
		}()
	}

	eventStore := events.NewInMemoryEventStore().WithLogger(logger.For("events"))
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		publisher := kafka.NewPublisher(producer, cfg.Kafka.Topic, logger.For("kafka"))
		if err := eventStore.Subscribe(publisher.EventTypes(), publisher); err != nil {
			return fmt.Errorf("failed to subscribe kafka publisher: %w", err)
		}
		defer func() {
			eventStore.Wait()
			_ = publisher.Close()
		}()
	}

	var ledgerStore repositories.LedgerStore
	if store != nil {
		ledgerStore = store
	} else {
		ledgerStore = persistence.NewLedgerStore()
	}
	l := ledger.NewLedger(ledgerStore, eventStore, logger.For("ledger"))
	if err := l.Load(ctx); err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	defer func() {
		if err := l.Close(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).Msg("failed to flush ledger")
		}
	}()

	engineConfig := allocation.Config{
		BufferPercent:           decimal.NewFromFloat(cfg.Allocation.BufferPercent),
		SmallBatchThresholdKg:   decimal.NewFromFloat(cfg.Allocation.SmallBatchThresholdKg),
		ConsolidateLargeBatches: cfg.Allocation.ConsolidateLargeBatches,
		PoolRestrictionGroups:   cfg.Allocation.PoolRestrictionGroups,
	}
	collector := metrics.NewCollector(nil)
	engine := allocation.NewEngine(l, engineConfig, eventStore, logger.For("allocation")).WithObserver(collector)
	resolver := status.NewResolver(l, decimal.NewFromFloat(cfg.Allocation.StatusTolerance), engineConfig.BufferPercent)
	orchestrator := orchestration.NewAllocationOrchestrator(
		engine,
		l,
		resolver,
		memory.NewStockRepository(),
		memory.NewDemandRepository(),
		memory.NewCustomerRepository(),
		logger.For("orchestrator"),
	)

	if c.config.Reset {
		if c.config.Verbose {
			fmt.Fprintln(c.out(), "🧹 Clearing existing allocations...")
		}
		if _, err := l.ResetAllocations(ctx, nil); err != nil {
			return fmt.Errorf("failed to reset allocations: %w", err)
		}
	}

	if c.config.Verbose {
		fmt.Fprintln(c.out(), "📂 Loading data from CSV files...")
	}
	scenario, err := c.loadScenario()
	if err != nil {
		return err
	}
	if c.config.Verbose {
		fmt.Fprintf(c.out(), "✅ Data loaded successfully:\n")
		fmt.Fprintf(c.out(), "  Stock batches: %d\n", len(scenario.Stock))
		fmt.Fprintf(c.out(), "  Order lines: %d\n", len(scenario.Orders))
		fmt.Fprintf(c.out(), "  Customers: %d\n", len(scenario.Customers))
		fmt.Fprintln(c.out())
	}

	if err := orchestrator.ImportCustomers(scenario.Customers); err != nil {
		return err
	}
	if err := orchestrator.ImportOrders(scenario.Orders); err != nil {
		return err
	}
	pruned, err := orchestrator.ImportStock(ctx, scenario.Stock)
	if err != nil {
		return err
	}

	if c.config.Verbose {
		fmt.Fprintln(c.out(), "🔄 Running allocation...")
	}
	result, err := orchestrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("error running allocation: %w", err)
	}

	report := &output.Report{
		Result: result,
		Pruned: len(pruned),
		Store:  cfg.Storage.Driver,
	}
	if report.Orders, err = orchestrator.OrderStatuses(); err != nil {
		return err
	}
	if report.Batches, err = orchestrator.BatchStatuses(); err != nil {
		return err
	}
	if report.Export, err = orchestrator.Export(); err != nil {
		return err
	}

	err = output.Generate(report, output.Config{
		Format:    c.config.Format,
		OutputDir: c.config.OutputDir,
		Verbose:   c.config.Verbose,
		Out:       c.out(),
	})
	if err != nil {
		return fmt.Errorf("error generating output: %w", err)
	}

	if cfg.Metrics.Addr != "" {
		if err := c.serveMetrics(ctx, cfg.Metrics.Addr, collector, log); err != nil {
			return err
		}
	}

	if c.config.Verbose {
		if err := c.printEventSummary(eventStore); err != nil {
			return err
		}
		fmt.Fprintln(c.out(), "🏁 Allocation complete!")
	}
	return nil
}

// printEventSummary counts the ledger events of this run by type
func (c *AllocateCommand) printEventSummary(store events.EventStore) error {
	recorded, err := store.ReadEvents(events.LedgerStream, 0)
	if err != nil {
		return fmt.Errorf("failed to read ledger events: %w", err)
	}

	counts := make(map[string]int)
	for _, event := range recorded {
		counts[event.Type()]++
	}
	types := make([]string, 0, len(counts))
	for eventType := range counts {
		types = append(types, eventType)
	}
	sort.Strings(types)

	fmt.Fprintf(c.out(), "📜 Ledger events: %d\n", len(recorded))
	for _, eventType := range types {
		fmt.Fprintf(c.out(), "  %s: %d\n", eventType, counts[eventType])
	}
	return nil
}

// openStore opens the configured ledger store; the memory driver returns nil
func (c *AllocateCommand) openStore(ctx context.Context, cfg *config.Config) (closableStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return nil, nil
	case config.DriverBadger:
		return badger.Open(cfg.Storage.BadgerPath, logger.For("badger"))
	case config.DriverRedis:
		return redis.Connect(ctx, cfg.Storage.RedisURL, cfg.Storage.RedisKey, logger.For("redis"))
	case config.DriverPostgres:
		return postgres.Connect(cfg.Storage.PostgresDSN, cfg.Storage.LedgerName, logger.For("postgres"))
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}

// serveMetrics exposes the run metrics until ctx is cancelled
func (c *AllocateCommand) serveMetrics(ctx context.Context, addr string, collector *metrics.Collector, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	fmt.Fprintf(c.out(), "📈 Serving metrics on %s/metrics (Ctrl+C to stop)\n", addr)
	log.Info().Str("addr", addr).Msg("metrics server started")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (c *AllocateCommand) loadScenario() (*csv.Scenario, error) {
	loader := csv.NewLoader()
	if c.config.ScenarioDir != "" {
		return loader.LoadScenario(c.config.ScenarioDir)
	}

	stock, err := loader.LoadStock(c.config.StockFile)
	if err != nil {
		return nil, fmt.Errorf("error loading stock: %w", err)
	}
	orders, err := loader.LoadOrders(c.config.OrdersFile)
	if err != nil {
		return nil, fmt.Errorf("error loading orders: %w", err)
	}
	scenario := &csv.Scenario{Stock: stock, Orders: orders}
	if c.config.CustomersFile != "" {
		if scenario.Customers, err = loader.LoadCustomers(c.config.CustomersFile); err != nil {
			return nil, fmt.Errorf("error loading customers: %w", err)
		}
	}
	return scenario, nil
}

// validateInputs validates the command configuration
func (c *AllocateCommand) validateInputs() error {
	if c.config.ScenarioDir == "" && (c.config.StockFile == "" || c.config.OrdersFile == "") {
		return fmt.Errorf("must specify either -scenario directory or -stock and -orders files")
	}
	switch c.config.Format {
	case "text", "json", "csv", "html":
	default:
		return fmt.Errorf("unsupported output format: %s", c.config.Format)
	}
	return nil
}

func (c *AllocateCommand) out() io.Writer {
	if c.config.Out != nil {
		return c.config.Out
	}
	return os.Stdout
}

// printHeader prints the command header information
func (c *AllocateCommand) printHeader(cfg *config.Config) {
	w := c.out()
	fmt.Fprintf(w, "🚀 Fruit Allocation CLI\n")
	if c.config.ScenarioDir != "" {
		fmt.Fprintf(w, "Scenario: %s\n", c.config.ScenarioDir)
	} else {
		fmt.Fprintf(w, "Stock: %s\n", c.config.StockFile)
		fmt.Fprintf(w, "Orders: %s\n", c.config.OrdersFile)
		if c.config.CustomersFile != "" {
			fmt.Fprintf(w, "Customers: %s\n", c.config.CustomersFile)
		}
	}
	fmt.Fprintf(w, "Ledger store: %s\n", cfg.Storage.Driver)
	fmt.Fprintf(w, "Output format: %s\n", c.config.Format)
	if c.config.OutputDir != "" {
		fmt.Fprintf(w, "Output directory: %s\n", c.config.OutputDir)
	}
	fmt.Fprintln(w)
}

// showHelp displays the help message
func (c *AllocateCommand) showHelp() {
	fmt.Fprintf(c.out(), `Fruit Allocation CLI - assigns warehouse stock batches to customer orders

USAGE:
    fruitalloc -scenario <directory>             # Use scenario directory with CSV files
    fruitalloc -stock <file> -orders <file> ...  # Use individual CSV files

OPTIONS:
    -config <file>        Configuration file (yaml, json or toml)
    -scenario <dir>       Path to scenario directory containing CSV files
    -stock <file>         Path to stock snapshot CSV file
    -orders <file>        Path to orders CSV file
    -customers <file>     Path to customers CSV file (optional)
    -store <driver>       Ledger store: memory, badger, redis, postgres
    -output <dir>         Output directory for results (optional)
    -format <fmt>         Output format: text, json, csv, html (default: text)
    -reset                Clear existing allocations before running
    -metrics-addr <addr>  Serve Prometheus metrics after the run, e.g. :9090
    -verbose              Enable verbose output
    -help                 Show this help message

SCENARIO DIRECTORY STRUCTURE:
    scenario_name/
    ├── stock.csv       # Warehouse stock snapshot
    ├── orders.csv      # Open sales order lines
    └── customers.csv   # Customer restrictions (optional)

CSV FILE FORMATS:

stock.csv:
    batch_number,location_code,material_id,material_description,variety,quality_grade,weight_kg,age_days,origin_country,certification_id,transport_doc_ref,minimum_size,origin_pallet_number,supplier
    B1001,WH1,FIARGRN01,Avocado Hass,Hass,Fair,1000,10,Chile,GGN123,TD9,18,P77,Andes Fruit

orders.csv:
    customer_id,sales_document,sales_document_item,order_ref,loading_date,material_id,material_description,required_quantity_kg,order_status
    Acme,SO1,10,PO-1,2025-03-12,FIARGRN01,,900,Released

customers.csv:
    customer_id,name,origin_country,variety,certification_id,quality_grade,transport_doc_ref,minimum_size,origin_pallet_number,supplier
    Acme,Acme Foods,Chile,,,,,,,

ENVIRONMENT:
    FRUITALLOC_STORAGE_DRIVER, FRUITALLOC_STORAGE_BADGER_PATH, FRUITALLOC_LOG_LEVEL, ...
    override the matching configuration keys.

EXAMPLES:
    # Run a scenario with the default badger ledger
    fruitalloc -scenario data/week12 -verbose

    # Start over from an empty ledger and export CSV files
    fruitalloc -scenario data/week12 -reset -format csv -output results/

    # Keep the ledger in memory only
    fruitalloc -stock stock.csv -orders orders.csv -store memory -format json
`)
}
