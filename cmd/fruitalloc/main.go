package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vsinha/fruitalloc/pkg/interfaces/cli/commands"
)

func main() {
	// Command line flags
	var (
		scenarioDir = flag.String(
			"scenario",
			"",
			"Path to scenario directory containing CSV files",
		)
		configFile    = flag.String("config", "", "Configuration file (yaml, json or toml)")
		stockFile     = flag.String("stock", "", "Path to stock snapshot CSV file")
		ordersFile    = flag.String("orders", "", "Path to orders CSV file")
		customersFile = flag.String("customers", "", "Path to customers CSV file (optional)")
		store         = flag.String("store", "", "Ledger store: memory, badger, redis, postgres")
		outputDir     = flag.String("output", "", "Output directory for results (optional)")
		format        = flag.String("format", "text", "Output format: text, json, csv, html")
		reset         = flag.Bool("reset", false, "Clear existing allocations before running")
		metricsAddr   = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address after the run")
		verbose       = flag.Bool("verbose", false, "Enable verbose output")
		help          = flag.Bool("help", false, "Show help message")
	)

	flag.Parse()

	config := commands.Config{
		ConfigFile:    *configFile,
		ScenarioDir:   *scenarioDir,
		StockFile:     *stockFile,
		OrdersFile:    *ordersFile,
		CustomersFile: *customersFile,
		OutputDir:     *outputDir,
		Format:        *format,
		Store:         *store,
		MetricsAddr:   *metricsAddr,
		Reset:         *reset,
		Verbose:       *verbose,
		Help:          *help,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := commands.NewAllocateCommand(config)
	if err := cmd.Execute(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
