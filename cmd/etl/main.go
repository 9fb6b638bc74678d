package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/andresbrocco/finance-etl/internal/config"
	"github.com/andresbrocco/finance-etl/internal/extract"
	"github.com/andresbrocco/finance-etl/internal/logger"
	"github.com/andresbrocco/finance-etl/internal/pipeline"
	"github.com/andresbrocco/finance-etl/internal/transform"
	"github.com/andresbrocco/finance-etl/internal/warehouse"
)

func main() {
	var (
		configPath   = flag.String("config", "configs/default.yaml", "Configuration file path")
		inputFile    = flag.String("input", "", "Source transactions file (CSV, JSON lines, or Parquet)")
		batchSize    = flag.Int("batch-size", 0, "Rows per insert round-trip (overrides config)")
		dryRun       = flag.Bool("dry-run", false, "Run extract and transform phases only, skip load")
		validateOnly = flag.Bool("validate-only", false, "Validate prerequisites without running the pipeline")
		showStats    = flag.Bool("stats", false, "Show warehouse table counts and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File: &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	source := *inputFile
	if source == "" {
		source = cfg.Pipeline.SourceFile
	}

	loadBatchSize := cfg.Pipeline.BatchSize
	if *batchSize > 0 {
		loadBatchSize = *batchSize
	}

	log.Info("Starting finance ETL",
		zap.String("config", *configPath),
		zap.String("source", source))

	// Cancel in-flight warehouse work on SIGINT/SIGTERM; the open
	// transaction rolls back.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	store, err := warehouse.NewStore(&warehouse.Config{
		DatabaseURL:     cfg.Warehouse.DatabaseURL,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		BatchSize:       loadBatchSize,
	}, log.WithComponent("warehouse").Logger)
	if err != nil {
		log.Fatal("Failed to initialize warehouse store", zap.Error(err))
	}
	defer store.Close()

	if *showStats {
		if err := printWarehouseStats(ctx, store); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
		return
	}

	p := pipeline.New(
		extract.NewReader(log.WithComponent("extract").Logger),
		transform.NewTransformer(log.WithComponent("transform").Logger),
		store,
		log.WithComponent("pipeline").Logger,
	)

	ok, issues := p.ValidatePrerequisites(ctx, source)
	if *validateOnly {
		printValidationReport(ok, issues)
		if !ok {
			os.Exit(1)
		}
		return
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "Prerequisite validation failed:")
		for i, issue := range issues {
			fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, issue)
		}
		os.Exit(1)
	}

	result := p.Run(ctx, source, *dryRun)
	printRunSummary(result, *dryRun)

	if result.Status != pipeline.StatusSuccess {
		os.Exit(1)
	}
}

func printValidationReport(ok bool, issues []string) {
	if ok {
		fmt.Println("All prerequisites validated successfully. The pipeline is ready to run.")
		return
	}
	fmt.Printf("Validation failed with %d issue(s):\n", len(issues))
	for i, issue := range issues {
		fmt.Printf("  %d. %s\n", i+1, issue)
	}
}

func printRunSummary(result *pipeline.Result, dryRun bool) {
	fmt.Println("\n=== ETL Pipeline Summary ===")
	fmt.Printf("Status:         %s\n", result.Status)
	fmt.Printf("Elapsed:        %s\n", result.Elapsed.Round(time.Millisecond))
	fmt.Printf("Extracted:      %d\n", result.Extracted)
	fmt.Printf("Transformed:    %d\n", result.Transformed)
	if dryRun {
		fmt.Println("Loaded:         0 (dry run)")
	} else {
		fmt.Printf("Loaded:         %d\n", result.Loaded)
		fmt.Printf("Skipped:        %d\n", result.FactsSkipped)

		fmt.Println("Dimensions inserted:")
		tables := make([]string, 0, len(result.DimensionsInserted))
		for table := range result.DimensionsInserted {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		for _, table := range tables {
			fmt.Printf("  %-20s %d\n", table, result.DimensionsInserted[table])
		}
	}
	if result.ErrorMessage != "" {
		fmt.Printf("Error:          %s\n", result.ErrorMessage)
	}
}

func printWarehouseStats(ctx context.Context, store *warehouse.Store) error {
	counts, err := store.TableCounts(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== Warehouse Table Counts ===")
	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Printf("%-20s %d\n", table, counts[table])
	}
	return nil
}
