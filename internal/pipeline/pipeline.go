package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/andresbrocco/finance-etl/internal/transform"
	"github.com/andresbrocco/finance-etl/internal/warehouse"
)

// Extractor reads a raw record set from a source file.
type Extractor interface {
	Extract(ctx context.Context, filePath string) ([]transform.RawRecord, error)
}

// Warehouse is the loader-side capability the pipeline depends on.
type Warehouse interface {
	Load(ctx context.Context, data *transform.Output) (*warehouse.LoadStats, error)
	Ping(ctx context.Context) error
	CheckTables(ctx context.Context) ([]string, error)
}

// Pipeline orchestrates the Extract -> Transform -> Load sequence for one
// input batch.
type Pipeline struct {
	extractor   Extractor
	transformer *transform.Transformer
	warehouse   Warehouse
	logger      *zap.Logger
}

// New creates a pipeline with injected collaborators.
func New(extractor Extractor, transformer *transform.Transformer, wh Warehouse, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		extractor:   extractor,
		transformer: transformer,
		warehouse:   wh,
		logger:      logger,
	}
}

// Run executes the full pipeline against one source file. With dryRun set,
// the load phase is skipped entirely and load counts stay zero. Run never
// returns a raw error: failures are tagged with their phase and reported in
// the Result together with the statistics accumulated so far.
func (p *Pipeline) Run(ctx context.Context, filePath string, dryRun bool) *Result {
	start := time.Now()
	result := &Result{
		Status:             StatusSuccess,
		DimensionsInserted: make(map[string]int64, len(warehouse.DimensionTables)),
	}
	for _, table := range warehouse.DimensionTables {
		result.DimensionsInserted[table] = 0
	}

	p.logger.Info("Starting ETL pipeline",
		zap.String("file", filePath),
		zap.Bool("dry_run", dryRun))

	records, err := p.extractor.Extract(ctx, filePath)
	if err != nil {
		return p.fail(result, start, PhaseExtract, err)
	}
	result.Extracted = len(records)
	p.logger.Info("Extract phase completed", zap.Int("records", result.Extracted))

	output, err := p.transformer.Transform(records)
	if err != nil {
		return p.fail(result, start, PhaseTransform, err)
	}
	result.Transformed = len(output.Facts)
	p.logger.Info("Transform phase completed", zap.Int("valid_records", result.Transformed))

	if dryRun {
		p.logger.Info("Dry run mode, skipping load phase",
			zap.Int("records_not_loaded", result.Transformed))
	} else {
		stats, err := p.warehouse.Load(ctx, output)
		if err != nil {
			return p.fail(result, start, PhaseLoad, err)
		}
		result.Loaded = stats.FactsInserted
		result.FactsSkipped = stats.FactsSkipped
		for table, count := range stats.DimensionsInserted {
			result.DimensionsInserted[table] = count
		}
		p.logger.Info("Load phase completed",
			zap.Int64("facts_inserted", result.Loaded),
			zap.Int64("facts_skipped", result.FactsSkipped))
	}

	result.Elapsed = time.Since(start)
	p.logger.Info("ETL pipeline completed",
		zap.Int("extracted", result.Extracted),
		zap.Int("transformed", result.Transformed),
		zap.Int64("loaded", result.Loaded),
		zap.Duration("elapsed", result.Elapsed))

	return result
}

func (p *Pipeline) fail(result *Result, start time.Time, phase Phase, err error) *Result {
	result.Status = StatusFailure
	result.Elapsed = time.Since(start)
	result.Err = &PhaseError{Phase: phase, Err: err}
	result.ErrorMessage = result.Err.Error()

	p.logger.Error("ETL pipeline failed",
		zap.String("phase", string(phase)),
		zap.Error(err),
		zap.Int("extracted", result.Extracted),
		zap.Int("transformed", result.Transformed),
		zap.Int64("loaded", result.Loaded),
		zap.Duration("elapsed", result.Elapsed))

	return result
}

// ValidatePrerequisites runs the pre-flight checks: warehouse reachability,
// required table existence, and source file readability. It is advisory; the
// pipeline phases fail safely on their own when prerequisites are missing.
func (p *Pipeline) ValidatePrerequisites(ctx context.Context, filePath string) (bool, []string) {
	var issues []string

	p.logger.Info("Validating prerequisites")

	if err := p.warehouse.Ping(ctx); err != nil {
		issues = append(issues, fmt.Sprintf("database connection failed: %v", err))
	} else {
		missing, err := p.warehouse.CheckTables(ctx)
		if err != nil {
			issues = append(issues, fmt.Sprintf("table validation failed: %v", err))
		} else if len(missing) > 0 {
			issues = append(issues, fmt.Sprintf("missing required tables: %v (run sql/schema.sql)", missing))
		}
	}

	info, err := os.Stat(filePath)
	if err != nil {
		issues = append(issues, fmt.Sprintf("source file not found: %s", filePath))
	} else {
		p.logger.Info("Source file exists",
			zap.String("file", filePath),
			zap.Int64("size_bytes", info.Size()))
		file, err := os.Open(filePath)
		if err != nil {
			issues = append(issues, fmt.Sprintf("source file is not readable: %s", filePath))
		} else {
			file.Close()
		}
	}

	if len(issues) == 0 {
		p.logger.Info("All prerequisites validated successfully")
	} else {
		p.logger.Error("Prerequisite validation failed", zap.Strings("issues", issues))
	}

	return len(issues) == 0, issues
}
