package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/pdn-sentinel/internal/config"
	"github.com/raaihank/pdn-sentinel/internal/etl"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"github.com/raaihank/pdn-sentinel/internal/service"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON)")
		outputFile = flag.String("output", "", "Parquet report path (default <input>.report.parquet)")
		task       = flag.String("task", "process", "Per-record task: scan, anonymize, or process")
		mode       = flag.String("mode", "", "Redaction mode for the anonymize task: mask or delete")
		workers    = flag.Int("workers", 0, "Number of worker goroutines (default from config)")
		maxRecords = flag.Int("max-records", 0, "Stop after this many records (0 = all)")
		idColumn   = flag.String("id-column", "", "Column holding the record id")
		textColumn = flag.String("text-column", "", "Column holding the document text")
		clearCache = flag.Bool("clear-cache", false, "Clear the Redis findings cache and exit")
		showStats  = flag.Bool("stats", false, "Show category store and cache statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*clearCache && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input letters.csv --task scan\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input letters.parquet --task anonymize --mode delete --workers 8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input letters.jsonl --output reports/letters.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *workers, *maxRecords, *idColumn, *textColumn)

	log, err := logger.New(cfg.Logger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting pdn-sentinel batch pipeline",
		zap.String("version", "0.1.0"),
		zap.String("profile", cfg.Scanner.Profile))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	services, err := service.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	switch {
	case *showStats:
		if err := showServiceStats(ctx, services); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
	case *clearCache:
		if services.Cache == nil {
			log.Fatal("Findings cache is not enabled")
		}
		if err := services.Cache.Clear(ctx); err != nil {
			log.Fatal("Failed to clear cache", zap.Error(err))
		}
		log.Info("Findings cache cleared")
	default:
		output := *outputFile
		if output == "" {
			output = defaultOutput(*inputFile)
		}
		if err := processDataset(ctx, services, *inputFile, output, *task, *mode, log); err != nil {
			log.Fatal("Batch processing failed", zap.Error(err))
		}
	}

	log.Info("Batch pipeline completed successfully")
}

func applyFlags(cfg *config.Config, workers, maxRecords int, idColumn, textColumn string) {
	if workers > 0 {
		cfg.Batch.Workers = workers
	}
	if maxRecords > 0 {
		cfg.Batch.MaxRecords = maxRecords
	}
	if idColumn != "" {
		cfg.Batch.IDColumn = idColumn
	}
	if textColumn != "" {
		cfg.Batch.TextColumn = textColumn
	}
}

func defaultOutput(input string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + ".report.parquet"
}

// processDataset runs the pipeline over the input dataset
func processDataset(ctx context.Context, services *service.Services, inputFile, outputFile, taskName, modeName string, log *logger.Logger) error {
	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputFile)
	}

	task, err := etl.ParseTask(taskName)
	if err != nil {
		return err
	}

	cfg := services.Config()
	opts := etl.Options{Task: task}
	switch task {
	case etl.TaskAnonymize:
		if modeName == "" {
			modeName = cfg.Redaction.Mode
		}
		if opts.Mode, err = privacy.ParseMode(modeName); err != nil {
			return err
		}
	case etl.TaskProcess:
		policy, err := services.Policy()
		if err != nil {
			return err
		}
		opts.Decider = policy
	}

	pipeline, err := etl.NewPipeline(services.Engine(), &cfg.Batch, opts, log)
	if err != nil {
		return err
	}

	result, err := pipeline.ProcessFile(ctx, inputFile, outputFile)
	if err != nil {
		return fmt.Errorf("pipeline processing failed: %w", err)
	}

	log.Info("Dataset processing completed",
		zap.String("file", inputFile),
		zap.String("report", outputFile),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("flagged", result.Flagged),
		zap.Int64("blocked", result.Blocked),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("detection_time", result.DetectionTime),
		zap.Duration("write_time", result.WriteTime))

	if len(result.Errors) > 0 {
		log.Warn("Processing completed with errors", zap.Strings("errors", result.Errors))
	}

	return nil
}

// showServiceStats displays category store and cache statistics
func showServiceStats(ctx context.Context, services *service.Services) error {
	reg := services.Engine().Registry()
	fmt.Printf("\n=== pdn-sentinel Rule Pack ===\n")
	fmt.Printf("Profile:            %s\n", reg.Name())
	fmt.Printf("Active Categories:  %d\n", reg.Len())
	fmt.Printf("Fingerprint:        %s\n", reg.Fingerprint())

	if services.Store != nil {
		stats, err := services.Store.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get store stats: %w", err)
		}
		fmt.Printf("\n=== Custom Category Store ===\n")
		fmt.Printf("Stored Categories:  %d\n", stats.TotalCategories)
		kinds := make([]string, 0, len(stats.ByKind))
		for kind := range stats.ByKind {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Printf("  %-17s %d\n", kind+":", stats.ByKind[kind])
		}
	}

	if services.Cache != nil {
		cacheStats, err := services.Cache.GetStats(ctx)
		if err == nil {
			fmt.Printf("\n=== Cache Statistics ===\n")
			fmt.Printf("Cache Hits:         %d\n", cacheStats.Hits)
			fmt.Printf("Cache Misses:       %d\n", cacheStats.Misses)
			fmt.Printf("Hit Rate:           %.1f%%\n", cacheStats.HitRate)
			fmt.Printf("Total Keys:         %d\n", cacheStats.TotalKeys)
			fmt.Printf("Memory Usage:       %.2f MB\n", float64(cacheStats.MemoryUsage)/1024/1024)
		}
	}

	return nil
}
