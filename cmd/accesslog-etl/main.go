// Command accesslog-etl enriches one access log with geolocation data and
// writes the result as CSV, optionally publishing every row to Kafka.
//
// Usage:
//
//	IPINFO_TOKEN=... go run ./cmd/accesslog-etl -input access.txt -output access.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/couchcryptid/accesslog-geo-etl/internal/adapter/file"
	"github.com/couchcryptid/accesslog-geo-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/accesslog-geo-etl/internal/adapter/ipinfo"
	kafkaadapter "github.com/couchcryptid/accesslog-geo-etl/internal/adapter/kafka"
	"github.com/couchcryptid/accesslog-geo-etl/internal/adapter/maxmind"
	"github.com/couchcryptid/accesslog-geo-etl/internal/config"
	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
	"github.com/couchcryptid/accesslog-geo-etl/internal/observability"
	"github.com/couchcryptid/accesslog-geo-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	flag.StringVar(&cfg.InputPath, "input", cfg.InputPath, "access log to read (env INPUT_PATH)")
	flag.StringVar(&cfg.OutputPath, "output", cfg.OutputPath, "CSV file to write (env OUTPUT_PATH)")
	flag.BoolVar(&cfg.OutputHeader, "header", cfg.OutputHeader, "write a column header row (env OUTPUT_HEADER)")
	flag.BoolVar(&cfg.Strict, "strict", cfg.Strict, "stop at the first rejected line (env STRICT)")
	flag.Parse()

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	locator, closeLocator, err := newLocator(cfg, metrics, logger)
	if err != nil {
		logger.Error("failed to initialize geolocation", "error", err)
		return 1
	}
	defer closeLocator()

	reader, err := file.Open(cfg.InputPath)
	if err != nil {
		logger.Error("failed to open input", "error", err)
		return 1
	}
	defer reader.Close()

	csvWriter, err := file.Create(cfg.OutputPath, cfg.OutputHeader)
	if err != nil {
		logger.Error("failed to create output", "error", err)
		return 1
	}

	loaders := pipeline.MultiLoader{csvWriter}
	if cfg.KafkaEnabled() {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaSinkTopic, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		loaders = append(loaders, writer)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}

	transformer := pipeline.NewTransformer(locator, cfg.LookupMaxRetries, metrics, logger)
	p := pipeline.New(reader, transformer, loaders, logger, metrics, pipeline.Options{
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.LookupConcurrency,
		Strict:      cfg.Strict,
	})

	// The HTTP server lives exactly as long as the run.
	srvCtx, stopServer := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(srvCtx, cfg.ShutdownTimeout); err != nil {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	logger.Info("enrichment started", "input", cfg.InputPath, "output", cfg.OutputPath, "provider", cfg.LookupProvider)
	runErr := p.Run(ctx)

	stopServer()
	wg.Wait()

	if err := csvWriter.Close(); err != nil {
		logger.Error("failed to close output", "error", err)
		return 1
	}
	if runErr != nil {
		logger.Error("enrichment aborted", "error", runErr, "rows_written", csvWriter.Rows())
		return 1
	}

	stats := p.Stats()
	logger.Info("enrichment complete",
		"read", stats.Read,
		"emitted", stats.Emitted,
		"skipped", stats.Skipped,
		"rejected", stats.Rejected,
	)
	return 0
}

// newLocator builds the configured geolocation backend and a function that
// releases it.
func newLocator(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (domain.Locator, func(), error) {
	switch cfg.LookupProvider {
	case config.ProviderMaxMind:
		db, err := maxmind.Open(cfg.MaxMindDBPath, metrics)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("maxmind lookup enabled", "db", cfg.MaxMindDBPath)
		return db, closeQuietly(db, logger), nil

	case config.ProviderIPInfo:
		if cfg.IPInfoToken == "" {
			logger.Warn("IPINFO_TOKEN not set, using the anonymous ipinfo quota")
		}
		client := ipinfo.NewClient(cfg.IPInfoToken, cfg.IPInfoTimeout, cfg.IPInfoRateLimit, metrics, logger,
			ipinfo.WithBaseURL(cfg.IPInfoBaseURL))
		cached := ipinfo.NewCachedLocator(client, cfg.LookupCacheMaxEntries, cfg.LookupCacheTTL, nil, metrics)
		logger.Info("ipinfo lookup enabled",
			"cache_max_entries", cfg.LookupCacheMaxEntries,
			"cache_ttl", cfg.LookupCacheTTL,
			"timeout", cfg.IPInfoTimeout,
			"rate_limit", cfg.IPInfoRateLimit,
		)
		return cached, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown lookup provider %q", cfg.LookupProvider)
	}
}

func closeQuietly(c io.Closer, logger *slog.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}
}
