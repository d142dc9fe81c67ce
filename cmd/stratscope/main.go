package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/joelkehle/stratscope/internal/catalog"
	"github.com/joelkehle/stratscope/internal/config"
	"github.com/joelkehle/stratscope/internal/httpapi"
	"github.com/joelkehle/stratscope/internal/oracle"
	"github.com/joelkehle/stratscope/internal/pattern"
	"github.com/joelkehle/stratscope/internal/pipeline"
	"github.com/joelkehle/stratscope/internal/report"
	"github.com/joelkehle/stratscope/internal/scoring"
	"github.com/joelkehle/stratscope/internal/simulate"
	"github.com/joelkehle/stratscope/internal/store"
)

func main() {
	configFlag := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	if err := run(*configFlag); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)

	cat, err := catalog.Load(cfg.Catalog.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	lib, err := pattern.LoadLibrary(cfg.Catalog.PatternPath, cat)
	if err != nil {
		return fmt.Errorf("load pattern library: %w", err)
	}
	logger.Info().
		Int("segments", len(cat.Segments)).
		Int("factors", len(cat.Factors)).
		Int("layers", len(cat.Layers)).
		Int("patterns", len(lib.Patterns)).
		Msg("catalog loaded")

	if cfg.Tracing.Enabled {
		shutdown, err := setupTracing(cfg.Tracing.Endpoint)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer shutdown()
	}

	var runStore pipeline.RunStore
	if cfg.Storage.Path != "" {
		ss, err := store.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		runStore = ss
		logger.Info().Str("path", cfg.Storage.Path).Msg("using sqlite store")
	} else {
		runStore = store.NewMemoryStore()
		logger.Warn().Msg("no storage path configured, runs are held in memory only")
	}
	defer runStore.Close()

	caller, err := oracle.NewAnthropicCallerFromEnv(cfg.Oracle.Model, int64(cfg.Oracle.MaxTokens))
	if err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	personas := oracle.NewPersonaRegistry(cat)
	scorer := oracle.NewBatchScorer(caller, personas, oracle.BatchConfig{
		ChunkSize:         cfg.Oracle.ChunkSize,
		Concurrency:       cfg.Oracle.Concurrency,
		RequestsPerSecond: cfg.Oracle.RequestsPerSecond,
		MaxAttempts:       cfg.Oracle.MaxAttempts,
	}, logger)
	insights := oracle.NewInsightGenerator(caller, cfg.Oracle.MaxAttempts)

	orch := pipeline.NewOrchestrator(pipeline.Options{
		Catalog:  cat,
		Library:  lib,
		Scorer:   scorer,
		Segments: scoring.NewSegmentEngine(cat, insights),
		Matcher: pattern.NewMatcher(lib, pattern.MatcherConfig{
			AcceptThreshold:  cfg.Matcher.AcceptThreshold,
			StrongMargin:     cfg.Matcher.StrongMargin,
			StrongMultiplier: cfg.Matcher.StrongMultiplier,
		}),
		Sim:        simulate.NewEngine(cfg.Simulation.Iterations),
		Store:      runStore,
		Logger:     logger,
		Iterations: cfg.Simulation.Iterations,
		Seed:       cfg.Simulation.Seed,
	})

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pdf report.PDFRenderer
	if cfg.Server.PDFReports {
		pdf = report.NewChromiumPDFRenderer()
	}
	handler := httpapi.NewServer(httpapi.Config{
		Orchestrator:    orch,
		Store:           runStore,
		Catalog:         cat,
		PDF:             pdf,
		Logger:          logger,
		BaseCtx:         baseCtx,
		MinContentChars: oracle.MinContentChars,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-baseCtx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) log.Logger {
	logger := log.Logger{
		Level:      log.ParseLevel(cfg.Level),
		TimeFormat: "15:04:05.000",
	}
	if cfg.Format == "console" {
		logger.Writer = &log.ConsoleWriter{ColorOutput: true}
	}
	return logger
}

func setupTracing(endpoint string) (func(), error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
	if endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	}
	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}
