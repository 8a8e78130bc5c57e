package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"voiceledger/internal/amqp"
	"voiceledger/internal/cli"
	"voiceledger/internal/extract"
	apphttp "voiceledger/internal/http"
	"voiceledger/internal/ledger"
	"voiceledger/internal/log"
	"voiceledger/internal/notify"
	"voiceledger/internal/services"
	"voiceledger/internal/state"
	mem "voiceledger/internal/state/memory"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	// Choose state backend (default: memory).
	var states state.Store
	switch cfg.DataBackend {
	case "sqlite":
		store := cli.InitSQLite(logger, cfg.SQLiteDBPath)
		defer store.Close()
		states = store
		logger.Info("Initialized SQLite state backend", "path", cfg.SQLiteDBPath)
	default:
		states = mem.New()
		logger.Info("Initialized memory state backend")
	}

	// Optional event publishing; the ledger works without a broker.
	var events ledger.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP broker", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		events = client
		logger.Info("Initialized AMQP event publishing", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	extractor, err := extract.NewClient(extract.Config{
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		APIKeys: cfg.GeminiAPIKeys,
		Backoff: cfg.ExtractBackoff,
	})
	if err != nil {
		logger.Error("Failed to initialize extraction client", "error", err)
		os.Exit(1)
	}

	store := ledger.New(states, events, nil)
	notices := notify.NewCenter(cfg.NoticeVisibility, nil)
	svc := services.New(states, store, extractor, notices,
		log.New(log.DefaultConfig()).WithComponent("ledger-service"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	firstLaunch, err := svc.Boot(ctx)
	if err != nil {
		logger.Error("Failed to restore persisted state", "error", err)
		os.Exit(1)
	}
	if firstLaunch {
		logger.Info("First launch, waiting for region setup")
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 60 * time.Second // captures wait on the extraction endpoint
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting voiceledger server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
