package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/api"
	"transferwatch/apps/watcher/internal/config"
	"transferwatch/apps/watcher/internal/cursor"
	"transferwatch/apps/watcher/internal/dynamostore"
	"transferwatch/apps/watcher/internal/lock"
	"transferwatch/apps/watcher/internal/model"
	"transferwatch/apps/watcher/internal/normalizer"
	"transferwatch/apps/watcher/internal/notify"
	"transferwatch/apps/watcher/internal/persistence"
	"transferwatch/apps/watcher/internal/pipeline"
	"transferwatch/apps/watcher/internal/registry"
	"transferwatch/apps/watcher/internal/repository"
	"transferwatch/apps/watcher/internal/secrets"
	"transferwatch/apps/watcher/internal/source"
	"transferwatch/apps/watcher/internal/threshold"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.LogLevel == "debug" {
		if logger, err = zap.NewDevelopment(); err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer logger.Sync()

	logger.Info("Starting application with configuration",
		zap.String("chain_id", cfg.ChainID),
		zap.String("event_source", cfg.EventSource),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("alert_threshold", cfg.AlertThreshold.String()),
		zap.Uint64("max_block_span", cfg.MaxBlockSpan),
		zap.Uint64("finality_offset", cfg.FinalityOffset),
		zap.Bool("run_once", cfg.RunOnce),
		zap.Int("api_port", cfg.APIPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Watcher exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Application shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	src, closeSource, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	sender, closeSender, err := openSender(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSender()

	p := pipeline.New(
		pipeline.Options{ChainID: cfg.ChainID, MaxBlockSpan: cfg.MaxBlockSpan, FinalityOffset: cfg.FinalityOffset},
		pipeline.Components{
			Registry:   stores.tracking,
			Cursor:     cursor.NewManager(stores.checkpoints, cfg.GenesisBlock, logger),
			Source:     src,
			Normalizer: normalizer.New(cfg.ChainID, cfg.NativeSymbol, cfg.NativeDecimals, logger),
			Evaluator:  threshold.New(cfg.AlertThreshold),
			Writer:     persistence.NewWriter(stores.transfers, cfg.MaxBatchSize, cfg.PersistWorkers, logger),
			Dispatcher: notify.NewDispatcher(
				sender,
				notify.Formatter{ExplorerURL: cfg.ExplorerURL, MaskAddresses: cfg.MaskAddresses},
				cfg.MaxAlertsPerMessage,
				cfg.NotifyDelay,
				logger,
			),
		},
		logger,
	)
	runner := pipeline.NewRunner(p, cfg.PollInterval, logger)

	if cfg.RedisAddr != "" {
		locker, err := lock.Dial(ctx, cfg.RedisAddr, cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer locker.Close()
		runner.WithLock(locker, lock.Key(cfg.ChainID))
	}

	if cfg.RunOnce {
		report, err := runner.RunOnce(ctx)
		if errors.Is(err, model.ErrRunInProgress) {
			logger.Info("Another run holds the lease, nothing to do")
			return nil
		}
		logger.Info("Run finished",
			zap.String("outcome", report.Outcome),
			zap.Uint64("checkpoint", report.LastCommitted),
			zap.Int("alerts", len(report.Candidates)),
		)
		return err
	}

	apiServer := api.NewServer(
		cfg.APIPort,
		api.NewStatusHandler(runner, stores.checkpoints, logger),
		api.NewTransferHandler(stores.transfers, logger),
		logger,
	)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("API server failed", zap.Error(err))
		}
	}()

	err = runner.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if stopErr := apiServer.Stop(shutdownCtx); stopErr != nil {
		logger.Error("Error shutting down API server", zap.Error(stopErr))
	}
	return err
}

type transferStore interface {
	persistence.Store
	api.TransferLister
}

type stores struct {
	checkpoints cursor.Store
	tracking    registry.Source
	transfers   transferStore
	close       func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		store, err := dynamostore.Connect(ctx, cfg.AWSRegion, dynamostore.Tables{
			Checkpoint: cfg.CheckpointTable,
			Tracking:   cfg.TrackingTable,
			Transfers:  cfg.TransfersTable,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &stores{checkpoints: store, tracking: store, transfers: store, close: func() {}}, nil
	default:
		db, err := sql.Open("postgres", cfg.DbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := repository.InitMigration(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return &stores{
			checkpoints: repository.NewCheckpointRepository(db, logger),
			tracking:    repository.NewTrackingRepository(db, logger),
			transfers:   repository.NewTransferRepository(db, logger),
			close:       func() { db.Close() },
		}, nil
	}
}

func openSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (source.Source, func(), error) {
	var (
		inner   source.Source
		closeFn = func() {}
	)

	switch cfg.EventSource {
	case config.SourceEVM:
		evm, err := source.DialEVMSource(ctx, cfg.RpcURL, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn = evm.Close
		inner = evm
		if cfg.EVMPerBlock {
			inner = source.NewPerBlockSource(evm, cfg.FetchConcurrency)
		}
	default:
		inner = source.NewIndexerSource(cfg.IndexerURL, cfg.IndexerToken, logger)
	}

	return source.WithRetry(inner, cfg.FetchRetries, time.Second, logger), closeFn, nil
}

func openSender(ctx context.Context, cfg *config.Config, logger *zap.Logger) (notify.Sender, func(), error) {
	var (
		senders []notify.Sender
		closers []func()
	)

	token := cfg.TelegramToken
	if cfg.TelegramTokenSecret != "" {
		resolver, err := secrets.Connect(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, nil, err
		}
		if token, err = resolver.TelegramToken(ctx, cfg.TelegramTokenSecret); err != nil {
			return nil, nil, err
		}
	}
	if token != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(token, cfg.TelegramChatID))
	}

	if cfg.KafkaBroker != "" {
		kafka, err := notify.NewKafkaSender(cfg.KafkaBroker, cfg.KafkaTopic, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kafka sender: %w", err)
		}
		senders = append(senders, kafka)
		closers = append(closers, func() { kafka.Close() })
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	switch len(senders) {
	case 0:
		logger.Warn("No notification channel configured, alerts will only be logged")
		return notify.NewLogSender(logger), closeAll, nil
	case 1:
		return senders[0], closeAll, nil
	default:
		return notify.NewMultiSender(senders...), closeAll, nil
	}
}
