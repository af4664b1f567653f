package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/analysis"
	"github.com/apflow/invoice-approval/internal/application/collections"
	"github.com/apflow/invoice-approval/internal/application/engine"
	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/internal/config"
	"github.com/apflow/invoice-approval/internal/document"
	"github.com/apflow/invoice-approval/internal/infrastructure/external/openai"
	"github.com/apflow/invoice-approval/internal/infrastructure/notify"
	"github.com/apflow/invoice-approval/internal/infrastructure/persistence/repository"
	"github.com/apflow/invoice-approval/internal/infrastructure/worker"
	httpserver "github.com/apflow/invoice-approval/internal/interfaces/http"
	"github.com/apflow/invoice-approval/pkg/database"
	"github.com/apflow/invoice-approval/pkg/utils"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice approval service",
		zap.Int("port", cfg.Server.Port))

	db, err := database.Open(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.Run(ctx, cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Repositories
	workflowRepo := repository.NewWorkflowRepository(db, logger)
	requestRepo := repository.NewRequestRepository(db, logger)
	invoiceRepo := repository.NewInvoiceRepository(db, logger)
	customerRepo := repository.NewCustomerRepository(db, logger)
	automationRepo := repository.NewAutomationRepository(db, logger)

	// Analyzers
	fraudAnalyzer := analysis.NewFraudAnalyzer(invoiceRepo, logger)
	complianceChecker := analysis.NewComplianceChecker(logger)

	var narrator port.RecommendationNarrator
	if cfg.OpenAI.APIKey != "" {
		narrator = openai.NewNarrator(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Temperature, logger)
	} else {
		logger.Info("OpenAI API key not configured, recommendation narratives disabled")
	}
	recommender := analysis.NewRecommendationGenerator(narrator, logger)

	// External adapters
	notifier := notify.NewLedgerNotifier(db, logger)
	extractor := document.NewExtractor(logger)

	// Application engines
	approvalEngine := engine.New(
		workflowRepo, requestRepo, invoiceRepo, customerRepo, db,
		fraudAnalyzer, complianceChecker, recommender,
		notifier, extractor, logger)

	collectionsEngine := collections.New(
		invoiceRepo, customerRepo, automationRepo, db, logger,
		collections.WithMaxAttempts(cfg.Collections.MaxAttempts))

	// Background workers
	workerManager := worker.NewManager(logger)
	workerManager.Register(worker.NewTimeoutSweeper(approvalEngine, cfg.Workers.TimeoutSweepInterval, logger))
	workerManager.Register(worker.NewCollectionsSweeper(collectionsEngine, cfg.Workers.CollectionsSweepInterval, logger))

	if err := workerManager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// HTTP server
	handlers := httpserver.NewHandlers(approvalEngine, collectionsEngine, workflowRepo, logger)
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Error("Server error", zap.Error(err))
	}

	workerManager.StopAll()
	logger.Info("Service stopped")
}
