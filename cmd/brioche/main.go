package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/brioche-erp/brioche-erp/internal/app"
	"github.com/brioche-erp/brioche-erp/internal/ledger"
	"github.com/brioche-erp/brioche-erp/internal/masterdata/branches"
	"github.com/brioche-erp/brioche-erp/internal/masterdata/products"
	"github.com/brioche-erp/brioche-erp/internal/observability"
	"github.com/brioche-erp/brioche-erp/internal/platform/cache"
	"github.com/brioche-erp/brioche-erp/internal/platform/db"
	"github.com/brioche-erp/brioche-erp/internal/production"
	"github.com/brioche-erp/brioche-erp/internal/returns"
	"github.com/brioche-erp/brioche-erp/internal/sales"
	"github.com/brioche-erp/brioche-erp/internal/shared"
	"github.com/brioche-erp/brioche-erp/internal/transfers"
	"github.com/brioche-erp/brioche-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Redis is optional: aggregate locks degrade to no-ops without it.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, aggregate locks disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	ledger.SetMovementObserver(metrics.MovementObserver())

	auditLogger := shared.NewAuditLogger(pool)
	locks := shared.NewAggregateLock(redisClient, cfg.LockTTL)

	branchesRepo := branches.NewRepository(pool)
	branchesService := branches.NewService(branchesRepo)
	branchesHandler := branches.NewHandler(logger, branchesService)

	productsRepo := products.NewRepository(pool)
	productsService := products.NewService(productsRepo)
	productsHandler := products.NewHandler(logger, productsService)

	resolver := ledger.NewResolver(branchesRepo)
	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, resolver)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	transfersRepo := transfers.NewRepository(pool)
	transfersService := transfers.NewService(transfersRepo, transferDirectory{branchesRepo}, auditLogger, locks)
	transfersHandler := transfers.NewHandler(logger, transfersService)

	returnsRepo := returns.NewRepository(pool)
	returnsService := returns.NewService(returnsRepo, auditLogger, locks)
	returnsHandler := returns.NewHandler(logger, returnsService)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, resolver, auditLogger)
	salesHandler := sales.NewHandler(logger, salesService)

	productionRepo := production.NewRepository(pool)
	productionService := production.NewService(productionRepo, auditLogger)
	productionHandler := production.NewHandler(logger, productionService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledgerHandler,
		TransfersHandler:  transfersHandler,
		ReturnsHandler:    returnsHandler,
		SalesHandler:      salesHandler,
		ProductionHandler: productionHandler,
		ProductsHandler:   productsHandler,
		BranchesHandler:   branchesHandler,
		JobsHandler:       jobsHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}

// transferDirectory adapts the branch repository to the narrow destination
// lookup the transfer service needs.
type transferDirectory struct {
	repo branches.Repository
}

func (d transferDirectory) Get(ctx context.Context, id int64) (transfers.BranchInfo, error) {
	branch, err := d.repo.Get(ctx, id)
	if err != nil {
		return transfers.BranchInfo{}, err
	}
	return transfers.BranchInfo{ID: branch.ID, IsOutlet: branch.IsOutlet}, nil
}
