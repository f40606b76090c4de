package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"lms/internal/cache"
	"lms/internal/config"
	"lms/internal/database"
	"lms/internal/logger"
	"lms/internal/repositories"
	"lms/internal/services"
)

// app is the wired dependency graph shared by every subcommand.
type app struct {
	cfg *config.Config
	db  *gorm.DB
	rdb *redis.Client

	loans repositories.LoanRepository

	catalog   services.CatalogService
	inventory services.InventoryService
	directory services.DirectoryService
	lending   services.LendingService
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db}

	var keys cache.KeyCache
	if cfg.Cache.Redis.Enabled {
		rdb, err := cache.NewRedisClient(ctx, cfg.Cache.Redis)
		if err != nil {
			// The cache is an accelerator only.
			logger.Warn(ctx, "bootstrap: redis unavailable, catalog cache disabled", "error", err.Error())
		} else {
			a.rdb = rdb
			keys = cache.NewRedisKeyCache(rdb, cfg.Cache.Redis.KeyPrefix, cfg.Cache.Redis.TTL)
		}
	}

	catalogRepo := repositories.NewCatalogRepository(db)
	instituteRepo := repositories.NewInstituteRepository(db)
	studentRepo := repositories.NewStudentRepository(db)
	inventoryRepo := repositories.NewInventoryRepository(db)
	a.loans = repositories.NewLoanRepository(db)

	a.catalog = services.NewCatalogService(db, catalogRepo, keys)
	a.inventory = services.NewInventoryService(db, catalogRepo, instituteRepo, inventoryRepo, a.loans)
	a.directory = services.NewDirectoryService(db, a.catalog, instituteRepo, studentRepo)
	a.lending = services.NewLendingService(db, studentRepo, inventoryRepo, a.loans, services.LendingOptions{
		Policy: &services.FinePolicy{
			GraceDays:        cfg.Lending.GraceDays,
			RatePerDay:       cfg.Lending.FinePerDay,
			ChargeExcessOnly: cfg.Lending.ChargeExcessOnly,
		},
		Location: cfg.Lending.Location(),
	})
	return a, nil
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if err := database.Close(a.db); err != nil {
		logger.Error(context.Background(), "close database", err)
	}
}

func (a *app) migrate(ctx context.Context) error {
	if err := database.Migrate(ctx, a.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
