package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"pharmapos-backend/internal/config"
	"pharmapos-backend/internal/credit"
	"pharmapos-backend/internal/db"
	"pharmapos-backend/internal/handler"
	"pharmapos-backend/internal/idempotency"
	"pharmapos-backend/internal/memstore"
	"pharmapos-backend/internal/ports"
	"pharmapos-backend/internal/repository"
	"pharmapos-backend/internal/sale"
	"pharmapos-backend/internal/server"
	"pharmapos-backend/internal/service"
)

// backend is the storage selected by STORE_DRIVER.
type backend struct {
	health      ports.HealthChecker
	tx          ports.TxManager
	actors      ports.ActorResolver
	users       ports.UserFinder
	sales       ports.SaleReader
	credits     ports.CreditReader
	stock       ports.StockReader
	catalog     ports.MedicineCatalog
	idempotency ports.IdempotencyStore
	close       func()
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var b *backend
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("in-memory store selected, data is lost on restart and not meant for production")
		b, err = openMemory(cfg)
	default:
		b, err = openPostgres(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer b.close()

	prometheus.MustRegister(sale.Collectors()...)
	prometheus.MustRegister(credit.Collectors()...)
	prometheus.MustRegister(server.Collectors()...)

	// idempotency
	guard := idempotency.NewGuard(b.idempotency, cfg.IdempotencyTTL)
	guard.InFlightTTL = cfg.InFlightKeyTTL()
	pruner := &idempotency.Pruner{Store: b.idempotency, Interval: cfg.IdempotencyPruneInterval, Logger: logger}
	if err := pruner.Start(); err != nil {
		logger.Error("failed to start idempotency pruner", "err", err)
		os.Exit(1)
	}

	// services
	authSvc := service.AuthService{Config: cfg, Users: b.users, Logger: logger}
	coordinator := sale.NewCoordinator(b.tx, b.actors, guard, logger, cfg.VoidAllowPaidCredit)
	creditLedger := credit.Ledger{Tx: b.tx, Reader: b.credits, Actors: b.actors, Logger: logger}
	stockSvc := service.StockService{Tx: b.tx, Actors: b.actors, Reader: b.stock, Catalog: b.catalog}

	// handlers
	handlers := server.Handlers{
		Health:    handler.HealthHandler{DB: b.health},
		Auth:      handler.AuthHandler{Service: &authSvc, Logger: logger},
		Sales:     handler.SaleHandler{Coordinator: coordinator, Sales: b.sales, Currency: cfg.DefaultCurrency, Logger: logger},
		Credit:    handler.CreditHandler{Ledger: creditLedger, Logger: logger},
		Stock:     handler.StockHandler{Service: stockSvc, Logger: logger},
		Medicines: handler.MedicineHandler{Service: stockSvc, Logger: logger},
	}

	router := server.NewRouter(cfg, logger, handlers)

	if err := server.Start(ctx, cfg, router, logger, pruner.Stop); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func openMemory(cfg config.Config) (*backend, error) {
	store := memstore.New()
	if err := store.Seed(cfg.SeedManagerPassword, cfg.SeedCashierPassword); err != nil {
		return nil, fmt.Errorf("seed memory store: %w", err)
	}
	return &backend{
		health:      store,
		tx:          store,
		actors:      store,
		users:       store,
		sales:       store,
		credits:     store,
		stock:       store,
		catalog:     store,
		idempotency: idempotency.NewMemoryStore(),
		close:       func() {},
	}, nil
}

func openPostgres(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	pg, err := db.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}

	// repositories
	userRepo := repository.UserRepository{DB: pg}
	stockRepo := repository.StockRepository{DB: pg}

	if cfg.SeedDemoData {
		if err := userRepo.SeedDefaults(ctx, cfg.SeedManagerPassword, cfg.SeedCashierPassword); err != nil {
			pg.Close()
			return nil, err
		}
		if err := stockRepo.SeedDefaults(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		logger.Info("demo data seeded", "businessId", repository.DemoBusinessID)
	}

	return &backend{
		health:      pg,
		tx:          repository.LedgerRepository{DB: pg},
		actors:      userRepo,
		users:       userRepo,
		sales:       repository.SaleRepository{DB: pg},
		credits:     repository.CreditRepository{DB: pg},
		stock:       stockRepo,
		catalog:     stockRepo,
		idempotency: repository.IdempotencyRepository{DB: pg},
		close:       pg.Close,
	}, nil
}
