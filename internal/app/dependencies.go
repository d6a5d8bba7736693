package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/storage/rediscache"
)

const (
	storageCheckTimeout = 2 * time.Second
	cacheCheckTimeout   = time.Second
)

// runtimeDependencies содержит репозитории и служебные ресурсы выбранного хранилища.
type runtimeDependencies struct {
	customers  domain.CustomerRepository
	products   domain.ProductRepository
	orders     domain.OrderRepository
	outboxRepo domain.OutboxRepository

	storageChecker healthcheck.Checker
	cacheChecker   healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage resources")
	}
}

// initRuntimeDependencies собирает репозитории по cfg: хранилище, кэш клиентов, демо-данные.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var (
		deps *runtimeDependencies
		err  error
	)

	switch driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver)); driver {
	case "", StorageDriverMemory:
		deps = &runtimeDependencies{
			customers:  memory.NewCustomerRepository(),
			products:   memory.NewProductRepository(),
			orders:     memory.NewOrderRepository(),
			outboxRepo: memory.NewOutboxRepository(),
		}
	case StorageDriverPostgres:
		deps, err = initPostgresDependencies(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		attachCustomerCache(ctx, deps, cfg, logger)
	}

	if cfg.SeedDemoData {
		if err := seedDemoData(ctx, deps, logger); err != nil {
			deps.close(logger)
			return nil, err
		}
	}

	return deps, nil
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, errors.New("postgres storage requires a DSN")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		version, applied, err := store.MigrationStatus(ctx)
		if err == nil {
			logger.WithFields(log.Fields{"version": version, "applied": applied}).Info("postgres schema is up to date")
		}
	}

	return &runtimeDependencies{
		customers:      postgres.NewCustomerRepository(store),
		products:       postgres.NewProductRepository(store),
		orders:         postgres.NewOrderRepository(store),
		outboxRepo:     postgres.NewOutboxRepository(store),
		storageChecker: healthcheck.NewPingChecker("postgres", storageCheckTimeout, store.Ping),
		closeFn:        store.Close,
	}, nil
}

// attachCustomerCache оборачивает репозиторий клиентов кэшем Redis.
// Недоступный Redis не мешает старту: кэш пропускает запросы к основному хранилищу.
func attachCustomerCache(ctx context.Context, deps *runtimeDependencies, cfg Config, logger *log.Entry) {
	client := rediscache.NewClient(cfg.RedisAddr)
	pingCtx, cancel := context.WithTimeout(ctx, cacheCheckTimeout)
	defer cancel()
	if err := rediscache.Ping(pingCtx, client); err != nil {
		logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis is unreachable, customer cache will fall through")
	}

	deps.customers = rediscache.NewCustomerRepository(deps.customers, client, rediscache.Options{
		TTL:    cfg.CustomerCacheTTL,
		Logger: logger.WithField("layer", "customer-cache"),
	})
	deps.cacheChecker = healthcheck.NewOptionalChecker("redis", cacheCheckTimeout, func(ctx context.Context) error {
		return rediscache.Ping(ctx, client)
	})

	closeStorage := deps.closeFn
	deps.closeFn = func() error {
		err := client.Close()
		if closeStorage != nil {
			err = errors.Join(err, closeStorage())
		}
		return err
	}
}

// seedDemoData заливает демо-каталог. Занятый email означает, что данные уже есть.
func seedDemoData(ctx context.Context, deps *runtimeDependencies, logger *log.Entry) error {
	err := memory.Seed(ctx, deps.customers, deps.products, memory.DemoData())
	switch {
	case err == nil:
		logger.Info("demo catalog seeded")
		return nil
	case errors.Is(err, domain.ErrCustomerEmailTaken), errors.Is(err, domain.ErrProductNameTaken):
		logger.Debug("demo catalog is already present")
		return nil
	default:
		return fmt.Errorf("seed demo data: %w", err)
	}
}
