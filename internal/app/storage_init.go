package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/catalog"
	"github.com/vladislavdragonenkov/ordering/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ordering/internal/health"
	"github.com/vladislavdragonenkov/ordering/internal/storage/memory"
	"github.com/vladislavdragonenkov/ordering/internal/storage/postgres"
)

// runtimeDependencies — репозитории выбранного хранилища.
type runtimeDependencies struct {
	customers domain.CustomerRepository
	products  domain.ProductRepository
	orders    domain.OrderRepository
	outbox    domain.OutboxRepository
	cleaner   domain.OutboxCleaner
	timeline  domain.TimelineRepository
	tx        domain.TxManager
	// pinger nil для memory: проверять нечего.
	pinger healthcheck.Pinger
	close  func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var (
		deps *runtimeDependencies
		err  error
	)

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		deps = newMemoryDependencies()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		deps, err = newPostgresDependencies(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.SeedFile != "" {
		if err := seedCatalog(ctx, cfg.SeedFile, deps, logger); err != nil {
			return nil, errors.Join(err, deps.close())
		}
	}

	return deps, nil
}

func newMemoryDependencies() *runtimeDependencies {
	store := memory.NewStore()
	return &runtimeDependencies{
		customers: store.Customers(),
		products:  store.Products(),
		orders:    store.Orders(),
		outbox:    store.Outbox(),
		cleaner:   store.Outbox(),
		timeline:  store.Timeline(),
		tx:        store,
		close:     func() error { return nil },
	}
}

func newPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("postgres dsn is required for postgres storage")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, errors.Join(fmt.Errorf("migrate postgres: %w", err), store.Close())
		}
		logger.Info("postgres schema is up to date")
	} else {
		status, err := store.Migrator().Status(ctx)
		if err != nil {
			return nil, errors.Join(err, store.Close())
		}
		if len(status.Pending) > 0 {
			logger.WithField("pending", status.Pending).Warn("postgres has pending migrations, run cmd/migrate up")
		}
		if len(status.Modified) > 0 {
			logger.WithField("modified", status.Modified).Warn("applied migrations differ from embedded scripts")
		}
	}

	logger.Info("using postgres storage")
	return &runtimeDependencies{
		customers: store.Customers(),
		products:  store.Products(),
		orders:    store.Orders(),
		outbox:    store.Outbox(),
		cleaner:   store.Outbox(),
		timeline:  store.Timeline(),
		tx:        store,
		pinger:    store,
		close:     store.Close,
	}, nil
}

func seedCatalog(ctx context.Context, path string, deps *runtimeDependencies, logger *log.Entry) error {
	fixture, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}
	_, err = catalog.Apply(ctx, fixture, catalog.Repositories{
		Customers: deps.customers,
		Products:  deps.products,
		Tx:        deps.tx,
	}, logger.WithField("seed_file", path))
	return err
}
