package cartsync

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/unibazzar/unibazzar-cart/pkg/config"
	"github.com/unibazzar/unibazzar-cart/pkg/db"
	"github.com/unibazzar/unibazzar-cart/pkg/logger"
	"github.com/unibazzar/unibazzar-cart/pkg/migrate"
	"github.com/unibazzar/unibazzar-cart/pkg/redis"
)

// Backend is an opened SnapshotStore together with the connections it owns.
type Backend struct {
	Name  string
	Store SnapshotStore
	// Degraded is set when the configured backend could not be opened and
	// snapshots only live as long as the process.
	Degraded bool
	// Redis is the connection behind the redis backend, nil otherwise.
	Redis *redis.Client

	closers []func() error
}

// Close releases every connection held by the backend.
func (b *Backend) Close() error {
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, b.closers[i]())
	}
	b.closers = nil
	return err
}

// Open connects the snapshot backend selected by cfg.Storage.Backend. A
// backend that cannot be reached at boot is replaced by a MemoryStore and a
// warning, so the cart keeps working for the session.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) *Backend {
	backend, err := open(ctx, cfg, logg)
	if err == nil {
		return backend
	}

	logg.Warn(logg.WithFields(ctx, map[string]any{
		"backend": cfg.Storage.Backend,
		"reason":  err.Error(),
	}), "cart.storage_unavailable_using_memory")
	return &Backend{Name: config.BackendMemory, Store: NewMemoryStore(), Degraded: true}
}

func open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return &Backend{Name: config.BackendMemory, Store: NewMemoryStore()}, nil

	case config.BackendFile:
		store, err := NewFileStore(cfg.Storage.FileDir)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: config.BackendFile, Store: store}, nil

	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:    config.BackendRedis,
			Store:   NewRedisStore(client),
			Redis:   client,
			closers: []func() error{client.Close},
		}, nil

	case config.BackendPostgres:
		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, err
		}
		if err := migrate.MaybeRunDev(ctx, cfg, logg, client); err != nil {
			return nil, multierr.Append(err, client.Close())
		}
		return &Backend{Name: config.BackendPostgres, Store: NewGormStore(client.DB()), closers: []func() error{client.Close}}, nil

	case config.BackendSQLite:
		client, err := db.NewSQLite(ctx, cfg.Storage.SQLitePath, logg)
		if err != nil {
			return nil, err
		}
		store := NewGormStore(client.DB())
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, multierr.Append(err, client.Close())
		}
		return &Backend{Name: config.BackendSQLite, Store: store, closers: []func() error{client.Close}}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}
