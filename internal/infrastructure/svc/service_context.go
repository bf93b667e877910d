package svc

import (
	"context"
	"fmt"
	"os"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"yieldopt/internal/application/port"
	"yieldopt/internal/application/service"
	"yieldopt/internal/application/usecase/rebalance"
	"yieldopt/internal/infrastructure/config"
	"yieldopt/internal/infrastructure/morpho"
	"yieldopt/internal/infrastructure/solver"
	"yieldopt/internal/infrastructure/storage/composite"
	"yieldopt/internal/infrastructure/storage/postgres"
	rediscache "yieldopt/internal/infrastructure/storage/redis"
	sqliterepo "yieldopt/internal/infrastructure/storage/sqlite"
	"yieldopt/internal/infrastructure/vault"
	"yieldopt/internal/interfaces/console"
)

// ServiceContext builds every component from config, in dependency order.
// Close releases resources in reverse order.
type ServiceContext struct {
	Config *config.Config

	Store     port.Store
	Cache     port.SnapshotCache
	Source    port.MarketSource
	Sink      port.Sink
	Allocator *service.Allocator
	Trend     *service.TrendAnalyzer
	Rebalance *rebalance.Service

	closerChain []func() error
}

func New(cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Config: cfg,
		Sink:   console.NewSink(),
	}

	if err := sc.initStorage(); err != nil {
		_ = sc.Close()
		return nil, err
	}

	sc.Source = morpho.NewClient(cfg.Morpho.Endpoint)
	sc.Allocator = service.NewAllocator(solver.NewSimplex())
	sc.Trend = service.NewTrendAnalyzer(sc.Store)

	executor, err := sc.initExecutor()
	if err != nil {
		_ = sc.Close()
		return nil, err
	}

	sc.Rebalance = rebalance.NewService(rebalance.ServiceDeps{
		Source:    sc.Source,
		Store:     sc.Store,
		Allocator: sc.Allocator,
		Cache:     sc.Cache,
		Executor:  executor,
		Sink:      sc.Sink,
	})
	return sc, nil
}

func (sc *ServiceContext) initStorage() error {
	var stores []port.Store

	if sc.Config.SQLite.Enabled {
		repo, err := sqliterepo.New(sc.Config.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite initialization failed: %w", err)
		}
		sc.closerChain = append(sc.closerChain, repo.Close)
		stores = append(stores, repo)
		log.Info().Str("path", sc.Config.SQLite.Path).Msg("sqlite store ready")
	}
	if sc.Config.Postgres.Enabled {
		repo, err := postgres.New(sc.Config.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		sc.closerChain = append(sc.closerChain, repo.Close)
		stores = append(stores, repo)
		log.Info().Msg("postgres store ready")
	}

	switch len(stores) {
	case 0:
		return ErrNoStoreEnabled
	case 1:
		sc.Store = stores[0]
	default:
		sc.Store = composite.New(stores...)
	}

	if sc.Config.Redis.Enabled {
		rdb := redisclient.NewClient(&redisclient.Options{Addr: sc.Config.Redis.Addr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		cache := rediscache.New(rdb, sc.Config.Redis.Prefix, time.Duration(sc.Config.Redis.TTLMin)*time.Minute)
		sc.closerChain = append(sc.closerChain, cache.Close)
		sc.Cache = cache
		log.Info().Str("addr", sc.Config.Redis.Addr).Msg("redis cache ready")
	}
	return nil
}

func (sc *ServiceContext) initExecutor() (port.Executor, error) {
	if !sc.Config.Vault.Enabled {
		return nil, nil
	}
	key := os.Getenv("VAULT_PRIVATE_KEY")
	if key == "" {
		return nil, ErrSignerKeyMissing
	}
	exec, err := vault.NewExecutor(sc.Config.Vault.RPCURL, sc.Config.Vault.Address, key, sc.Config.Vault.GasBuffer)
	if err != nil {
		return nil, fmt.Errorf("vault executor initialization failed: %w", err)
	}
	sc.closerChain = append(sc.closerChain, exec.Close)
	log.Info().Str("vault", sc.Config.Vault.Address).Msg("vault executor ready")
	return exec, nil
}

func (sc *ServiceContext) Close() error {
	var firstErr error
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
