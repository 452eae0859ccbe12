package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/taxomap/internal/common"
	"github.com/Veraticus/taxomap/internal/config"
	"github.com/Veraticus/taxomap/internal/mapper"
	"github.com/Veraticus/taxomap/internal/navigator"
	"github.com/Veraticus/taxomap/internal/oracle"
	"github.com/Veraticus/taxomap/internal/service"
	"github.com/Veraticus/taxomap/internal/storage"
	"github.com/Veraticus/taxomap/internal/taxonomy"
)

// cacheCleanupInterval is how often the memory layer drops expired records.
const cacheCleanupInterval = 10 * time.Minute

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, common.NewUserError("invalid configuration", err)
	}
	return cfg, nil
}

// openStore opens the configured backend and runs its migrations.
func openStore(ctx context.Context, cfg *config.Config) (service.MappingStore, error) {
	var (
		store service.MappingStore
		err   error
	)
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		store, err = storage.NewPostgresStorage(ctx, cfg.Database.DSN)
	default:
		store, err = storage.NewSQLiteStorage(cfg.Database.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Driver, err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// initStorage opens the mapping store behind the in-process cache.
func initStorage(ctx context.Context, cfg *config.Config) (service.MappingStore, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return storage.NewCachedStore(store, cfg.Cache.MemoryTTL, cacheCleanupInterval), nil
}

func loadTaxonomy(cfg *config.Config) (*taxonomy.Index, error) {
	idx, err := taxonomy.LoadFile(cfg.Taxonomy.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.NewUserError(
			fmt.Sprintf("taxonomy snapshot not found at %s (set --taxonomy or taxonomy.path)", cfg.Taxonomy.Path), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	slog.Debug("loaded taxonomy",
		"path", cfg.Taxonomy.Path,
		"version", idx.Version(),
		"categories", idx.Len(),
		"verticals", len(idx.Verticals()))
	return idx, nil
}

func createOracle(ctx context.Context, cfg *config.Config) (oracle.Oracle, error) {
	o, err := oracle.NewOracle(ctx, cfg.OracleSettings(), slog.Default())
	if errors.Is(err, common.ErrMissingConfig) {
		return nil, common.NewUserError(
			fmt.Sprintf("no API key for oracle provider %q (set oracle.api_key or TAXOMAP_ORACLE_API_KEY)", cfg.Oracle.Provider), err)
	}
	return o, err
}

// session bundles what the mapping commands need.
type session struct {
	cfg    *config.Config
	index  *taxonomy.Index
	store  service.MappingStore
	mapper *mapper.Mapper
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

// openSession loads the taxonomy and store. The oracle is only created when
// withOracle is set, so cache-only commands work without credentials.
func openSession(ctx context.Context, withOracle bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	idx, err := loadTaxonomy(cfg)
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var o oracle.Oracle = unavailableOracle{}
	if withOracle {
		o, err = createOracle(ctx, cfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	nav := navigator.NewWithConfig(o, slog.Default(), navigator.Config{MaxTurns: cfg.Navigation.MaxTurns})
	m := mapper.NewWithConfig(taxonomy.NewHolder(idx), nav, store, slog.Default(),
		mapper.Config{RequestTimeout: cfg.Navigation.RequestTimeout})

	return &session{cfg: cfg, index: idx, store: store, mapper: m}, nil
}

// unavailableOracle backs sessions opened without oracle credentials.
type unavailableOracle struct{}

func (unavailableOracle) NewSession(context.Context) (oracle.Session, error) {
	return nil, fmt.Errorf("%w: no oracle configured for this command", common.ErrOracleUnavailable)
}
