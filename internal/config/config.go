// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
	"go.mercari.io/popcache"
)

// Store backends.
const (
	StoreSQLite    = "sqlite"
	StoreDatastore = "datastore"
	StoreMemory    = "memory"
)

// Cache backends.
const (
	CacheLocal    = "local"
	CacheRedis    = "redis"
	CacheMemcache = "memcache"
)

// Config is the configuration of cmd/popserver.
type Config struct {
	Port              int           `env:"POPULATION_PORT"                envDefault:"5555"`
	Workers           int           `env:"POPULATION_WORKERS"             envDefault:"1"`
	DataPath          string        `env:"POPULATION_DATA_PATH"`
	PersistDir        string        `env:"POPULATION_PERSIST_DIR"         envDefault:".persist-population"`
	Store             string        `env:"POPULATION_STORE"               envDefault:"sqlite"`
	Cache             string        `env:"POPULATION_CACHE"               envDefault:"local"`
	RedisAddr         string        `env:"POPULATION_REDIS_ADDR"          envDefault:"127.0.0.1:6379"`
	MemcacheAddr      string        `env:"POPULATION_MEMCACHE_ADDR"       envDefault:"127.0.0.1:11211"`
	StoreRetries      int           `env:"POPULATION_STORE_RETRIES"       envDefault:"3"`
	MaxInflightWrites int64         `env:"POPULATION_MAX_INFLIGHT_WRITES" envDefault:"64"`
	LogLevel          string        `env:"POPULATION_LOG_LEVEL"           envDefault:"info"`
	Role              popcache.Role `env:"POPULATION_ROLE"                envDefault:"primary"`
	ProjectID         string        `env:"DATASTORE_PROJECT_ID"`
}

// Load parses and validates the environment.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (cfg Config) Validate() error {
	var result *multierror.Error

	if cfg.Port < 1 || 65535 < cfg.Port {
		result = multierror.Append(result, fmt.Errorf("POPULATION_PORT must be in 1..65535, got %d", cfg.Port))
	}
	if cfg.Workers < 1 {
		result = multierror.Append(result, fmt.Errorf("POPULATION_WORKERS must be at least 1, got %d", cfg.Workers))
	}
	if cfg.StoreRetries < 0 {
		result = multierror.Append(result, fmt.Errorf("POPULATION_STORE_RETRIES must not be negative, got %d", cfg.StoreRetries))
	}
	if cfg.MaxInflightWrites < 1 {
		result = multierror.Append(result, fmt.Errorf("POPULATION_MAX_INFLIGHT_WRITES must be at least 1, got %d", cfg.MaxInflightWrites))
	}

	switch cfg.Store {
	case StoreSQLite:
		if cfg.PersistDir == "" {
			result = multierror.Append(result, errors.New("POPULATION_PERSIST_DIR is required by the sqlite store"))
		}
	case StoreDatastore:
		if cfg.ProjectID == "" {
			result = multierror.Append(result, errors.New("DATASTORE_PROJECT_ID is required by the datastore store"))
		}
	case StoreMemory:
	default:
		result = multierror.Append(result, fmt.Errorf("POPULATION_STORE must be one of sqlite, datastore, memory, got %q", cfg.Store))
	}

	switch cfg.Cache {
	case CacheLocal, CacheRedis, CacheMemcache:
	default:
		result = multierror.Append(result, fmt.Errorf("POPULATION_CACHE must be one of local, redis, memcache, got %q", cfg.Cache))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// InProcess reports whether requests are served by the primary process itself.
// A process local cache can not be shared, so it never runs separate workers.
func (cfg Config) InProcess() bool {
	return cfg.Cache == CacheLocal
}
