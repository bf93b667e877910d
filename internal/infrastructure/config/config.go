package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Morpho struct {
		Endpoint string `toml:"endpoint"`
	} `toml:"morpho"`

	Optimizer struct {
		AvailableFunds float64 `toml:"available_funds"`
		MaxRisk        float64 `toml:"max_risk"`
		MaxUtilization float64 `toml:"max_utilization"`
	} `toml:"optimizer"`

	SQLite struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"sqlite"`

	Postgres struct {
		Enabled bool   `toml:"enabled"`
		DSN     string `toml:"dsn"`
	} `toml:"postgres"`

	Redis struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
		Prefix  string `toml:"prefix"`
		TTLMin  int    `toml:"ttl_min"`
	} `toml:"redis"`

	Vault struct {
		Enabled   bool   `toml:"enabled"`
		RPCURL    string `toml:"rpc_url"`
		Address   string `toml:"address"`
		GasBuffer uint64 `toml:"gas_buffer"`
	} `toml:"vault"`

	Schedule struct {
		Enabled bool   `toml:"enabled"`
		Cron    string `toml:"cron"`
	} `toml:"schedule"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Morpho.Endpoint) == "" {
		cfg.Morpho.Endpoint = "https://blue-api.morpho.org/graphql"
	}
	if cfg.Optimizer.AvailableFunds == 0 {
		cfg.Optimizer.AvailableFunds = 1_000_000
	}
	if cfg.Optimizer.MaxRisk == 0 {
		cfg.Optimizer.MaxRisk = 0.2
	}
	if cfg.Optimizer.MaxUtilization == 0 {
		cfg.Optimizer.MaxUtilization = 0.85
	}
	if !cfg.SQLite.Enabled && !cfg.Postgres.Enabled {
		cfg.SQLite.Enabled = true
	}
	if strings.TrimSpace(cfg.SQLite.Path) == "" {
		cfg.SQLite.Path = "data/yieldopt.db"
	}
	if strings.TrimSpace(cfg.Redis.Prefix) == "" {
		cfg.Redis.Prefix = "yieldopt"
	}
	if cfg.Vault.GasBuffer == 0 {
		cfg.Vault.GasBuffer = 50_000
	}
	if strings.TrimSpace(cfg.Schedule.Cron) == "" {
		cfg.Schedule.Cron = "0 */6 * * *"
	}
}

func validate(cfg *Config) error {
	if cfg.Optimizer.AvailableFunds < 0 {
		return fmt.Errorf("optimizer.available_funds %.2f is negative", cfg.Optimizer.AvailableFunds)
	}
	if cfg.Optimizer.MaxRisk < 0 || cfg.Optimizer.MaxRisk > 1 {
		return fmt.Errorf("optimizer.max_risk %.4f outside [0,1]", cfg.Optimizer.MaxRisk)
	}
	if cfg.Optimizer.MaxUtilization < 0 || cfg.Optimizer.MaxUtilization > 1 {
		return fmt.Errorf("optimizer.max_utilization %.4f outside [0,1]", cfg.Optimizer.MaxUtilization)
	}
	if cfg.Postgres.Enabled && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return errors.New("postgres.dsn is empty but postgres enabled")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr is empty but redis enabled")
	}
	if cfg.Vault.Enabled {
		if strings.TrimSpace(cfg.Vault.RPCURL) == "" {
			return errors.New("vault.rpc_url is empty but vault enabled")
		}
		if strings.TrimSpace(cfg.Vault.Address) == "" {
			return errors.New("vault.address is empty but vault enabled")
		}
	}
	return nil
}
