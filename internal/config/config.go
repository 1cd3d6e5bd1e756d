package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"prediction-league-service/internal/domain"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	League struct {
		DefaultWinBonus *int `yaml:"default_win_bonus"`
	} `yaml:"league"`
}

// Load reads YAML config from path and fills defaults for anything left empty.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.normalize()
}

func (c *Config) normalize() error {
	if c.Store.Driver == "" {
		switch {
		case c.Postgres.URL != "":
			c.Store.Driver = DriverPostgres
		case c.Redis.Addr != "":
			c.Store.Driver = DriverRedis
		default:
			c.Store.Driver = DriverMemory
		}
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("store driver %q requires redis.addr", c.Store.Driver)
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("store driver %q requires postgres.url", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if b := c.League.DefaultWinBonus; b != nil && (*b < 0 || *b > domain.MaxWinBonusPoints) {
		return fmt.Errorf("league.default_win_bonus must be between 0 and %d, got %d", domain.MaxWinBonusPoints, *b)
	}
	return nil
}

// WinBonus returns the configured default league win bonus, or 5.
func (c Config) WinBonus() int {
	if c.League.DefaultWinBonus == nil {
		return 5
	}
	return *c.League.DefaultWinBonus
}

// Duration parses a duration string or returns the fallback if empty.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
