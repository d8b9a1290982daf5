package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Network    NetworkConfig    `toml:"network"`
	Arena      ArenaConfig      `toml:"arena"`
	Relocation RelocationConfig `toml:"relocation"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Name string `toml:"name"` // node name, also the lease source
	ID   int    `toml:"id"`
}

type NetworkConfig struct {
	BindAddress  string        `toml:"bind_address"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

type ArenaConfig struct {
	MinPlayers        int           `toml:"min_players"`
	StatBudget        int           `toml:"stat_budget"`
	MaxSpeed          int           `toml:"max_speed"`
	Seed              int64         `toml:"seed"` // 0 = derive from boot time
	PollInterval      time.Duration `toml:"poll_interval"`
	StartPollInterval time.Duration `toml:"start_poll_interval"`
	AutoStart         bool          `toml:"auto_start"`
}

type RelocationConfig struct {
	Enabled       bool          `toml:"enabled"`
	ClusterSecret string        `toml:"cluster_secret"`
	LeaseTTL      time.Duration `toml:"lease_ttl"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.Arena.Seed == 0 {
		cfg.Arena.Seed = time.Now().UnixNano()
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name must be set")
	}
	if c.Arena.MinPlayers < 1 {
		return fmt.Errorf("arena.min_players must be at least 1, got %d", c.Arena.MinPlayers)
	}
	if c.Arena.StatBudget < 1 || c.Arena.MaxSpeed < 0 {
		return fmt.Errorf("arena stat limits invalid: budget %d, max speed %d", c.Arena.StatBudget, c.Arena.MaxSpeed)
	}
	if c.Arena.PollInterval <= 0 || c.Arena.StartPollInterval <= 0 {
		return errors.New("arena poll intervals must be positive")
	}
	if c.Relocation.Enabled {
		if c.Relocation.ClusterSecret == "" {
			return errors.New("relocation.cluster_secret required when relocation is enabled")
		}
		if c.Relocation.LeaseTTL <= 0 {
			return errors.New("relocation.lease_ttl must be positive")
		}
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "arena",
			ID:   1,
		},
		Network: NetworkConfig{
			BindAddress:  "0.0.0.0:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Arena: ArenaConfig{
			MinPlayers:        2,
			StatBudget:        20,
			MaxSpeed:          10,
			PollInterval:      200 * time.Millisecond,
			StartPollInterval: time.Second,
			AutoStart:         true,
		},
		Relocation: RelocationConfig{
			LeaseTTL: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
