// Package config loads the engine's HCL configuration file and applies
// .env and environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"

	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/table"
)

// Environment variables that override the file.
const (
	EnvDataDir   = "HANDENGINE_DATA_DIR"
	EnvLogLevel  = "HANDENGINE_LOG_LEVEL"
	EnvRedisAddr = "HANDENGINE_REDIS_ADDR"
	EnvWalletDSN = "HANDENGINE_WALLET_DSN"
)

// Config represents the complete engine configuration
type Config struct {
	Server *ServerSettings `hcl:"server,block"`
	Tables []TableConfig   `hcl:"table,block"`
	Wallet *WalletSettings `hcl:"wallet,block"`
	Redis  *RedisSettings  `hcl:"redis,block"`
}

// ServerSettings contains process-level configuration
type ServerSettings struct {
	DataDir       string `hcl:"data_dir,optional"`
	LogLevel      string `hcl:"log_level,optional"`
	FlushInterval string `hcl:"flush_interval,optional"`
	FlushRetries  int    `hcl:"flush_retries,optional"`
	RetryDelay    string `hcl:"retry_delay,optional"`
	Currency      string `hcl:"currency,optional"`
}

// TableConfig overrides the defaults for one table. Seats are the default
// seating used when a hand is started without one.
type TableConfig struct {
	ID       string      `hcl:"id,label"`
	BigBlind int64       `hcl:"big_blind,optional"`
	MaxBet   int64       `hcl:"max_bet,optional"`
	Currency string      `hcl:"currency,optional"`
	Seats    []hand.Seat `hcl:"seat,block"`
}

// WalletSettings configures the ledger database.
type WalletSettings struct {
	DSN  string `hcl:"dsn,optional"`
	Rake int64  `hcl:"rake,optional"`
}

// RedisSettings configures the spectator frame relay. An empty address
// disables it.
type RedisSettings struct {
	Addr     string `hcl:"addr,optional"`
	Password string `hcl:"password,optional"`
	DB       int    `hcl:"db,optional"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads filename, loads .env if present, and applies defaults and
// environment overrides. A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	config := &Config{}
	if _, err := os.Stat(filename); err == nil {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(filename)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
		}
		diags = gohcl.DecodeBody(file.Body, nil, config)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	config.applyDefaults()
	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = "hands"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.FlushInterval == "" {
		c.Server.FlushInterval = "10s"
	}
	if c.Server.FlushRetries == 0 {
		c.Server.FlushRetries = 3
	}
	if c.Server.RetryDelay == "" {
		c.Server.RetryDelay = "50ms"
	}
	if c.Server.Currency == "" {
		c.Server.Currency = "chips"
	}
	if c.Wallet == nil {
		c.Wallet = &WalletSettings{}
	}
	if c.Wallet.DSN == "" {
		c.Wallet.DSN = "wallet.db"
	}
	if c.Redis == nil {
		c.Redis = &RedisSettings{}
	}
	for i := range c.Tables {
		if c.Tables[i].Currency == "" {
			c.Tables[i].Currency = c.Server.Currency
		}
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.Server.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(EnvWalletDSN); v != "" {
		c.Wallet.DSN = v
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := c.Server.flushInterval(); err != nil {
		return err
	}
	if _, err := c.Server.retryDelay(); err != nil {
		return err
	}
	if c.Server.FlushRetries < 0 {
		return fmt.Errorf("flush_retries must not be negative: %d", c.Server.FlushRetries)
	}
	if c.Wallet.Rake < 0 {
		return fmt.Errorf("wallet rake must not be negative: %d", c.Wallet.Rake)
	}

	seen := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if seen[t.ID] {
			return fmt.Errorf("table %s: defined twice", t.ID)
		}
		seen[t.ID] = true
		if t.BigBlind < 0 || t.MaxBet < 0 {
			return fmt.Errorf("table %s: limits must not be negative", t.ID)
		}
		if len(t.Seats) > 0 {
			cfg := hand.Config{Seats: t.Seats, BigBlind: t.BigBlind, MaxBet: t.MaxBet}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("table %s: %w", t.ID, err)
			}
		}
	}
	return nil
}

func (s *ServerSettings) flushInterval() (time.Duration, error) {
	d, err := time.ParseDuration(s.FlushInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid flush_interval %q", s.FlushInterval)
	}
	return d, nil
}

func (s *ServerSettings) retryDelay() (time.Duration, error) {
	d, err := time.ParseDuration(s.RetryDelay)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid retry_delay %q", s.RetryDelay)
	}
	return d, nil
}

// FlushIntervalDuration returns how often open hand logs are flushed.
func (s *ServerSettings) FlushIntervalDuration() time.Duration {
	d, _ := s.flushInterval()
	return d
}

// RetryDelayDuration returns the pause between flush retries.
func (s *ServerSettings) RetryDelayDuration() time.Duration {
	d, _ := s.retryDelay()
	return d
}

// GetTable returns a table configuration by id
func (c *Config) GetTable(id string) *TableConfig {
	for i := range c.Tables {
		if c.Tables[i].ID == id {
			return &c.Tables[i]
		}
	}
	return nil
}

// TableConfigs returns the actor defaults and the per-table overrides.
func (c *Config) TableConfigs() (table.Config, map[string]table.Config) {
	defaults := table.Config{
		Currency:     c.Server.Currency,
		Rake:         c.Wallet.Rake,
		FlushRetries: c.Server.FlushRetries,
		RetryDelay:   c.Server.RetryDelayDuration(),
	}
	tables := make(map[string]table.Config, len(c.Tables))
	for _, t := range c.Tables {
		cfg := defaults
		cfg.BigBlind = t.BigBlind
		cfg.MaxBet = t.MaxBet
		cfg.Currency = t.Currency
		tables[t.ID] = cfg
	}
	return defaults, tables
}
