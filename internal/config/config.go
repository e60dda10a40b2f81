// Package config defines the top-level configuration for the betting ledger
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by WAGERD_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Storage  StorageConfig  `toml:"storage"`
	Transfer TransferConfig `toml:"transfer"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig holds escrow credentials and betting policy.
type LedgerConfig struct {
	EscrowAddress  string `toml:"escrow_address"`
	EscrowMnemonic string `toml:"escrow_mnemonic"`

	// FeePercent of the total pool kept by the house on settlement.
	FeePercent float64 `toml:"fee_percent"`
	// MinWager is the smallest fixed wager a market may be created with.
	MinWager float64 `toml:"min_wager"`

	SupportedTokens []string `toml:"supported_tokens"`
	Admins          []string `toml:"admins"`

	// MaxLockDuration caps relative lock times on new markets,
	// e.g. "720h" for 30 days.
	MaxLockDuration duration `toml:"max_lock_duration"`
}

// StorageConfig holds the on-disk ledger and wallet directory locations.
type StorageConfig struct {
	DataPath    string `toml:"data_path"`
	WalletsPath string `toml:"wallets_path"`
	// Capacity is the number of market slots retained before old markets
	// are evicted.
	Capacity int `toml:"capacity"`
}

// TransferConfig holds the funds transfer daemon connection parameters.
type TransferConfig struct {
	BaseURL string `toml:"base_url"`
	// Denoms maps display tokens to on-chain denominations,
	// e.g. osmo -> uosmo. Unmapped tokens fall back to a "u" prefix.
	Denoms map[string]string `toml:"denoms"`
}

// RedisConfig holds Redis connection parameters for the distributed market
// lock and the creation rate limiter. Disabled deployments run with
// in-process locking only.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

// S3Config holds S3-compatible object storage parameters for archiving
// markets evicted from the slot buffer.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the HTTP API parameters.
type ServerConfig struct {
	Port   int    `toml:"port"`
	APIKey string `toml:"api_key"`
}

// NotifyConfig holds announcement channel credentials.
type NotifyConfig struct {
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML values like "720h" parse directly.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			FeePercent:      5,
			MinWager:        0.1,
			SupportedTokens: []string{"osmo", "lab"},
			MaxLockDuration: duration{30 * 24 * time.Hour},
		},
		Storage: StorageConfig{
			DataPath:    "data/markets.json",
			WalletsPath: "data/wallets.json",
			Capacity:    100,
		},
		Transfer: TransferConfig{
			BaseURL: "http://localhost:8585",
			Denoms: map[string]string{
				"osmo": "uosmo",
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "market_settled", "market_cancelled"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	if c.Ledger.EscrowAddress == "" {
		errs = append(errs, "ledger: escrow_address must not be empty")
	}
	if c.Ledger.EscrowMnemonic == "" {
		errs = append(errs, "ledger: escrow_mnemonic must not be empty")
	}
	if c.Ledger.FeePercent < 0 || c.Ledger.FeePercent >= 100 {
		errs = append(errs, fmt.Sprintf("ledger: fee_percent must be in [0, 100), got %v", c.Ledger.FeePercent))
	}
	if c.Ledger.MinWager <= 0 {
		errs = append(errs, "ledger: min_wager must be > 0")
	}
	if len(c.Ledger.SupportedTokens) == 0 {
		errs = append(errs, "ledger: supported_tokens must list at least one token")
	}
	if c.Ledger.MaxLockDuration.Duration <= 0 {
		errs = append(errs, "ledger: max_lock_duration must be > 0")
	}

	// Storage
	if c.Storage.DataPath == "" {
		errs = append(errs, "storage: data_path must not be empty")
	}
	if c.Storage.WalletsPath == "" {
		errs = append(errs, "storage: wallets_path must not be empty")
	}
	if c.Storage.Capacity < 1 {
		errs = append(errs, "storage: capacity must be >= 1")
	}

	// Transfer
	if c.Transfer.BaseURL == "" {
		errs = append(errs, "transfer: base_url must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" && c.S3.Endpoint == "" {
			errs = append(errs, "s3: region or endpoint must be set when enabled")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Telegram needs both halves.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// FeePercentDecimal returns the settlement fee as an exact decimal.
func (c *Config) FeePercentDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.Ledger.FeePercent)
}

// MinWagerDecimal returns the minimum wager as an exact decimal.
func (c *Config) MinWagerDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.Ledger.MinWager)
}
