package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WAGERD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WAGERD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.EscrowAddress, "WAGERD_LEDGER_ESCROW_ADDRESS")
	setStr(&cfg.Ledger.EscrowMnemonic, "WAGERD_LEDGER_ESCROW_MNEMONIC")
	setFloat64(&cfg.Ledger.FeePercent, "WAGERD_LEDGER_FEE_PERCENT")
	setFloat64(&cfg.Ledger.MinWager, "WAGERD_LEDGER_MIN_WAGER")
	setStringSlice(&cfg.Ledger.SupportedTokens, "WAGERD_LEDGER_SUPPORTED_TOKENS")
	setStringSlice(&cfg.Ledger.Admins, "WAGERD_LEDGER_ADMINS")
	setDuration(&cfg.Ledger.MaxLockDuration, "WAGERD_LEDGER_MAX_LOCK_DURATION")

	// ── Storage ──
	setStr(&cfg.Storage.DataPath, "WAGERD_STORAGE_DATA_PATH")
	setStr(&cfg.Storage.WalletsPath, "WAGERD_STORAGE_WALLETS_PATH")
	setInt(&cfg.Storage.Capacity, "WAGERD_STORAGE_CAPACITY")

	// ── Transfer ──
	setStr(&cfg.Transfer.BaseURL, "WAGERD_TRANSFER_BASE_URL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "WAGERD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "WAGERD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WAGERD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WAGERD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WAGERD_REDIS_POOL_SIZE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "WAGERD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "WAGERD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WAGERD_S3_REGION")
	setStr(&cfg.S3.Bucket, "WAGERD_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "WAGERD_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "WAGERD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WAGERD_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "WAGERD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "WAGERD_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "WAGERD_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "WAGERD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramToken, "WAGERD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WAGERD_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "WAGERD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "WAGERD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
