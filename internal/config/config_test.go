package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[ledger]
escrow_address = "osmo1escrow"
escrow_mnemonic = "escrow seed words"
`

func TestLoad_MergesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Ledger.EscrowAddress != "osmo1escrow" {
		t.Errorf("escrow address = %q", cfg.Ledger.EscrowAddress)
	}
	// Unset sections keep their defaults.
	if cfg.Ledger.FeePercent != 5 {
		t.Errorf("fee percent = %v, want default 5", cfg.Ledger.FeePercent)
	}
	if cfg.Storage.Capacity != 100 {
		t.Errorf("capacity = %d, want default 100", cfg.Storage.Capacity)
	}
	if cfg.Ledger.MaxLockDuration.Duration != 30*24*time.Hour {
		t.Errorf("max lock = %v, want 720h", cfg.Ledger.MaxLockDuration.Duration)
	}
	if got := cfg.Transfer.Denoms["osmo"]; got != "uosmo" {
		t.Errorf("denom osmo = %q", got)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("minimal config should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WAGERD_LEDGER_FEE_PERCENT", "2.5")
	t.Setenv("WAGERD_SERVER_PORT", "9999")
	t.Setenv("WAGERD_LEDGER_SUPPORTED_TOKENS", "osmo, atom")
	t.Setenv("WAGERD_REDIS_ENABLED", "true")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Ledger.FeePercent != 2.5 {
		t.Errorf("fee percent = %v, want 2.5", cfg.Ledger.FeePercent)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if len(cfg.Ledger.SupportedTokens) != 2 || cfg.Ledger.SupportedTokens[1] != "atom" {
		t.Errorf("tokens = %v", cfg.Ledger.SupportedTokens)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis not enabled by env override")
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Ledger.FeePercent = 120
	cfg.Storage.Capacity = 0
	cfg.Server.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid config passed validation")
	}
	for _, want := range []string{"escrow_address", "fee_percent", "capacity", "port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %q: %v", want, err)
		}
	}
}

func TestValidate_TelegramHalves(t *testing.T) {
	cfg := Defaults()
	cfg.Ledger.EscrowAddress = "osmo1escrow"
	cfg.Ledger.EscrowMnemonic = "seed"
	cfg.Notify.TelegramToken = "bot-token"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "telegram") {
		t.Fatalf("half-configured telegram accepted: %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Ledger.EscrowMnemonic = "top secret seed"
	cfg.Server.APIKey = "api-key"
	cfg.Redis.Password = "hunter2"

	red := RedactedConfig(&cfg)
	if red.Ledger.EscrowMnemonic != "***" || red.Server.APIKey != "***" || red.Redis.Password != "***" {
		t.Errorf("secrets not redacted: %+v", red)
	}
	if cfg.Ledger.EscrowMnemonic != "top secret seed" {
		t.Error("original config mutated")
	}

	red.Ledger.SupportedTokens[0] = "tampered"
	if cfg.Ledger.SupportedTokens[0] == "tampered" {
		t.Error("redacted copy aliases the original slices")
	}
}

func TestFeePercentDecimal(t *testing.T) {
	cfg := Defaults()
	cfg.Ledger.FeePercent = 2.5

	if got := cfg.FeePercentDecimal().String(); got != "2.5" {
		t.Errorf("fee decimal = %s", got)
	}
	if got := cfg.MinWagerDecimal().String(); got != "0.1" {
		t.Errorf("min wager decimal = %s", got)
	}
}
