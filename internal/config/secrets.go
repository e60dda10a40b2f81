package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging the active configuration
// so the escrow mnemonic and API keys are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	redact(&out.Ledger.EscrowMnemonic)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Notify.TelegramToken)

	// Copy slices and maps so callers cannot mutate the original through
	// the redacted copy.
	if cfg.Ledger.SupportedTokens != nil {
		out.Ledger.SupportedTokens = append([]string(nil), cfg.Ledger.SupportedTokens...)
	}
	if cfg.Ledger.Admins != nil {
		out.Ledger.Admins = append([]string(nil), cfg.Ledger.Admins...)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Transfer.Denoms != nil {
		out.Transfer.Denoms = make(map[string]string, len(cfg.Transfer.Denoms))
		for k, v := range cfg.Transfer.Denoms {
			out.Transfer.Denoms[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
