package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	out.GoMarket = cfg.GoMarket
	redact(&out.GoMarket.ApiKey)
	redact(&out.GoMarket.AccessCode)

	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)

	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)

	return out
}

func redact(s *string) {
	if *s != "" {
		*s = "***"
	}
}
