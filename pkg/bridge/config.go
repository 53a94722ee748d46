// Copyright 2025-2026 Mvemba Research Systems

package bridge

import (
	"fmt"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config holds the bridge configuration, environment-style. Every field is
// optional: a missing API key keeps the protected endpoints locked, a missing
// webhook URL disables the relay and a missing phone number disables
// pairing-code issuance.
type Config struct {
	Port            int    `env:"PORT,default=7860"`
	APIKey          string `env:"BRIDGE_API_KEY"`
	WebhookURL      string `env:"N8N_WEBHOOK_INBOUND"`
	HMACSecret      string `env:"N8N_HMAC_SECRET"`
	AllowedToPrefix string `env:"ALLOWED_TO_PREFIX"`
	PersistDir      string `env:"HF_PERSIST_DIR,default=/data"`
	PhoneNumber     string `env:"WA_PHONE_NUMBER"`
	LogLevel        string `env:"LOG_LEVEL,default=info"`
}

// LoadConfig reads the configuration from the environment, loading a local
// .env file first when one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return &cfg, nil
}
