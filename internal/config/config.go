package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

type Config struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTExpiry   time.Duration
}

func Load() *Config {
	config := &Config{
		JWTSecret:   getEnv("JWT_SECRET", defaultJWTSecret),
		JWTIssuer:   getEnv("JWT_ISS", "equiptrack-api"),
		JWTAudience: getEnv("JWT_AUD", "equiptrack-api"),
		JWTExpiry:   24 * time.Hour, // Default to 24 hours
	}

	// Parse JWT expiry from environment if provided
	if expiryStr := os.Getenv("JWT_EXPIRY"); expiryStr != "" {
		if expiry, err := time.ParseDuration(expiryStr); err == nil {
			config.JWTExpiry = expiry
		}
	}

	return config
}

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if os.Getenv("ENVIRONMENT") == "production" && c.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be changed from the default in production")
	}
	if c.JWTIssuer == "" {
		return errors.New("JWT_ISS is required")
	}
	if c.JWTAudience == "" {
		return errors.New("JWT_AUD is required")
	}
	if c.JWTExpiry < time.Minute {
		return fmt.Errorf("JWT_EXPIRY too short: %v", c.JWTExpiry)
	}
	if c.JWTExpiry > 30*24*time.Hour {
		return fmt.Errorf("JWT_EXPIRY too long: %v", c.JWTExpiry)
	}
	return nil
}

// LoadAndValidate loads the configuration and validates it in one step.
func LoadAndValidate() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
