package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	AvailabilityCacheTTL time.Duration `mapstructure:"AVAILABILITY_CACHE_TTL"`
	ClinicTimezone       string        `mapstructure:"CLINIC_TIMEZONE"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience         string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey       string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AVAILABILITY_CACHE_TTL", "60s")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("AVAILABILITY_CACHE_TTL")
	v.BindEnv("CLINIC_TIMEZONE")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("REQUEST_TIMEOUT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location resolves CLINIC_TIMEZONE. Working hours and calendar days for
// appointment availability are evaluated in this location.
func (c *Config) Location() (*time.Location, error) {
	if c.ClinicTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// SigningKey decodes AUTH_SIGNING_KEY. It returns nil when no key is set.
func (c *Config) SigningKey() ([]byte, error) {
	if c.AuthSigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.AuthSigningKey)
	if err != nil {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY is not valid hex: %w", err)
	}
	return key, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a token signing key is required so bearer tokens can be verified.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}

	key, err := c.SigningKey()
	if err != nil {
		return err
	}
	if !c.IsDev() && len(key) == 0 {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if len(key) > 0 && len(key) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes (64 hex chars), got %d bytes", len(key))
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.AvailabilityCacheTTL < 0 {
		return fmt.Errorf("AVAILABILITY_CACHE_TTL must not be negative")
	}

	return nil
}
