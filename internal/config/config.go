package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	SQLitePath            string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StoreID               string
	AuthSecret            string
	AccessTokenTTLMinutes int
	LedgerTimeoutSeconds  int
	IdempotencyTTLSeconds int
	LogLevel              string
	LogFormat             string
	CurrencyLocale        string
}

// fileConfig mirrors the environment keys for the optional CONFIG_FILE.
// Environment variables win over values from the file.
type fileConfig struct {
	Port                  string `yaml:"port"`
	AllowedOrigin         string `yaml:"allowed_origin"`
	DatabaseURL           string `yaml:"database_url"`
	SQLitePath            string `yaml:"sqlite_path"`
	RedisAddr             string `yaml:"redis_addr"`
	RedisPassword         string `yaml:"redis_password"`
	RedisDB               string `yaml:"redis_db"`
	DefaultStoreID        string `yaml:"default_store_id"`
	AuthSecret            string `yaml:"auth_secret"`
	AccessTokenTTLMinutes string `yaml:"access_token_ttl_minutes"`
	LedgerTimeoutSeconds  string `yaml:"ledger_timeout_seconds"`
	IdempotencyTTLSeconds string `yaml:"idempotency_ttl_seconds"`
	LogLevel              string `yaml:"log_level"`
	LogFormat             string `yaml:"log_format"`
	CurrencyLocale        string `yaml:"currency_locale"`
}

func (f fileConfig) values() map[string]string {
	return map[string]string{
		"PORT":                     f.Port,
		"ALLOWED_ORIGIN":           f.AllowedOrigin,
		"DATABASE_URL":             f.DatabaseURL,
		"SQLITE_PATH":              f.SQLitePath,
		"REDIS_ADDR":               f.RedisAddr,
		"REDIS_PASSWORD":           f.RedisPassword,
		"REDIS_DB":                 f.RedisDB,
		"DEFAULT_STORE_ID":         f.DefaultStoreID,
		"AUTH_SECRET":              f.AuthSecret,
		"ACCESS_TOKEN_TTL_MINUTES": f.AccessTokenTTLMinutes,
		"LEDGER_TIMEOUT_SECONDS":   f.LedgerTimeoutSeconds,
		"IDEMPOTENCY_TTL_SECONDS":  f.IdempotencyTTLSeconds,
		"LOG_LEVEL":                f.LogLevel,
		"LOG_FORMAT":               f.LogFormat,
		"CURRENCY_LOCALE":          f.CurrencyLocale,
	}
}

// Load reads configuration from the environment, layered over CONFIG_FILE
// when it is set.
func Load() (Config, error) {
	file := map[string]string{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		parsed, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		file = parsed.values()
	}
	get := func(key string, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		if val := file[key]; val != "" {
			return val
		}
		return fallback
	}

	redisDB, _ := strconv.Atoi(get("REDIS_DB", "0"))

	cfg := Config{
		Port:                  get("PORT", "8080"),
		AllowedOrigin:         get("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           get("DATABASE_URL", ""),
		SQLitePath:            get("SQLITE_PATH", ""),
		RedisAddr:             get("REDIS_ADDR", ""),
		RedisPassword:         get("REDIS_PASSWORD", ""),
		RedisDB:               redisDB,
		StoreID:               get("DEFAULT_STORE_ID", "main-store"),
		AuthSecret:            strings.TrimSpace(get("AUTH_SECRET", "")),
		AccessTokenTTLMinutes: positiveInt(get("ACCESS_TOKEN_TTL_MINUTES", ""), 480),
		LedgerTimeoutSeconds:  positiveInt(get("LEDGER_TIMEOUT_SECONDS", ""), 15),
		IdempotencyTTLSeconds: positiveInt(get("IDEMPOTENCY_TTL_SECONDS", ""), 86400),
		LogLevel:              strings.ToLower(get("LOG_LEVEL", "info")),
		LogFormat:             strings.ToLower(get("LOG_FORMAT", "json")),
		CurrencyLocale:        get("CURRENCY_LOCALE", "id"),
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) LedgerTimeout() time.Duration {
	return time.Duration(c.LedgerTimeoutSeconds) * time.Second
}

func (c Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLSeconds) * time.Second
}

func readFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file: %w", err)
	}

	var parsed fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&parsed); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file: %w", err)
	}
	return parsed, nil
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
