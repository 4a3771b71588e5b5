package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the root configuration for the signal service
type Config struct {
	BinanceConfig BinanceConfig `json:"binance"`
	EngineConfig  EngineConfig  `json:"engine"`
	RiskConfig    RiskConfig    `json:"risk"`
	ServerConfig  ServerConfig  `json:"server"`
	AuthConfig    AuthConfig    `json:"auth"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig   RedisConfig   `json:"redis"`
	VaultConfig   VaultConfig   `json:"vault"`
	LoggingConfig LoggingConfig `json:"logging"`
}

// BinanceConfig holds candle supplier settings
type BinanceConfig struct {
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	StreamURL    string `json:"stream_url"`
	StreamEnabled bool  `json:"stream_enabled"` // live kline stream vs. poll-only
}

// EngineConfig holds signal engine settings
type EngineConfig struct {
	Symbols        []string `json:"symbols"`
	ExecutionTF    string   `json:"execution_tf"`
	TrendTF        string   `json:"trend_tf"`
	TrailingTF     string   `json:"trailing_tf"`
	StartupCandles int      `json:"startup_candles"`
	RefreshSeconds int      `json:"refresh_seconds"` // poll interval when stream disabled
}

// RiskConfig holds risk controller settings
type RiskConfig struct {
	StopLossDefault float64 `json:"stop_loss_default"`
	StopLossTight   float64 `json:"stop_loss_tight"`
	StopLossWide    float64 `json:"stop_loss_wide"`
	MaxLeverage     float64 `json:"max_leverage"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port           int    `json:"port"`
	Host           string `json:"host"`
	AllowedOrigins string `json:"allowed_origins"`
	ProductionMode bool   `json:"production_mode"`
}

// AuthConfig holds API token settings
type AuthConfig struct {
	Enabled      bool   `json:"enabled"`
	JWTSecret    string `json:"jwt_secret"`
	TokenMinutes int    `json:"token_minutes"`
}

// DatabaseConfig holds PostgreSQL settings for the candle history store
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds candle cache settings
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds settings for Vault-backed exchange credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"`
	JSONFormat bool   `json:"json_format"`
}

// Load reads config.json if present, then applies environment overrides.
// Environment variables always take precedence over the file.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Binance supplier
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	if cfg.BinanceConfig.BaseURL == "" {
		cfg.BinanceConfig.BaseURL = "https://api.binance.com"
	}
	cfg.BinanceConfig.StreamURL = getEnvOrDefault("BINANCE_STREAM_URL", cfg.BinanceConfig.StreamURL)
	if cfg.BinanceConfig.StreamURL == "" {
		cfg.BinanceConfig.StreamURL = "wss://stream.binance.com:9443"
	}
	cfg.BinanceConfig.StreamEnabled = getEnvBoolOrDefault("BINANCE_STREAM_ENABLED", cfg.BinanceConfig.StreamEnabled)

	// Engine
	if symbols := os.Getenv("ENGINE_SYMBOLS"); symbols != "" {
		cfg.EngineConfig.Symbols = splitAndTrim(symbols)
	}
	cfg.EngineConfig.ExecutionTF = getEnvOrDefault("ENGINE_EXECUTION_TF", defaultString(cfg.EngineConfig.ExecutionTF, "1h"))
	cfg.EngineConfig.TrendTF = getEnvOrDefault("ENGINE_TREND_TF", defaultString(cfg.EngineConfig.TrendTF, "4h"))
	cfg.EngineConfig.TrailingTF = getEnvOrDefault("ENGINE_TRAILING_TF", defaultString(cfg.EngineConfig.TrailingTF, "3m"))
	cfg.EngineConfig.StartupCandles = getEnvIntOrDefault("ENGINE_STARTUP_CANDLES", defaultInt(cfg.EngineConfig.StartupCandles, 200))
	cfg.EngineConfig.RefreshSeconds = getEnvIntOrDefault("ENGINE_REFRESH_SECONDS", defaultInt(cfg.EngineConfig.RefreshSeconds, 60))

	// Risk
	cfg.RiskConfig.StopLossDefault = getEnvFloatOrDefault("RISK_STOP_LOSS_DEFAULT", defaultFloat(cfg.RiskConfig.StopLossDefault, -0.02))
	cfg.RiskConfig.StopLossTight = getEnvFloatOrDefault("RISK_STOP_LOSS_TIGHT", defaultFloat(cfg.RiskConfig.StopLossTight, -0.015))
	cfg.RiskConfig.StopLossWide = getEnvFloatOrDefault("RISK_STOP_LOSS_WIDE", defaultFloat(cfg.RiskConfig.StopLossWide, -0.035))
	cfg.RiskConfig.MaxLeverage = getEnvFloatOrDefault("RISK_MAX_LEVERAGE", defaultFloat(cfg.RiskConfig.MaxLeverage, 3.0))

	// Server
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", defaultString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION_MODE", cfg.ServerConfig.ProductionMode)

	// Auth
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.TokenMinutes = getEnvIntOrDefault("AUTH_TOKEN_MINUTES", defaultInt(cfg.AuthConfig.TokenMinutes, 60))

	// Database
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultString(cfg.DatabaseConfig.Database, "signals"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultString(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Vault
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultString(cfg.VaultConfig.SecretPath, "secret/data/exchange/binance"))

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	if len(cfg.EngineConfig.Symbols) == 0 {
		cfg.EngineConfig.Symbols = []string{"BTCUSDT"}
	}
}

func (c *Config) validate() error {
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when auth is enabled")
	}
	if c.RiskConfig.MaxLeverage < 1.0 {
		return fmt.Errorf("max leverage must be at least 1.0, got %.2f", c.RiskConfig.MaxLeverage)
	}
	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloatOrDefault(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBoolOrDefault(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return fallback
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func defaultFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}
