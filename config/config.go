package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"candle-signals/internal/binance"
	"candle-signals/internal/candle"
	"candle-signals/internal/stats"
)

type Config struct {
	BinanceConfig  BinanceConfig  `json:"binance" yaml:"binance"`
	AnalysisConfig AnalysisConfig `json:"analysis" yaml:"analysis"`
	SignalsConfig  SignalsConfig  `json:"signals" yaml:"signals"`
	LoggingConfig  LoggingConfig  `json:"logging" yaml:"logging"`
	ServerConfig   ServerConfig   `json:"server" yaml:"server"`
	AuthConfig     AuthConfig     `json:"auth" yaml:"auth"`
	VaultConfig    VaultConfig    `json:"vault" yaml:"vault"`
	RedisConfig    RedisConfig    `json:"redis" yaml:"redis"`
	DatabaseConfig DatabaseConfig `json:"database" yaml:"database"`
	TracingConfig  TracingConfig  `json:"tracing" yaml:"tracing"`
}

type BinanceConfig struct {
	APIKey          string `json:"api_key" yaml:"api_key"`
	BaseURL         string `json:"base_url" yaml:"base_url"`
	MockMode        bool   `json:"mock_mode" yaml:"mock_mode"`             // Use simulated data when Binance API is unavailable
	RequestTimeout  int    `json:"request_timeout" yaml:"request_timeout"` // Seconds
	WeightPerMinute int    `json:"weight_per_minute" yaml:"weight_per_minute"`
}

// AnalysisConfig holds the candle analytics defaults
type AnalysisConfig struct {
	WindowSize      int    `json:"window_size" yaml:"window_size"`
	DefaultInterval string `json:"default_interval" yaml:"default_interval"`
	DefaultSymbol   string `json:"default_symbol" yaml:"default_symbol"`
	KlineLimit      int    `json:"kline_limit" yaml:"kline_limit"`
}

// SignalsConfig holds the multi-symbol scanner configuration
type SignalsConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	RefreshInterval int      `json:"refresh_interval" yaml:"refresh_interval"` // Seconds
	WorkerCount     int      `json:"worker_count" yaml:"worker_count"`
	Symbols         []string `json:"symbols" yaml:"symbols"` // Empty means the built-in list
	ImpactFilter    []string `json:"impact_filter" yaml:"impact_filter"`
	KeepSnapshots   int      `json:"keep_snapshots" yaml:"keep_snapshots"` // Stored history per interval, 0 keeps all
}

type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`               // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output" yaml:"output"`             // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format" yaml:"json_format"`   // Output as JSON
	IncludeFile bool   `json:"include_file" yaml:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int    `json:"port" yaml:"port"`
	Host               string `json:"host" yaml:"host"`
	AllowedOrigins     string `json:"allowed_origins" yaml:"allowed_origins"` // CORS allowed origins, comma separated
	ProductionMode     bool   `json:"production_mode" yaml:"production_mode"`
	ReadTimeout        int    `json:"read_timeout" yaml:"read_timeout"`         // Seconds
	WriteTimeout       int    `json:"write_timeout" yaml:"write_timeout"`       // Seconds
	ShutdownTimeout    int    `json:"shutdown_timeout" yaml:"shutdown_timeout"` // Seconds
	RateLimitPerMinute int    `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled             bool          `json:"enabled" yaml:"enabled"`
	JWTSecret           string        `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser           string        `json:"admin_user" yaml:"admin_user"`
	AdminPasswordHash   string        `json:"admin_password_hash" yaml:"admin_password_hash"` // bcrypt
	AccessTokenDuration time.Duration `json:"access_token_duration" yaml:"access_token_duration"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address"`
	Token      string `json:"token" yaml:"token"`
	MountPath  string `json:"mount_path" yaml:"mount_path"`   // KV secrets engine mount path
	SecretPath string `json:"secret_path" yaml:"secret_path"` // Path of the service secrets
}

// RedisConfig holds Redis configuration for kline and signal caching
type RedisConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Address   string        `json:"address" yaml:"address"`
	Password  string        `json:"password" yaml:"password"`
	DB        int           `json:"db" yaml:"db"`
	PoolSize  int           `json:"pool_size" yaml:"pool_size"`
	KlineTTL  time.Duration `json:"kline_ttl" yaml:"kline_ttl"`
	SignalTTL time.Duration `json:"signal_ttl" yaml:"signal_ttl"`
}

// DatabaseConfig holds PostgreSQL configuration for signal history
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Name     string `json:"name" yaml:"name"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"service_name" yaml:"service_name"`
}

// ConfigFiles are tried in order by Load
var ConfigFiles = []string{"config.json", "config.yaml", "config.yml"}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg := &Config{}
	for _, name := range ConfigFiles {
		fileCfg, err := loadFromFile(name)
		if err == nil {
			cfg = fileCfg
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFile reads one config file and applies environment overrides
func LoadFile(filename string) (*Config, error) {
	cfg, err := loadFromFile(filename)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// File values are kept when the variable is unset; built-in defaults fill
// whatever is still empty.
func applyEnvOverrides(cfg *Config) {
	// Binance config
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", orString(cfg.BinanceConfig.BaseURL, "https://api.binance.com"))
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.BinanceConfig.MockMode)
	cfg.BinanceConfig.RequestTimeout = getEnvIntOrDefault("BINANCE_REQUEST_TIMEOUT", orInt(cfg.BinanceConfig.RequestTimeout, 10))
	cfg.BinanceConfig.WeightPerMinute = getEnvIntOrDefault("BINANCE_WEIGHT_PER_MINUTE", orInt(cfg.BinanceConfig.WeightPerMinute, binance.DefaultWeightPerMinute))

	// Analysis config
	cfg.AnalysisConfig.WindowSize = getEnvIntOrDefault("ANALYSIS_WINDOW_SIZE", orInt(cfg.AnalysisConfig.WindowSize, stats.DefaultWindow))
	cfg.AnalysisConfig.DefaultInterval = getEnvOrDefault("ANALYSIS_DEFAULT_INTERVAL", orString(cfg.AnalysisConfig.DefaultInterval, "8h"))
	cfg.AnalysisConfig.DefaultSymbol = getEnvOrDefault("ANALYSIS_DEFAULT_SYMBOL", orString(cfg.AnalysisConfig.DefaultSymbol, "BTCUSDT"))
	cfg.AnalysisConfig.KlineLimit = getEnvIntOrDefault("ANALYSIS_KLINE_LIMIT", orInt(cfg.AnalysisConfig.KlineLimit, binance.DefaultLimit))

	// Signals config
	cfg.SignalsConfig.Enabled = getEnvBoolOrDefault("SIGNALS_ENABLED", cfg.SignalsConfig.Enabled)
	cfg.SignalsConfig.RefreshInterval = getEnvIntOrDefault("SIGNALS_REFRESH_INTERVAL", orInt(cfg.SignalsConfig.RefreshInterval, 300))
	cfg.SignalsConfig.WorkerCount = getEnvIntOrDefault("SIGNALS_WORKER_COUNT", orInt(cfg.SignalsConfig.WorkerCount, 10))
	cfg.SignalsConfig.Symbols = getEnvListOrDefault("SIGNALS_SYMBOLS", cfg.SignalsConfig.Symbols)
	cfg.SignalsConfig.ImpactFilter = getEnvListOrDefault("SIGNALS_IMPACT_FILTER", cfg.SignalsConfig.ImpactFilter)
	cfg.SignalsConfig.KeepSnapshots = getEnvIntOrDefault("SIGNALS_KEEP_SNAPSHOTS", orInt(cfg.SignalsConfig.KeepSnapshots, 500))
	if len(cfg.SignalsConfig.ImpactFilter) == 0 {
		cfg.SignalsConfig.ImpactFilter = []string{string(candle.ImpactCritical)}
	}

	// Logging config. JSON output unless a logging section turned it off.
	jsonDefault := cfg.LoggingConfig.JSONFormat || cfg.LoggingConfig.Level == ""
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", orString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", jsonDefault)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", orInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", orString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION_MODE", cfg.ServerConfig.ProductionMode)
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", orInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", orInt(cfg.ServerConfig.WriteTimeout, 60))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", orInt(cfg.ServerConfig.ShutdownTimeout, 30))
	cfg.ServerConfig.RateLimitPerMinute = getEnvIntOrDefault("SERVER_RATE_LIMIT_PER_MINUTE", orInt(cfg.ServerConfig.RateLimitPerMinute, 60))

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AdminUser = getEnvOrDefault("AUTH_ADMIN_USER", orString(cfg.AuthConfig.AdminUser, "admin"))
	cfg.AuthConfig.AdminPasswordHash = getEnvOrDefault("AUTH_ADMIN_PASSWORD_HASH", cfg.AuthConfig.AdminPasswordHash)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", orDuration(cfg.AuthConfig.AccessTokenDuration, time.Hour))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", orString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orString(cfg.VaultConfig.SecretPath, "candle-signals"))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", orString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(cfg.RedisConfig.PoolSize, 10))
	cfg.RedisConfig.KlineTTL = getEnvDurationOrDefault("REDIS_KLINE_TTL", orDuration(cfg.RedisConfig.KlineTTL, 5*time.Minute))
	cfg.RedisConfig.SignalTTL = getEnvDurationOrDefault("REDIS_SIGNAL_TTL", orDuration(cfg.RedisConfig.SignalTTL, 15*time.Minute))

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", orString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", orInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", orString(cfg.DatabaseConfig.User, "candles"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Name = getEnvOrDefault("DB_NAME", orString(cfg.DatabaseConfig.Name, "candle_signals"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", orString(cfg.DatabaseConfig.SSLMode, "disable"))

	// Tracing config
	cfg.TracingConfig.Enabled = getEnvBoolOrDefault("TRACING_ENABLED", cfg.TracingConfig.Enabled)
	cfg.TracingConfig.ServiceName = getEnvOrDefault("TRACING_SERVICE_NAME", orString(cfg.TracingConfig.ServiceName, "candle-signals"))
}

// Validate rejects settings the analytics cannot run with
func (c *Config) Validate() error {
	if c.AnalysisConfig.WindowSize <= 0 {
		return &stats.ConfigError{Field: "window", Value: c.AnalysisConfig.WindowSize}
	}
	if err := binance.ValidateInterval(c.AnalysisConfig.DefaultInterval); err != nil {
		return fmt.Errorf("analysis.default_interval: %w", err)
	}
	if c.AnalysisConfig.KlineLimit <= 0 {
		return fmt.Errorf("analysis.kline_limit must be positive, got %d", c.AnalysisConfig.KlineLimit)
	}
	if c.SignalsConfig.WorkerCount <= 0 {
		return fmt.Errorf("signals.worker_count must be positive, got %d", c.SignalsConfig.WorkerCount)
	}
	if c.SignalsConfig.RefreshInterval <= 0 {
		return fmt.Errorf("signals.refresh_interval must be positive, got %d", c.SignalsConfig.RefreshInterval)
	}
	if _, err := c.SignalsConfig.Impacts(); err != nil {
		return err
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when auth is enabled")
	}
	return nil
}

// Impacts parses ImpactFilter
func (s *SignalsConfig) Impacts() ([]candle.Impact, error) {
	impacts := make([]candle.Impact, 0, len(s.ImpactFilter))
	for _, name := range s.ImpactFilter {
		impact, ok := candle.ParseImpact(name)
		if !ok {
			return nil, fmt.Errorf("signals.impact_filter: unknown impact %q", name)
		}
		impacts = append(impacts, impact)
	}
	return impacts, nil
}

// RefreshPeriod returns RefreshInterval as a duration
func (s *SignalsConfig) RefreshPeriod() time.Duration {
	return time.Duration(s.RefreshInterval) * time.Second
}

// Origins splits AllowedOrigins
func (s *ServerConfig) Origins() []string {
	return splitList(s.AllowedOrigins)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		if err := json.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitList(value)
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		BinanceConfig: BinanceConfig{
			BaseURL:         "https://api.binance.com",
			MockMode:        false,
			RequestTimeout:  10,
			WeightPerMinute: binance.DefaultWeightPerMinute,
		},
		AnalysisConfig: AnalysisConfig{
			WindowSize:      stats.DefaultWindow,
			DefaultInterval: "8h",
			DefaultSymbol:   "BTCUSDT",
			KlineLimit:      binance.DefaultLimit,
		},
		SignalsConfig: SignalsConfig{
			Enabled:         true,
			RefreshInterval: 300,
			WorkerCount:     10,
			ImpactFilter:    []string{"Critical"},
			KeepSnapshots:   500,
		},
		LoggingConfig: LoggingConfig{
			Level:       "INFO",
			Output:      "stdout",
			JSONFormat:  true,
			IncludeFile: false,
		},
		ServerConfig: ServerConfig{
			Port:               8080,
			Host:               "0.0.0.0",
			AllowedOrigins:     "*",
			ReadTimeout:        30,
			WriteTimeout:       60,
			ShutdownTimeout:    30,
			RateLimitPerMinute: 60,
		},
		AuthConfig: AuthConfig{
			Enabled:             false,
			AdminUser:           "admin",
			AccessTokenDuration: time.Hour,
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "candle-signals",
		},
		RedisConfig: RedisConfig{
			Address:   "localhost:6379",
			PoolSize:  10,
			KlineTTL:  5 * time.Minute,
			SignalTTL: 15 * time.Minute,
		},
		DatabaseConfig: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "candles",
			Name:    "candle_signals",
			SSLMode: "disable",
		},
		TracingConfig: TracingConfig{
			ServiceName: "candle-signals",
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
