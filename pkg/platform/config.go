package platform

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"bid-review/decision/recommend"
	"bid-review/decision/reconcile"
	"bid-review/decision/status"
)

// Config is the application configuration.
type Config struct {
	Server    ServerConfig      `toml:"server"`
	Log       LogConfig         `toml:"log"`
	Reconcile reconcile.Config  `toml:"reconcile"`
	Compare   CompareConfig     `toml:"compare"`
	Status    status.Thresholds `toml:"status"`
	Recommend recommend.Config  `toml:"recommend"`
	Storage   StorageConfig     `toml:"storage"`
	AI        AIConfig          `toml:"ai"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int      `toml:"port" validate:"gte=1,lte=65535"`
	CORSOrigins     []string `toml:"cors_origins"`
	MaxRequestSize  int64    `toml:"max_request_size" validate:"gte=1"`
	TimeoutSeconds  int      `toml:"timeout_seconds" validate:"gte=1"`
	ShutdownSeconds int      `toml:"shutdown_seconds" validate:"gte=1"`
	APIKey          string   `toml:"api_key"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `toml:"pretty"`
}

// CompareConfig configures quantity-vs-plan comparison.
type CompareConfig struct {
	Tolerance float64 `toml:"tolerance" validate:"gte=0"`
}

// StorageConfig selects and configures the session and history stores.
type StorageConfig struct {
	History  string `toml:"history" validate:"oneof=memory clickhouse postgres"`
	Sessions string `toml:"sessions" validate:"oneof=memory redis"`

	HistoryLimit      int `toml:"history_limit" validate:"gte=1"`
	SessionTTLSeconds int `toml:"session_ttl_seconds" validate:"gte=0"`

	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	ClickHouseAddr     string `toml:"clickhouse_addr"`
	ClickHouseDatabase string `toml:"clickhouse_database"`
	ClickHouseUsername string `toml:"clickhouse_username"`
	ClickHousePassword string `toml:"clickhouse_password"`

	PostgresDSN string `toml:"postgres_dsn"`
}

// AIConfig configures the OpenAI-compatible analysis client.
type AIConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gte=1"`
	Retries        int    `toml:"retries" validate:"gte=0"`
	MaxInputChars  int    `toml:"max_input_chars" validate:"gte=1000"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"*"},
			MaxRequestSize:  50 << 20,
			TimeoutSeconds:  120,
			ShutdownSeconds: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
		Reconcile: *reconcile.DefaultConfig(),
		Compare: CompareConfig{
			Tolerance: reconcile.DefaultPlanTolerance,
		},
		Status:    *status.DefaultThresholds(),
		Recommend: *recommend.DefaultConfig(),
		Storage: StorageConfig{
			History:            "memory",
			Sessions:           "memory",
			HistoryLimit:       20,
			SessionTTLSeconds:  24 * 60 * 60,
			RedisAddr:          "localhost:6379",
			ClickHouseAddr:     "localhost:9000",
			ClickHouseDatabase: "bidreview",
			ClickHouseUsername: "default",
		},
		AI: AIConfig{
			Model:          "gpt-4o",
			TimeoutSeconds: 120,
			Retries:        2,
			MaxInputChars:  50000,
		},
	}
}

// LoadConfig reads .env, then the TOML file at path on top of the defaults,
// then environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = GetEnvInt("PORT", c.Server.Port)
	c.Server.APIKey = GetEnv("API_KEY", c.Server.APIKey)
	if v := GetEnv("CORS_ORIGINS", ""); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}

	c.Log.Level = GetEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = GetEnvBool("LOG_PRETTY", c.Log.Pretty)

	c.Reconcile.Workers = GetEnvInt("RECONCILE_WORKERS", c.Reconcile.Workers)

	c.Storage.History = GetEnv("HISTORY_BACKEND", c.Storage.History)
	c.Storage.Sessions = GetEnv("SESSION_BACKEND", c.Storage.Sessions)
	c.Storage.RedisAddr = GetEnv("REDIS_ADDRESS", c.Storage.RedisAddr)
	c.Storage.RedisPassword = GetEnv("REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.ClickHouseAddr = GetEnv("CLICKHOUSE_ADDR", c.Storage.ClickHouseAddr)
	c.Storage.ClickHousePassword = GetEnv("CLICKHOUSE_PASSWORD", c.Storage.ClickHousePassword)
	c.Storage.PostgresDSN = GetEnv("DATABASE_URL", c.Storage.PostgresDSN)

	c.AI.APIKey = GetEnv("OPENAI_API_KEY", c.AI.APIKey)
	c.AI.BaseURL = GetEnv("OPENAI_BASE_URL", c.AI.BaseURL)
	c.AI.Model = GetEnv("OPENAI_MODEL", c.AI.Model)
}

var validate = validator.New()

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.History == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("invalid config: storage.postgres_dsn is required for the postgres history store")
	}
	return nil
}

func GetEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func GetEnvInt(key string, defaultVal int) int {
	if val, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func GetEnvBool(key string, defaultVal bool) bool {
	if val, exists := os.LookupEnv(key); exists {
		if strings.ToLower(val) == "true" || val == "1" {
			return true
		}
		return false
	}
	return defaultVal
}
