// Package config loads service settings from the environment. A .env file in
// the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port        string
	CORSOrigins []string
	JWTSecret   string

	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Logging  LoggingConfig

	// SnapshotPath serves table snapshots from a YAML/JSON file instead of
	// the Postgres catalog tables.
	SnapshotPath      string
	TaxonomyPath      string
	ExactSetThreshold int
	MaxGapValues      int
}

type DatabaseConfig struct {
	// Driver selects the override store: "postgres" or "sqlite".
	Driver        string
	Host          string
	Port          string
	User          string
	Password      string
	Name          string
	AdminUser     string
	AdminPassword string
	SQLitePath    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type LLMConfig struct {
	Provider      string
	Model         string
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	Concurrency   int
	RatePerSecond float64
	MaxSamples    int
	CacheSize     int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration and validates the fields the selected
// drivers need.
func Load() (*Config, error) {
	cfg := Read()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads the environment without validating it, for callers that
// adjust settings before use.
func Read() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		Database: DatabaseConfig{
			Driver:        strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
			Host:          os.Getenv("DB_HOST"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          os.Getenv("DB_USERNAME"),
			Password:      os.Getenv("DB_PASSWORD"),
			Name:          os.Getenv("DB_DATABASE"),
			AdminUser:     os.Getenv("DB_ADMIN_USER"),
			AdminPassword: os.Getenv("DB_ADMIN_PASSWORD"),
			SQLitePath:    getEnv("SQLITE_PATH", "contextgraph.db"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      getEnvAsDuration("CACHE_TTL", 24*time.Hour),
		},
		LLM: LLMConfig{
			Provider:      os.Getenv("LLM_PROVIDER"),
			Model:         os.Getenv("LLM_MODEL"),
			APIKey:        os.Getenv("LLM_API_KEY"),
			BaseURL:       os.Getenv("LLM_BASE_URL"),
			Timeout:       getEnvAsDuration("LLM_TIMEOUT", 20*time.Second),
			Concurrency:   getEnvAsInt("LLM_CONCURRENCY", 4),
			RatePerSecond: getEnvAsFloat("LLM_RATE_PER_SECOND", 2),
			MaxSamples:    getEnvAsInt("LLM_MAX_SAMPLES", 20),
			CacheSize:     getEnvAsInt("LLM_CACHE_SIZE", 4096),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		SnapshotPath:      os.Getenv("SNAPSHOT_FILE"),
		TaxonomyPath:      os.Getenv("TAXONOMY_PATH"),
		ExactSetThreshold: getEnvAsInt("EXACT_SET_THRESHOLD", 10000),
		MaxGapValues:      getEnvAsInt("MAX_GAP_VALUES", 100),
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		for key, val := range map[string]string{
			"DB_HOST":     c.Database.Host,
			"DB_USERNAME": c.Database.User,
			"DB_PASSWORD": c.Database.Password,
			"DB_DATABASE": c.Database.Name,
		} {
			if val == "" {
				return fmt.Errorf("%s environment variable is required", key)
			}
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH environment variable is required")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Database.Driver)
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "", "ollama":
	case "anthropic", "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required for provider %s", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
