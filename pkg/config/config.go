package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// State storage
	DataDir      string
	StoreBackend string // file, sqlite, postgres
	SQLitePath   string
	Database     DatabaseConfig

	// Redis (market data cache + upstream rate limit)
	Redis RedisConfig

	// Upstream market data
	MarketData MarketDataConfig

	// Agent
	Agent AgentConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// MarketDataConfig configures the reference market data adapter
type MarketDataConfig struct {
	BaseURL          string
	RequestsPerSec   float64
	Timeout          time.Duration
	RetryBackoff     time.Duration
	CacheTTL         time.Duration
	BenchmarkSymbol  string
	VolatilitySymbol string
}

// AgentConfig controls scan pacing and the recurring triggers
type AgentConfig struct {
	UniversesFile      string
	ItemDelay          time.Duration // 종목 간 대기
	UniverseDelay      time.Duration // 유니버스 간 대기
	OverdueThreshold   time.Duration
	WarmupStocks       int
	BackgroundWorkers  int
	BatchWorkers       int
	LearningWindow     time.Duration
	LearningBatchLimit int
	KeepAliveURL       string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		Port: getEnv("PORT", "8000"),
		Env:  getEnv("ENV", "development"),

		DataDir:      dataDir,
		StoreBackend: getEnv("STORE_BACKEND", StoreFile),
		SQLitePath:   getEnv("SQLITE_PATH", filepath.Join(dataDir, "tradeloop.db")),
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		MarketData: MarketDataConfig{
			BaseURL:          getEnv("MARKET_DATA_BASE_URL", "https://query1.finance.yahoo.com"),
			RequestsPerSec:   getEnvAsFloat("MARKET_DATA_RPS", 2),
			Timeout:          getEnvAsDuration("MARKET_DATA_TIMEOUT", "20s"),
			RetryBackoff:     getEnvAsDuration("MARKET_DATA_RETRY_BACKOFF", "1s"),
			CacheTTL:         getEnvAsDuration("MARKET_DATA_CACHE_TTL", "15m"),
			BenchmarkSymbol:  getEnv("BENCHMARK_SYMBOL", "^NSEI"),
			VolatilitySymbol: getEnv("VOLATILITY_SYMBOL", "^INDIAVIX"),
		},

		Agent: AgentConfig{
			UniversesFile:      getEnv("UNIVERSES_FILE", ""),
			ItemDelay:          getEnvAsDuration("SCAN_ITEM_DELAY", "1s"),
			UniverseDelay:      getEnvAsDuration("SCAN_UNIVERSE_DELAY", "2s"),
			OverdueThreshold:   getEnvAsDuration("SCAN_OVERDUE_THRESHOLD", "3h"),
			WarmupStocks:       getEnvAsInt("WARMUP_STOCKS", 5),
			BackgroundWorkers:  getEnvAsInt("BACKGROUND_WORKERS", 2),
			BatchWorkers:       getEnvAsInt("BATCH_WORKERS", 4),
			LearningWindow:     getEnvAsDuration("LEARNING_WINDOW", "720h"),
			LearningBatchLimit: getEnvAsInt("LEARNING_BATCH_LIMIT", 30),
			KeepAliveURL:       getEnv("KEEP_ALIVE_URL", ""),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.StoreBackend {
	case StoreFile, StoreSQLite:
	case StorePostgres:
		// Postgres 백엔드는 DATABASE_URL 필수
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: file, sqlite, postgres")
	}

	if c.Agent.BackgroundWorkers < 1 {
		return fmt.Errorf("BACKGROUND_WORKERS must be >= 1")
	}
	if c.MarketData.RequestsPerSec <= 0 {
		return fmt.Errorf("MARKET_DATA_RPS must be > 0")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
