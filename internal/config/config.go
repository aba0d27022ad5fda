package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string
	LogFile     string

	Server     ServerConfig
	Analysis   AnalysisConfig
	Classifier ClassifierConfig
	MarketData MarketDataConfig
	Hub        HubConfig

	// Optional backends
	Redis    RedisConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// AnalysisConfig holds the analysis scheduler configuration
type AnalysisConfig struct {
	Interval       time.Duration
	FetchTimeout   time.Duration
	Symbols        []string
	Timeframe      string
	SettlementMode string // "random" or "mark"
	MaxSignals     int
	HistorySize    int
}

// ClassifierConfig holds the signal classifier configuration
type ClassifierConfig struct {
	RSILower       float64
	RSIUpper       float64
	ScoringMode    string // "fixed" or "confluence"
	BracketMode    string // "fixed" or "atr"
	TakeProfitPct  float64
	StopLossPct    float64
	TakeProfitATR  float64
	StopLossATR    float64
	RiskPercent    float64
	Leverage       float64
	AccountBalance float64
}

// MarketDataConfig holds market data source configuration
type MarketDataConfig struct {
	Provider       string            // "simulated", "coingecko", "bybit", "binance" or "polygon"
	Routes         map[string]string // symbol -> provider
	CoinGeckoURL   string
	BybitURL       string
	BinanceURL     string
	PolygonAPIKey  string
	Interval       time.Duration
	Bars           int
	RequestTimeout time.Duration
	Seed           int64
}

// HubConfig holds broadcast hub and websocket configuration
type HubConfig struct {
	SendTimeout    time.Duration
	SendBuffer     int
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
	InitialSignals int
}

// RedisConfig holds Redis configuration for the event mirror
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	EventsStream string
	EventsMaxLen int64
}

// KafkaConfig holds Kafka configuration for the event mirror
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	MaxAttempts  int
}

// DatabaseConfig holds PostgreSQL archive configuration
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Write batching
	WriteBatchSize int
	WriteInterval  time.Duration
	WriteQueueSize int
	MaxRetries     int
	RetryDelay     time.Duration
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),
		Server: ServerConfig{
			Port:            getEnvAsInt("PORT", 8080),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Analysis: AnalysisConfig{
			Interval:       getEnvAsDuration("ANALYSIS_INTERVAL", 30*time.Second),
			FetchTimeout:   getEnvAsDuration("FETCH_TIMEOUT", 10*time.Second),
			Symbols:        getEnvAsStringSlice("SYMBOLS", []string{"XAUUSD", "BTCUSD"}),
			Timeframe:      getEnv("ANALYSIS_TIMEFRAME", "H1"),
			SettlementMode: getEnv("SETTLEMENT_MODE", "random"),
			MaxSignals:     getEnvAsInt("MAX_SIGNALS", 1000),
			HistorySize:    getEnvAsInt("INDICATOR_HISTORY_SIZE", 500),
		},
		Classifier: ClassifierConfig{
			RSILower:       getEnvAsFloat("RSI_LOWER", 10),
			RSIUpper:       getEnvAsFloat("RSI_UPPER", 90),
			ScoringMode:    getEnv("SCORING_MODE", "fixed"),
			BracketMode:    getEnv("BRACKET_MODE", "fixed"),
			TakeProfitPct:  getEnvAsFloat("TAKE_PROFIT_PCT", 0.02),
			StopLossPct:    getEnvAsFloat("STOP_LOSS_PCT", 0.02),
			TakeProfitATR:  getEnvAsFloat("TAKE_PROFIT_ATR", 2.0),
			StopLossATR:    getEnvAsFloat("STOP_LOSS_ATR", 1.5),
			RiskPercent:    getEnvAsFloat("RISK_PERCENT", 1.5),
			Leverage:       getEnvAsFloat("LEVERAGE", 20),
			AccountBalance: getEnvAsFloat("ACCOUNT_BALANCE", 100),
		},
		MarketData: MarketDataConfig{
			Provider:       getEnv("MARKET_DATA_PROVIDER", "simulated"),
			Routes:         getEnvAsMap("MARKET_DATA_ROUTES", map[string]string{}),
			CoinGeckoURL:   getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com"),
			BybitURL:       getEnv("BYBIT_BASE_URL", "https://api.bybit.com"),
			BinanceURL:     getEnv("BINANCE_BASE_URL", ""),
			PolygonAPIKey:  getEnv("POLYGON_API_KEY", ""),
			Interval:       getEnvAsDuration("MARKET_DATA_INTERVAL", time.Hour),
			Bars:           getEnvAsInt("MARKET_DATA_BARS", 100),
			RequestTimeout: getEnvAsDuration("MARKET_DATA_TIMEOUT", 10*time.Second),
			Seed:           int64(getEnvAsInt("MARKET_DATA_SEED", 0)),
		},
		Hub: HubConfig{
			SendTimeout:    getEnvAsDuration("WS_SEND_TIMEOUT", 1*time.Second),
			SendBuffer:     getEnvAsInt("WS_SEND_BUFFER", 256),
			PingInterval:   getEnvAsDuration("WS_PING_INTERVAL", 30*time.Second),
			ReadTimeout:    getEnvAsDuration("WS_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:   getEnvAsDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			MaxConnections: getEnvAsInt("WS_MAX_CONNECTIONS", 1000),
			InitialSignals: getEnvAsInt("WS_INITIAL_SIGNALS", 50),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			EventsStream: getEnv("EVENTS_STREAM", "signals.events"),
			EventsMaxLen: int64(getEnvAsInt("EVENTS_STREAM_MAXLEN", 10000)),
		},
		Kafka: KafkaConfig{
			Enabled:      getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:      getEnvAsStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:        getEnv("KAFKA_EVENTS_TOPIC", "signals.events"),
			BatchTimeout: getEnvAsDuration("KAFKA_BATCH_TIMEOUT", 100*time.Millisecond),
			WriteTimeout: getEnvAsDuration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
			MaxAttempts:  getEnvAsInt("KAFKA_MAX_ATTEMPTS", 3),
		},
		Database: DatabaseConfig{
			Enabled:         getEnvAsBool("DB_ENABLED", false),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "signal_engine"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			WriteBatchSize:  getEnvAsInt("DB_WRITE_BATCH_SIZE", 100),
			WriteInterval:   getEnvAsDuration("DB_WRITE_INTERVAL", 5*time.Second),
			WriteQueueSize:  getEnvAsInt("DB_WRITE_QUEUE_SIZE", 1000),
			MaxRetries:      getEnvAsInt("DB_MAX_RETRIES", 3),
			RetryDelay:      getEnvAsDuration("DB_RETRY_DELAY", 1*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Analysis.Interval <= 0 {
		return fmt.Errorf("ANALYSIS_INTERVAL must be positive")
	}
	if c.Analysis.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if len(c.Analysis.Symbols) == 0 {
		return fmt.Errorf("SYMBOLS must contain at least one symbol")
	}
	switch c.Analysis.Timeframe {
	case "M15", "H1", "H4":
	default:
		return fmt.Errorf("ANALYSIS_TIMEFRAME must be M15, H1 or H4, got %q", c.Analysis.Timeframe)
	}
	switch c.Analysis.SettlementMode {
	case "random", "mark":
	default:
		return fmt.Errorf("SETTLEMENT_MODE must be random or mark, got %q", c.Analysis.SettlementMode)
	}
	if c.Classifier.RSILower >= c.Classifier.RSIUpper {
		return fmt.Errorf("RSI_LOWER (%g) must be below RSI_UPPER (%g)", c.Classifier.RSILower, c.Classifier.RSIUpper)
	}
	switch c.Classifier.ScoringMode {
	case "fixed", "confluence":
	default:
		return fmt.Errorf("SCORING_MODE must be fixed or confluence, got %q", c.Classifier.ScoringMode)
	}
	switch c.Classifier.BracketMode {
	case "fixed", "atr":
	default:
		return fmt.Errorf("BRACKET_MODE must be fixed or atr, got %q", c.Classifier.BracketMode)
	}
	if c.Classifier.TakeProfitPct <= 0 || c.Classifier.StopLossPct <= 0 {
		return fmt.Errorf("TAKE_PROFIT_PCT and STOP_LOSS_PCT must be positive")
	}
	for symbol, provider := range c.MarketData.Routes {
		if !validProvider(provider) {
			return fmt.Errorf("MARKET_DATA_ROUTES: unknown provider %q for %s", provider, symbol)
		}
	}
	if !validProvider(c.MarketData.Provider) {
		return fmt.Errorf("MARKET_DATA_PROVIDER must be one of simulated, coingecko, bybit, binance, polygon; got %q", c.MarketData.Provider)
	}
	if c.MarketData.Bars < 2 {
		return fmt.Errorf("MARKET_DATA_BARS must be at least 2")
	}
	if c.usesProvider("polygon") && c.MarketData.PolygonAPIKey == "" {
		return fmt.Errorf("POLYGON_API_KEY is required when the polygon provider is used")
	}
	if c.Hub.SendTimeout <= 0 {
		return fmt.Errorf("WS_SEND_TIMEOUT must be positive")
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required when REDIS_ENABLED is set")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("KAFKA_BROKERS and KAFKA_EVENTS_TOPIC are required when KAFKA_ENABLED is set")
	}
	if c.Database.Enabled && c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required when DB_ENABLED is set")
	}
	return nil
}

func (c *Config) usesProvider(name string) bool {
	if c.MarketData.Provider == name {
		return true
	}
	for _, provider := range c.MarketData.Routes {
		if provider == name {
			return true
		}
	}
	return false
}

func validProvider(name string) bool {
	switch name {
	case "simulated", "coingecko", "bybit", "binance", "polygon":
		return true
	}
	return false
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Split by comma and trim spaces
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// getEnvAsMap parses "KEY=value,KEY2=value2"; malformed pairs are skipped
func getEnvAsMap(key string, defaultValue map[string]string) map[string]string {
	pairs := getEnvAsStringSlice(key, nil)
	if len(pairs) == 0 {
		return defaultValue
	}
	result := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		result[k] = v
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
