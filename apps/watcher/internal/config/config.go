package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	SourceIndexer = "indexer"
	SourceEVM     = "evm"

	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	ChainID      string
	EventSource  string
	IndexerURL   string
	IndexerToken string
	RpcURL       string
	EVMPerBlock  bool

	GenesisBlock   uint64
	AlertThreshold decimal.Decimal
	MaxBlockSpan   uint64
	FinalityOffset uint64

	MaxBatchSize     int
	PersistWorkers   int
	FetchConcurrency int
	FetchRetries     int

	MaxAlertsPerMessage int
	NotifyDelay         time.Duration
	NativeSymbol        string
	NativeDecimals      int32
	ExplorerURL         string
	MaskAddresses       bool

	StoreBackend    string
	DbURL           string
	AWSRegion       string
	CheckpointTable string
	TrackingTable   string
	TransfersTable  string

	TelegramToken       string
	TelegramChatID      string
	TelegramTokenSecret string
	KafkaBroker         string
	KafkaTopic          string

	RedisAddr    string
	LockTTL      time.Duration
	PollInterval time.Duration
	RunOnce      bool
	APIPort      int
	LogLevel     string
}

// NewConfig loads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	threshold, err := getEnvDecimal("ALERT_THRESHOLD", decimal.NewFromInt(1000))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ChainID:      getEnv("CHAIN_ID", "root"),
		EventSource:  strings.ToLower(getEnv("EVENT_SOURCE", SourceIndexer)),
		IndexerURL:   getEnv("INDEXER_URL", ""),
		IndexerToken: getEnv("INDEXER_ADMIN_SECRET", ""),
		RpcURL:       getEnv("RPC_URL", ""),
		EVMPerBlock:  getEnvBool("EVM_PER_BLOCK", false),

		GenesisBlock:   getEnvUint64("DEFAULT_LAST_PROCESSED_BLOCK", 15000000),
		AlertThreshold: threshold,
		MaxBlockSpan:   getEnvUint64("MAX_BLOCK_SPAN", 100),
		FinalityOffset: getEnvUint64("FINALITY_OFFSET", 0),

		MaxBatchSize:     getEnvInt("MAX_BATCH_SIZE", 25),
		PersistWorkers:   getEnvInt("PERSIST_WORKERS", 4),
		FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 8),
		FetchRetries:     getEnvInt("FETCH_RETRIES", 3),

		MaxAlertsPerMessage: getEnvInt("MAX_ALERTS_PER_MESSAGE", 10),
		NotifyDelay:         getEnvDuration("NOTIFY_DELAY_MS", time.Millisecond, time.Second),
		NativeSymbol:        getEnv("NATIVE_SYMBOL", "ROOT"),
		NativeDecimals:      int32(getEnvInt("NATIVE_DECIMALS", 6)),
		ExplorerURL:         strings.TrimRight(getEnv("EXPLORER_URL", "https://rootscan.io"), "/"),
		MaskAddresses:       getEnvBool("MASK_ADDRESSES", true),

		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
		DbURL:           getEnv("DB_URL", ""),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		CheckpointTable: getEnv("CHECKPOINT_TABLE", "last_processed_block"),
		TrackingTable:   getEnv("TRACKING_TABLE", "tracking"),
		TransfersTable:  getEnv("TRANSFERS_TABLE", "transfers"),

		TelegramToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:      getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramTokenSecret: getEnv("TELEGRAM_TOKEN_SECRET", ""),
		KafkaBroker:         getEnv("KAFKA_BROKER", ""),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "transfer-alerts"),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		LockTTL:      getEnvDuration("LOCK_TTL_SEC", time.Second, 5*time.Minute),
		PollInterval: getEnvDuration("POLL_INTERVAL_SEC", time.Second, time.Minute),
		RunOnce:      getEnvBool("RUN_ONCE", false),
		APIPort:      getEnvInt("API_PORT", 8080),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ChainID == "" {
		return fmt.Errorf("CHAIN_ID is required")
	}
	switch c.EventSource {
	case SourceIndexer:
		if c.IndexerURL == "" {
			return fmt.Errorf("INDEXER_URL is required when EVENT_SOURCE=%s", SourceIndexer)
		}
	case SourceEVM:
		if c.RpcURL == "" {
			return fmt.Errorf("RPC_URL is required when EVENT_SOURCE=%s", SourceEVM)
		}
	default:
		return fmt.Errorf("unsupported EVENT_SOURCE %q", c.EventSource)
	}
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DbURL == "" {
			return fmt.Errorf("DB_URL is required when STORE_BACKEND=%s", BackendPostgres)
		}
	case BackendDynamoDB:
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required when STORE_BACKEND=%s", BackendDynamoDB)
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	if c.AlertThreshold.IsNegative() {
		return fmt.Errorf("ALERT_THRESHOLD must not be negative")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("MAX_BATCH_SIZE must be positive")
	}
	if c.PersistWorkers <= 0 || c.FetchConcurrency <= 0 {
		return fmt.Errorf("PERSIST_WORKERS and FETCH_CONCURRENCY must be positive")
	}
	if c.MaxAlertsPerMessage <= 0 {
		return fmt.Errorf("MAX_ALERTS_PER_MESSAGE must be positive")
	}
	if !c.RunOnce && c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SEC must be positive unless RUN_ONCE is set")
	}
	if c.NativeDecimals < 0 {
		return fmt.Errorf("NATIVE_DECIMALS must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration reads an integer count of unit, e.g. NOTIFY_DELAY_MS=250.
func getEnvDuration(key string, unit, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed >= 0 {
			return time.Duration(parsed) * unit
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}
