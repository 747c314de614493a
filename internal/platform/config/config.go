package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures registry process configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	// DatabaseURL selects the Postgres ledger; empty runs the in-memory ledger.
	DatabaseURL string
	TxTimeout   time.Duration

	Redis RedisConfig
	// RoleDirectoryFile is the YAML role directory used when Redis is not configured.
	RoleDirectoryFile string

	KafkaBrokers       string
	KafkaTopic         string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration

	MaxBatchVerify int
}

// RedisConfig holds connection settings for the Redis role directory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const (
	// DevSigningKey is used when JWT_SIGNING_KEY is unset outside production.
	DevSigningKey   = "dev-secret-key-change-in-production"
	DefaultIssuer   = "credreg-authority"
	DefaultAudience = "credreg"
)

var (
	TxTimeout          = 5 * time.Second
	TokenTTL           = 15 * time.Minute
	OutboxPollInterval = time.Second
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	env := getEnv("ENVIRONMENT", "local")
	signingKey := os.Getenv("JWT_SIGNING_KEY")
	if signingKey == "" && env != "production" {
		// Use a default for development - production must set its own.
		signingKey = DevSigningKey
	}

	return Server{
		Addr:        getEnv("REGISTRY_ADDR", ":8080"),
		Environment: env,
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		TxTimeout:   getDuration("TX_TIMEOUT", TxTimeout),

		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		RoleDirectoryFile: os.Getenv("ROLE_DIRECTORY_FILE"),

		KafkaBrokers:       os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "credreg.registry.events"),
		OutboxPollInterval: getDuration("OUTBOX_POLL_INTERVAL", OutboxPollInterval),
		OutboxBatchSize:    getInt("OUTBOX_BATCH_SIZE", 100),

		JWTSigningKey: signingKey,
		JWTIssuer:     getEnv("JWT_ISSUER", DefaultIssuer),
		JWTAudience:   getEnv("JWT_AUDIENCE", DefaultAudience),
		TokenTTL:      getDuration("TOKEN_TTL", TokenTTL),

		MaxBatchVerify: getInt("MAX_BATCH_VERIFY", 1000),
	}
}

// UsesPostgres reports whether the durable ledger is configured.
func (s Server) UsesPostgres() bool { return s.DatabaseURL != "" }

// UsesKafka reports whether outbox events are relayed.
func (s Server) UsesKafka() bool { return strings.TrimSpace(s.KafkaBrokers) != "" }

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Malformed values fall back to the default.
func getDuration(key string, def time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}
