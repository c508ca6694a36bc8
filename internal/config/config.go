// Пакет config собирает конфигурацию приложения из переменных окружения
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config конфигурация HTTP-сервиса каталога
type Config struct {
	HTTPAddr string

	DB       DBConfig
	Redis    RedisConfig
	NATS     NATSConfig
	S3       S3Config
	Log      LogConfig
	Catalog  CatalogConfig
	Sessions SessionConfig
}

// DBConfig подключение к Postgres
type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// DSN строка подключения для lib/pq
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Name)
}

// RedisConfig кэш
type RedisConfig struct {
	Addr string
	TTL  time.Duration
}

// NATSConfig брокер событий
type NATSConfig struct {
	URL     string
	Subject string
}

// S3Config хранилище изображений
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PublicURL string
}

// LogConfig логирование
type LogConfig struct {
	Level string
	JSON  bool
}

// CatalogConfig поведение операций каталога
type CatalogConfig struct {
	// AtomicFormsets сохраняет товар и изображения в одной транзакции
	AtomicFormsets bool
	MaxImageBytes  int64
}

// SessionConfig cookie-сессии для flash-сообщений
type SessionConfig struct {
	Key string
}

// Load читает .env (если есть) и переменные окружения
func Load(envPath ...string) (*Config, error) {
	if err := godotenv.Load(envPath...); err != nil {
		slog.Debug("файл .env не найден, используем переменные окружения", "error", err)
	}
	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnv("DB_NAME", "appdb"),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
			TTL:  getEnvAsDuration("REDIS_TTL", time.Minute),
		},
		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Subject: getEnv("NATS_SUBJECT", "goods"),
		},
		S3: S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Bucket:    getEnv("S3_BUCKET", "catalog"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			PublicURL: os.Getenv("S3_PUBLIC_URL"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			JSON:  getEnvAsBool("LOG_JSON", false),
		},
		Catalog: CatalogConfig{
			AtomicFormsets: getEnvAsBool("CATALOG_ATOMIC_FORMSETS", false),
			MaxImageBytes:  int64(getEnvAsInt("CATALOG_MAX_IMAGE_BYTES", 5<<20)),
		},
		Sessions: SessionConfig{
			Key: os.Getenv("SESSION_KEY"),
		},
	}
	if len(cfg.Sessions.Key) < 32 {
		return nil, fmt.Errorf("SESSION_KEY must be at least 32 bytes")
	}
	return cfg, nil
}

// ConsumerConfig конфигурация консьюмера событий
type ConsumerConfig struct {
	NATS          NATSConfig
	ClickhouseDSN string
	BatchSize     int
	FlushInterval time.Duration
	Port          string
	Log           LogConfig
}

// LoadConsumer читает конфигурацию консьюмера
func LoadConsumer(envPath ...string) (*ConsumerConfig, error) {
	if err := godotenv.Load(envPath...); err != nil {
		slog.Debug("файл .env не найден, используем переменные окружения", "error", err)
	}
	cfg := &ConsumerConfig{
		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Subject: getEnv("NATS_SUBJECT", "goods"),
		},
		ClickhouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		BatchSize:     10,
		FlushInterval: getEnvAsDuration("FLUSH_INTERVAL", 5*time.Second),
		Port:          getEnv("CONSUMER_PORT", "8081"),
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			JSON:  getEnvAsBool("LOG_JSON", false),
		},
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		bs, err := strconv.Atoi(v)
		if err != nil || bs <= 0 {
			return nil, fmt.Errorf("invalid BATCH_SIZE %q", v)
		}
		cfg.BatchSize = bs
	}
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("invalid FLUSH_INTERVAL %q: must be positive", os.Getenv("FLUSH_INTERVAL"))
	}
	if cfg.ClickhouseDSN == "" {
		return nil, fmt.Errorf("CLICKHOUSE_DSN environment variable is required")
	}
	return cfg, nil
}

// getEnv читает переменную окружения со значением по умолчанию
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		slog.Warn("переменная окружения не является числом, используем значение по умолчанию",
			"key", key, "value", valueStr, "default", defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultValue
	}
	return val
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
