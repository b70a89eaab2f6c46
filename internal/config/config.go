package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Reaper    ReaperConfig
	Cron      CronConfig
}

type ServerConfig struct {
	Port string
}

type PostgresConfig struct {
	URL           string
	MigrationsDir string
}

type KafkaConfig struct {
	Brokers     []string
	JobsTopic   string
	EventsTopic string
	Partitions  int
	// Sarama-specific
	Version       string
	ConsumerGroup string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

type ReaperConfig struct {
	StaleAfter time.Duration
}

type CronConfig struct {
	Secret string
}

func New() *Config {
	return &Config{
		Server: ServerConfig{
			Port: os.Getenv("SERVER_PORT"),
		},
		Postgres: PostgresConfig{
			URL:           os.Getenv("POSTGRES_URL"),
			MigrationsDir: envOrDefault("MIGRATIONS_DIR", "migrations"),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(os.Getenv("KAFKA_BROKERS"), ","),
			JobsTopic:     envOrDefault("KAFKA_JOBS_TOPIC", "operation-jobs"),
			EventsTopic:   envOrDefault("KAFKA_EVENTS_TOPIC", "operation-events"),
			Partitions:    envInt("KAFKA_PARTITIONS", 1),
			Version:       os.Getenv("KAFKA_VERSION"),
			ConsumerGroup: os.Getenv("KAFKA_CONSUMER_GROUP"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
			PoolSize: envInt("REDIS_POOL_SIZE", 10),
		},
		RateLimit: RateLimitConfig{
			Limit:  envInt("RATE_LIMIT_OPERATIONS", 10),
			Window: envDuration("RATE_LIMIT_WINDOW_SECONDS", 60*time.Second),
		},
		Reaper: ReaperConfig{
			StaleAfter: envDuration("REAPER_STALE_AFTER_SECONDS", 5*time.Minute),
		},
		Cron: CronConfig{
			Secret: os.Getenv("CRON_SECRET"),
		},
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	seconds, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func (k *KafkaConfig) GetSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()

	if k.Version != "" {
		version, err := sarama.ParseKafkaVersion(k.Version)
		if err == nil {
			config.Version = version
		}
	}

	// Consumer settings
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.AutoCommit.Enable = true
	config.Consumer.Offsets.AutoCommit.Interval = 2 * time.Minute
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	config.Consumer.Fetch.Min = 1
	config.Consumer.Fetch.Default = 1024 * 1024 // 1MB
	config.Consumer.MaxWaitTime = 100 * time.Millisecond

	// Network settings
	config.Net.MaxOpenRequests = 5
	config.Net.DialTimeout = 30 * time.Second
	config.Net.ReadTimeout = 30 * time.Second
	config.Net.WriteTimeout = 30 * time.Second

	return config
}
