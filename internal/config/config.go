package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Host            string
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

type PoolConfig struct {
	MaxConnections    int
	HeartbeatInterval time.Duration
	ConnectionTimeout time.Duration
	CleanupInterval   time.Duration
	ScaleDownRatio    float64
	ScaleUpRatio      float64
	MinConnections    int
	EmergencyBatch    int
}

type MonitorConfig struct {
	MemoryThresholdMB float64
	CPUThresholdPct   float64
	CheckInterval     time.Duration
	HistorySize       int
	LeakTimeout       time.Duration
	LeakCheckInterval time.Duration
}

type CacheConfig struct {
	MaxEntries  int
	MaxMemoryMB int64
	DefaultTTL  time.Duration
	Strategy    string
}

type QueueConfig struct {
	MaxSize     int
	BatchSize   int
	MaxWaitTime time.Duration
	WorkerCount int
	MessageTTL  time.Duration
	ResultTTL   time.Duration
}

type WorkerConfig struct {
	Concurrency int
	JobTimeout  time.Duration
}

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Pool     PoolConfig
	Monitor  MonitorConfig
	Cache    CacheConfig
	Queue    QueueConfig
	Worker   WorkerConfig
	LogLevel string
}

func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
		},
		Pool: PoolConfig{
			MaxConnections:    getIntEnv("POOL_MAX_CONNECTIONS", 1000),
			HeartbeatInterval: getDurationEnv("POOL_HEARTBEAT_INTERVAL", 30*time.Second),
			ConnectionTimeout: getDurationEnv("POOL_CONNECTION_TIMEOUT", 90*time.Second),
			CleanupInterval:   getDurationEnv("POOL_CLEANUP_INTERVAL", 60*time.Second),
			ScaleDownRatio:    getFloatEnv("POOL_SCALE_DOWN_RATIO", 0.3),
			ScaleUpRatio:      getFloatEnv("POOL_SCALE_UP_RATIO", 0.8),
			MinConnections:    getIntEnv("POOL_MIN_CONNECTIONS", 10),
			EmergencyBatch:    getIntEnv("POOL_EMERGENCY_BATCH", 50),
		},
		Monitor: MonitorConfig{
			MemoryThresholdMB: getFloatEnv("MONITOR_MEMORY_THRESHOLD_MB", 512),
			CPUThresholdPct:   getFloatEnv("MONITOR_CPU_THRESHOLD_PCT", 80),
			CheckInterval:     getDurationEnv("MONITOR_CHECK_INTERVAL", 30*time.Second),
			HistorySize:       getIntEnv("MONITOR_HISTORY_SIZE", 1000),
			LeakTimeout:       getDurationEnv("MONITOR_LEAK_TIMEOUT", 5*time.Minute),
			LeakCheckInterval: getDurationEnv("MONITOR_LEAK_CHECK_INTERVAL", 1*time.Minute),
		},
		Cache: CacheConfig{
			MaxEntries:  getIntEnv("CACHE_MAX_ENTRIES", 10000),
			MaxMemoryMB: getInt64Env("CACHE_MAX_MEMORY_MB", 128),
			DefaultTTL:  getDurationEnv("CACHE_DEFAULT_TTL", 5*time.Minute),
			Strategy:    getEnv("CACHE_STRATEGY", "lru"),
		},
		Queue: QueueConfig{
			MaxSize:     getIntEnv("QUEUE_MAX_SIZE", 10000),
			BatchSize:   getIntEnv("QUEUE_BATCH_SIZE", 50),
			MaxWaitTime: getDurationEnv("QUEUE_MAX_WAIT_TIME", 2*time.Second),
			WorkerCount: getIntEnv("QUEUE_WORKER_COUNT", 4),
			MessageTTL:  getDurationEnv("QUEUE_MESSAGE_TTL", 5*time.Minute),
			ResultTTL:   getDurationEnv("QUEUE_RESULT_TTL", 10*time.Minute),
		},
		Worker: WorkerConfig{
			Concurrency: getIntEnv("WORKER_CONCURRENCY", 4),
			JobTimeout:  getDurationEnv("WORKER_JOB_TIMEOUT", 1*time.Minute),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Pool.MaxConnections <= 0 {
		return fmt.Errorf("pool max connections must be positive")
	}
	if c.Pool.HeartbeatInterval <= 0 || c.Pool.ConnectionTimeout <= 0 {
		return fmt.Errorf("pool intervals must be positive")
	}
	if c.Pool.ConnectionTimeout <= c.Pool.HeartbeatInterval {
		return fmt.Errorf("connection timeout must exceed heartbeat interval")
	}
	if c.Pool.ScaleDownRatio <= 0 || c.Pool.ScaleDownRatio >= c.Pool.ScaleUpRatio || c.Pool.ScaleUpRatio > 1 {
		return fmt.Errorf("pool scale ratios must satisfy 0 < down < up <= 1")
	}
	if c.Cache.MaxEntries <= 0 || c.Cache.MaxMemoryMB <= 0 {
		return fmt.Errorf("cache limits must be positive")
	}
	switch c.Cache.Strategy {
	case "lru", "lfu", "fifo", "ttl":
	default:
		return fmt.Errorf("unknown cache strategy %q", c.Cache.Strategy)
	}
	if c.Queue.MaxSize <= 0 || c.Queue.BatchSize <= 0 || c.Queue.WorkerCount <= 0 {
		return fmt.Errorf("queue limits must be positive")
	}
	return nil
}

func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
