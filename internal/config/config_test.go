package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address())
	assert.Equal(t, 1000, cfg.Pool.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.Pool.HeartbeatInterval)
	assert.Equal(t, 90*time.Second, cfg.Pool.ConnectionTimeout)
	assert.Equal(t, 512.0, cfg.Monitor.MemoryThresholdMB)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.LeakTimeout)
	assert.Equal(t, "lru", cfg.Cache.Strategy)
	assert.Equal(t, 50, cfg.Queue.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Queue.MessageTTL)
	assert.Equal(t, time.Minute, cfg.Worker.JobTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("POOL_MAX_CONNECTIONS", "250")
	t.Setenv("POOL_SCALE_DOWN_RATIO", "0.2")
	t.Setenv("CACHE_STRATEGY", "lfu")
	t.Setenv("QUEUE_MAX_WAIT_TIME", "500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Pool.MaxConnections)
	assert.Equal(t, 0.2, cfg.Pool.ScaleDownRatio)
	assert.Equal(t, "lfu", cfg.Cache.Strategy)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.MaxWaitTime)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("POOL_MAX_CONNECTIONS", "lots")
	t.Setenv("QUEUE_MAX_WAIT_TIME", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Pool.MaxConnections)
	assert.Equal(t, 2*time.Second, cfg.Queue.MaxWaitTime)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: "server port",
		},
		{
			name:    "non-positive max connections",
			mutate:  func(c *Config) { c.Pool.MaxConnections = 0 },
			wantErr: "max connections",
		},
		{
			name:    "timeout below heartbeat",
			mutate:  func(c *Config) { c.Pool.ConnectionTimeout = 10 * time.Second },
			wantErr: "heartbeat interval",
		},
		{
			name:    "inverted scale ratios",
			mutate:  func(c *Config) { c.Pool.ScaleDownRatio = 0.9 },
			wantErr: "scale ratios",
		},
		{
			name:    "scale up above one",
			mutate:  func(c *Config) { c.Pool.ScaleUpRatio = 1.5 },
			wantErr: "scale ratios",
		},
		{
			name:    "unknown cache strategy",
			mutate:  func(c *Config) { c.Cache.Strategy = "random" },
			wantErr: "cache strategy",
		},
		{
			name:    "non-positive batch size",
			mutate:  func(c *Config) { c.Queue.BatchSize = 0 },
			wantErr: "queue limits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
