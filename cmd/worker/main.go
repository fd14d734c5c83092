package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/orchids/event-stream/internal/alert"
	"github.com/orchids/event-stream/internal/config"
	"github.com/orchids/event-stream/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Environment, cfg.LogLevel)
	log.Info(context.Background(), "Starting alert worker", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"concurrency": cfg.Worker.Concurrency,
	})

	redisClient, err := initRedis(cfg)
	if err != nil {
		log.Fatal(context.Background(), "Failed to initialize Redis", err, nil)
	}
	defer redisClient.Close()
	log.Info(context.Background(), "Redis connection established", nil)

	leakHandler := alert.NewLeakAlertHandler(redisClient, log)
	thresholdHandler := alert.NewThresholdAlertHandler(redisClient, log)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.Redis.Address()},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error(ctx, "task execution failed", err, map[string]interface{}{
					"task_type": task.Type(),
					"payload":   string(task.Payload()),
				})
			}),
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delays := []time.Duration{
					30 * time.Second,
					2 * time.Minute,
					10 * time.Minute,
				}
				if n < len(delays) {
					return delays[n]
				}
				return 30 * time.Minute
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.Use(func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.Worker.JobTimeout)
			defer cancel()
			return next.ProcessTask(ctx, task)
		})
	})
	mux.HandleFunc(alert.TypeLeakAlert, leakHandler.ProcessTask)
	mux.HandleFunc(alert.TypeThresholdAlert, thresholdHandler.ProcessTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatal(context.Background(), "Failed to start alert worker", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(context.Background(), "Shutting down alert worker...", nil)
	srv.Shutdown()
	log.Info(context.Background(), "Alert worker exited gracefully", nil)
}

func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Address(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to Redis: %w", err)
	}

	return client, nil
}
