package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/orchids/event-stream/internal/alert"
	"github.com/orchids/event-stream/internal/cache"
	"github.com/orchids/event-stream/internal/config"
	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/internal/handler"
	"github.com/orchids/event-stream/internal/hub"
	"github.com/orchids/event-stream/internal/monitor"
	"github.com/orchids/event-stream/internal/queue"
	"github.com/orchids/event-stream/pkg/logger"
)

const eventQueueName = "events"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Environment, cfg.LogLevel)
	log.Info(context.Background(), "Starting event stream gateway", map[string]interface{}{
		"environment":     cfg.Server.Environment,
		"port":            cfg.Server.Port,
		"max_connections": cfg.Pool.MaxConnections,
	})

	redisClient, err := initRedis(cfg)
	if err != nil {
		log.Fatal(context.Background(), "Failed to initialize Redis", err, nil)
	}
	defer redisClient.Close()
	log.Info(context.Background(), "Redis connection established", nil)

	pool := hub.NewPool(cfg.Pool.MaxConnections)
	router := hub.NewRouter(hub.RouterConfig{
		HeartbeatInterval: cfg.Pool.HeartbeatInterval,
		CleanupInterval:   cfg.Pool.CleanupInterval,
		ConnectionTimeout: cfg.Pool.ConnectionTimeout,
	}, pool, log.Component("router"))

	eventQueue := queue.NewPriorityQueue(cfg.Queue.MaxSize)
	spill := queue.NewSpillover(queue.NewRedisStore(redisClient), eventQueue, eventQueueName, log.Component("spillover"))

	resource, err := monitor.NewResourceMonitor(monitor.ResourceMonitorConfig{
		MemoryThresholdMB: cfg.Monitor.MemoryThresholdMB,
		CPUThresholdPct:   cfg.Monitor.CPUThresholdPct,
		HistorySize:       cfg.Monitor.HistorySize,
	}, pool, eventQueue)
	if err != nil {
		log.Fatal(context.Background(), "Failed to initialize resource monitor", err, nil)
	}

	governor := monitor.NewGovernor(monitor.GovernorConfig{
		MinConnections:    cfg.Pool.MinConnections,
		ConnectionTimeout: cfg.Pool.ConnectionTimeout,
		CheckInterval:     cfg.Monitor.CheckInterval,
		ScaleDownRatio:    cfg.Pool.ScaleDownRatio,
		ScaleUpRatio:      cfg.Pool.ScaleUpRatio,
		EmergencyBatch:    cfg.Pool.EmergencyBatch,
	}, pool, router, resource, log.Component("governor"))

	detector := monitor.NewLeakDetector(log.Component("leaks"))
	router.OnAccept(func(conn *domain.Connection) {
		detector.Track(conn.ID, "connection", map[string]string{
			"subject_id": conn.SubjectID,
			"owner_id":   conn.OwnerID,
		})
	})
	router.OnDisconnect(governor.NoteDisconnect)
	router.OnDisconnect(func(conn *domain.Connection, reason string) {
		detector.Release(conn.ID)
	})

	alertClient := alert.NewClient(cfg.Redis.Address(), log)
	defer alertClient.Close()

	governor.OnCritical(func(warnings []string, metrics domain.Metrics) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := alertClient.EnqueueThresholdAlert(ctx, warnings, metrics); err != nil {
			log.Error(ctx, "failed to publish threshold alert", err, nil)
		}
	})

	results := cache.New(
		cfg.Cache.MaxEntries,
		cfg.Cache.MaxMemoryMB*1024*1024,
		cfg.Cache.DefaultTTL,
		cache.ParseStrategy(cfg.Cache.Strategy),
	)

	processor := queue.NewBatchProcessor(queue.BatchProcessorConfig{
		QueueName:   eventQueueName,
		BatchSize:   cfg.Queue.BatchSize,
		MaxWaitTime: cfg.Queue.MaxWaitTime,
		WorkerCount: cfg.Queue.WorkerCount,
		ResultTTL:   cfg.Queue.ResultTTL,
	}, eventQueue, results, fanOutBatch(router, log), log.Component("batch"))

	ctx := context.Background()
	router.Start(ctx)
	governor.Start(ctx)
	processor.Start(ctx)
	spill.Start(ctx)
	detector.StartWatch(ctx, cfg.Monitor.LeakCheckInterval, cfg.Monitor.LeakTimeout, func(leak domain.ResourceLeak) {
		if leak.Level != domain.LeakLevelError && leak.Level != domain.LeakLevelCritical {
			return
		}
		alertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := alertClient.EnqueueLeakAlert(alertCtx, leak); err != nil {
			log.Error(alertCtx, "failed to publish leak alert", err, nil)
		}
	})

	streamHandler := handler.NewStreamHandler(router, log)
	streamHandler.OnActivity(func(id string) {
		governor.NoteReuse(id)
		detector.Touch(id)
	})
	eventHandler := handler.NewEventHandler(eventQueue, eventQueueName, processor, spill, cfg.Queue.MessageTTL, log)
	adminHandler := handler.NewAdminHandler(pool, router, governor, detector, resource, results, eventQueue, log)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestIDMiddleware())
	engine.Use(LoggerMiddleware(log))
	engine.Use(CORSMiddleware())

	engine.GET("/health", func(c *gin.Context) {
		redisHealthy := redisClient.Ping(c.Request.Context()).Err() == nil

		status := "healthy"
		httpStatus := http.StatusOK
		if !redisHealthy {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, gin.H{
			"status": status,
			"checks": gin.H{
				"redis": redisHealthy,
				"pool":  pool.Count() < pool.MaxSize(),
			},
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	engine.GET("/ws", streamHandler.Stream)

	api := engine.Group("/api")
	{
		api.POST("/events", eventHandler.Publish)
		api.GET("/events/:id/result", eventHandler.GetResult)
	}

	admin := engine.Group("/api/admin")
	{
		admin.GET("/pool", adminHandler.GetPoolStats)
		admin.GET("/connections/:id", adminHandler.GetConnection)
		admin.GET("/governor", adminHandler.GetGovernorReport)
		admin.GET("/leaks", adminHandler.GetLeakReport)
		admin.GET("/cache", adminHandler.GetCacheStats)
		admin.GET("/queues", adminHandler.GetQueueStats)
		admin.GET("/metrics", adminHandler.GetMetrics)
		admin.POST("/cleanup", adminHandler.ForceCleanup)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info(context.Background(), "HTTP server starting", map[string]interface{}{
			"address": cfg.Server.Address(),
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(context.Background(), "Failed to start server", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(context.Background(), "Shutting down gateway...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(context.Background(), "Server forced to shutdown", err, nil)
	}

	spill.Stop()
	processor.Stop()
	detector.StopWatch()
	governor.Stop()
	router.Stop()

	log.Info(context.Background(), "Gateway exited gracefully", nil)
}

// fanOutBatch builds the batch-processing function: each queued envelope is
// broadcast on its subject, owner, or event-type scope, and the delivery
// count becomes the cached result.
func fanOutBatch(router *hub.Router, log *logger.Logger) queue.ProcessFunc {
	return func(ctx context.Context, msgs []*domain.QueuedMessage) (map[string]interface{}, error) {
		results := make(map[string]interface{}, len(msgs))
		for _, msg := range msgs {
			var env domain.EventEnvelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				log.Error(ctx, "failed to decode event envelope", err, map[string]interface{}{
					"message_id": msg.ID,
				})
				continue
			}

			var sent int
			switch {
			case env.SubjectID != "":
				sent = router.BroadcastToSubject(env.SubjectID, domain.NewEventFrame(env.EventType, env.Data))
			case env.OwnerID != "":
				sent = router.BroadcastToOwner(env.OwnerID, domain.NewEventFrame(env.EventType, env.Data))
			default:
				sent = router.BroadcastEvent(env.EventType, env.Data)
			}

			results[msg.ID] = map[string]interface{}{
				"event_type": string(env.EventType),
				"sent":       sent,
			}
		}
		return results, nil
	}
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

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		ctx := context.WithValue(c.Request.Context(), "request_id", requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		clientIP := c.ClientIP()
		method := c.Request.Method
		statusCode := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info(c.Request.Context(), "HTTP request", map[string]interface{}{
			"method":     method,
			"path":       path,
			"status":     statusCode,
			"latency_ms": latency.Milliseconds(),
			"client_ip":  clientIP,
			"user_agent": c.Request.UserAgent(),
		})
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
