package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/pkg/logger"
)

// PoolView is the read-side of the connection registry the governor needs.
// The governor only ever refers to connections by id; removal always goes
// through the Closer.
type PoolView interface {
	Count() int
	MaxSize() int
	IdleIDs(now time.Time, olderThan time.Duration) []string
	DeadIDs() []string
}

type Closer interface {
	Disconnect(id, reason string)
}

// CriticalFunc is invoked when a health tick trips a hard threshold.
type CriticalFunc func(warnings []string, metrics domain.Metrics)

type GovernorConfig struct {
	MinConnections    int
	ConnectionTimeout time.Duration
	CheckInterval     time.Duration
	ScaleDownRatio    float64
	ScaleUpRatio      float64
	EmergencyBatch    int
}

// Governor periodically classifies pool health from fresh metrics and
// remediates pressure by closing idle connections. Health is derived on
// every tick, not a stored state machine.
type Governor struct {
	cfg     GovernorConfig
	pool    PoolView
	closer  Closer
	monitor *ResourceMonitor
	log     *logger.Logger

	mu            sync.Mutex
	health        domain.PoolHealth
	lastWarnings  []string
	reuse         map[string]int64
	lifetimeMean  float64
	lifetimeCount int64

	emergencyCleanups int64
	reclaimed         int64

	onCritical CriticalFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGovernor(cfg GovernorConfig, pool PoolView, closer Closer, monitor *ResourceMonitor, log *logger.Logger) *Governor {
	if cfg.EmergencyBatch <= 0 {
		cfg.EmergencyBatch = 50
	}
	return &Governor{
		cfg:     cfg,
		pool:    pool,
		closer:  closer,
		monitor: monitor,
		log:     log,
		health:  domain.PoolHealthy,
		reuse:   make(map[string]int64),
	}
}

// OnCritical installs the sink for hard-threshold breaches. Must be set
// before Start.
func (g *Governor) OnCritical(fn CriticalFunc) {
	g.onCritical = fn
}

// NoteDisconnect folds a closed connection's lifetime into the running
// average and drops its reuse counter. Wire it as a router disconnect hook.
func (g *Governor) NoteDisconnect(conn *domain.Connection, reason string) {
	lifetime := time.Since(conn.CreatedAt).Seconds()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.lifetimeCount++
	g.lifetimeMean += (lifetime - g.lifetimeMean) / float64(g.lifetimeCount)
	delete(g.reuse, conn.ID)
}

// NoteReuse bumps the per-connection reuse counter.
func (g *Governor) NoteReuse(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reuse[id]++
}

func (g *Governor) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	g.wg.Add(1)
	go g.run(ctx)
}

func (g *Governor) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
}

func (g *Governor) run(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick(ctx)
		}
	}
}

func (g *Governor) tick(ctx context.Context) {
	metrics, err := g.monitor.Sample()
	if err != nil {
		g.log.Warn(ctx, "metric sampling failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	critical, warnings := g.monitor.CheckThresholds(metrics)
	health := g.Classify(metrics, critical)

	g.mu.Lock()
	g.health = health
	g.lastWarnings = warnings
	g.mu.Unlock()

	if critical {
		g.log.Warn(ctx, "resource thresholds breached", map[string]interface{}{
			"warnings": warnings,
			"health":   string(health),
		})
		g.EmergencyCleanup()
		if g.onCritical != nil {
			g.onCritical(warnings, metrics)
		}
		return
	}

	g.Optimize()
}

// Classify derives the health label for one tick. Critical dominates,
// then overload, then pressure.
func (g *Governor) Classify(metrics domain.Metrics, critical bool) domain.PoolHealth {
	switch {
	case critical:
		return domain.PoolCritical
	case g.pool.MaxSize() > 0 &&
		float64(metrics.ActiveConnections) > 0.9*float64(g.pool.MaxSize()):
		return domain.PoolOverloaded
	case metrics.CPUPercent > 50 || metrics.MemoryPercent > 70:
		return domain.PoolDegraded
	default:
		return domain.PoolHealthy
	}
}

// EmergencyCleanup closes connections idle past half the configured
// timeout, capped per invocation so one tick stays cheap.
func (g *Governor) EmergencyCleanup() int {
	ids := g.pool.IdleIDs(time.Now(), g.cfg.ConnectionTimeout/2)
	if len(ids) > g.cfg.EmergencyBatch {
		ids = ids[:g.cfg.EmergencyBatch]
	}
	for _, id := range ids {
		g.closer.Disconnect(id, "emergency_cleanup")
	}

	g.mu.Lock()
	g.emergencyCleanups++
	g.reclaimed += int64(len(ids))
	g.mu.Unlock()
	return len(ids)
}

// Optimize runs one routine pass: scale down toward the floor under low
// utilization, or prepare capacity under high utilization.
func (g *Governor) Optimize() {
	active := g.pool.Count()
	max := g.pool.MaxSize()
	if max <= 0 {
		return
	}
	util := float64(active) / float64(max)

	switch {
	case util < g.cfg.ScaleDownRatio && active > g.cfg.MinConnections:
		excess := active - g.cfg.MinConnections
		ids := g.pool.IdleIDs(time.Now(), 0)
		if len(ids) > excess {
			ids = ids[:excess]
		}
		for _, id := range ids {
			g.closer.Disconnect(id, "scale_down")
		}
		g.mu.Lock()
		g.reclaimed += int64(len(ids))
		g.mu.Unlock()
	case util > g.cfg.ScaleUpRatio:
		g.prepareCapacity()
	}
}

// prepareCapacity is the scale-up hook. Pre-warming strategies plug in
// here; the default is a no-op.
func (g *Governor) prepareCapacity() {}

// ForceCleanup synchronously closes every connection flagged not-alive and
// triggers one collection pass. Caller-invoked emergency valve, distinct
// from the periodic loop. The normal disconnect path flags and removes
// atomically, so this reclaims only connections marked dead out of band
// and usually reports zero.
func (g *Governor) ForceCleanup() int {
	ids := g.pool.DeadIDs()
	for _, id := range ids {
		g.closer.Disconnect(id, "force_cleanup")
	}
	runtime.GC()

	g.mu.Lock()
	g.reclaimed += int64(len(ids))
	g.mu.Unlock()
	return len(ids)
}

func (g *Governor) Report() domain.GovernorReport {
	g.mu.Lock()
	defer g.mu.Unlock()

	active := g.pool.Count()
	max := g.pool.MaxSize()
	util := 0.0
	if max > 0 {
		util = float64(active) / float64(max)
	}
	return domain.GovernorReport{
		Health:                g.health,
		ActiveConnections:     active,
		MaxConnections:        max,
		Utilization:           util,
		EmergencyCleanups:     g.emergencyCleanups,
		ConnectionsReclaimed:  g.reclaimed,
		AvgConnectionLifetime: time.Duration(g.lifetimeMean * float64(time.Second)),
		Warnings:              g.lastWarnings,
		CheckedAt:             time.Now(),
	}
}
