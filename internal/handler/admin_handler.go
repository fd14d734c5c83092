package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orchids/event-stream/internal/cache"
	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/internal/hub"
	"github.com/orchids/event-stream/internal/monitor"
	"github.com/orchids/event-stream/internal/queue"
	"github.com/orchids/event-stream/pkg/logger"
	"github.com/orchids/event-stream/pkg/response"
)

type AdminHandler struct {
	pool     *hub.Pool
	router   *hub.Router
	governor *monitor.Governor
	detector *monitor.LeakDetector
	resource *monitor.ResourceMonitor
	results  *cache.Cache
	queue    *queue.PriorityQueue
	log      *logger.Logger
}

func NewAdminHandler(
	pool *hub.Pool,
	router *hub.Router,
	governor *monitor.Governor,
	detector *monitor.LeakDetector,
	resource *monitor.ResourceMonitor,
	results *cache.Cache,
	q *queue.PriorityQueue,
	log *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		pool:     pool,
		router:   router,
		governor: governor,
		detector: detector,
		resource: resource,
		results:  results,
		queue:    q,
		log:      log,
	}
}

func (h *AdminHandler) GetPoolStats(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"active_connections": h.pool.Count(),
		"max_connections":    h.pool.MaxSize(),
	})
}

// GetConnection reports live status for one connection by id.
func (h *AdminHandler) GetConnection(c *gin.Context) {
	status, err := h.router.Status(c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			response.NotFound(c, "Connection not found")
			return
		}
		response.InternalError(c, "Failed to read connection status")
		return
	}
	response.Success(c, http.StatusOK, status)
}

func (h *AdminHandler) GetGovernorReport(c *gin.Context) {
	response.Success(c, http.StatusOK, h.governor.Report())
}

func (h *AdminHandler) GetLeakReport(c *gin.Context) {
	response.Success(c, http.StatusOK, h.detector.Report())
}

func (h *AdminHandler) GetCacheStats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.results.Stats())
}

func (h *AdminHandler) GetQueueStats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.queue.Stats())
}

func (h *AdminHandler) GetMetrics(c *gin.Context) {
	window := 10
	response.Success(c, http.StatusOK, gin.H{
		"average": h.resource.WindowedAverage(window),
		"window":  window,
	})
}

// ForceCleanup is the operator's emergency valve; it closes dead
// connections synchronously and reports how many were reclaimed.
func (h *AdminHandler) ForceCleanup(c *gin.Context) {
	ctx := c.Request.Context()

	reclaimed := h.governor.ForceCleanup()
	h.log.Info(ctx, "force cleanup executed", map[string]interface{}{
		"reclaimed": reclaimed,
	})
	response.Success(c, http.StatusOK, gin.H{"reclaimed": reclaimed})
}
