package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ecortez91/sentinel-sub001/config"
	"github.com/ecortez91/sentinel-sub001/internal/agent"
	"github.com/ecortez91/sentinel-sub001/internal/cache"
	"github.com/ecortez91/sentinel-sub001/internal/docker"
	"github.com/ecortez91/sentinel-sub001/internal/notify"
	"github.com/ecortez91/sentinel-sub001/internal/process"
	"github.com/ecortez91/sentinel-sub001/internal/system"
)

const version = "1.0.0"

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	cfg       *config.Config
	agent     *agent.Agent
	collector *system.Collector
	processes *process.Lister
	watcher   *docker.Watcher
	notifier  *notify.Notifier
	cache     *cache.Cache
	auth      *AuthService
}

// NewHandlers wires the handlers. The watcher and notifier may be nil
// when Docker or SMTP are not configured; their endpoints then return
// 503.
func NewHandlers(cfg *config.Config, a *agent.Agent, notifier *notify.Notifier, auth *AuthService) *Handlers {
	h := &Handlers{
		cfg:       cfg,
		agent:     a,
		collector: system.NewCollector(),
		processes: process.NewLister(),
		notifier:  notifier,
		cache:     cache.New(cache.MetricsTTL),
		auth:      auth,
	}

	if cfg.DockerEnabled {
		if w, err := docker.NewWatcher(); err == nil {
			h.watcher = w
		}
	}

	return h
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   version,
	})
}

// GetThermal handles GET /api/thermal
func (h *Handlers) GetThermal(c *gin.Context) {
	snap := h.agent.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "thermal data unavailable"})
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, snap.Text())
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetThermalHistory handles GET /api/thermal/history
func (h *Handlers) GetThermalHistory(c *gin.Context) {
	store := h.agent.History()

	if sensor := c.Query("sensor"); sensor != "" {
		stat, ok := store.Get(sensor)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown sensor"})
			return
		}
		c.JSON(http.StatusOK, stat)
		return
	}

	points := c.Query("points") == "true"
	c.JSON(http.StatusOK, gin.H{"sensors": store.Stats(points)})
}

// GetShutdownStatus handles GET /api/shutdown
func (h *Handlers) GetShutdownStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.agent.Status())
}

// AbortShutdown handles POST /api/shutdown/abort
func (h *Handlers) AbortShutdown(c *gin.Context) {
	if err := h.agent.Abort(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "aborted"})
}

// GetAlerts handles GET /api/alerts
func (h *Handlers) GetAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": h.agent.RecentAlerts()})
}

// GetMetrics handles GET /api/metrics
func (h *Handlers) GetMetrics(c *gin.Context) {
	metrics, err := h.cache.GetOrSet(cache.KeyMetrics, func() (interface{}, error) {
		return h.collector.Collect()
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// GetSensorTemps handles GET /api/metrics/sensors
func (h *Handlers) GetSensorTemps(c *gin.Context) {
	temps, err := h.collector.SensorTemps()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sensors": temps})
}

// ListProcesses handles GET /api/processes
func (h *Handlers) ListProcesses(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	list, err := h.processes.TopByCPU(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// ListContainers handles GET /api/containers
func (h *Handlers) ListContainers(c *gin.Context) {
	if h.watcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "docker not available"})
		return
	}

	if cached, ok := h.cache.Get(cache.KeyContainers); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	ctx, cancel := timeoutCtx(c)
	defer cancel()
	list, err := h.watcher.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.cache.SetWithTTL(cache.KeyContainers, list, cache.ContainersTTL)
	c.JSON(http.StatusOK, list)
}

// TestNotification handles POST /api/notify/test
func (h *Handlers) TestNotification(c *gin.Context) {
	if h.notifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email notifications not configured"})
		return
	}

	ctx, cancel := timeoutCtx(c)
	defer cancel()
	if err := h.notifier.SendTest(ctx, h.collector.Hostname()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// IssueToken handles POST /api/auth/token. Callers authenticate with
// the API key and receive a JWT for subsequent requests.
func (h *Handlers) IssueToken(c *gin.Context) {
	token, err := h.auth.GenerateToken("operator", DefaultTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(DefaultTokenTTL.Seconds()),
	})
}

// Close releases handler resources.
func (h *Handlers) Close() error {
	if h.watcher != nil {
		return h.watcher.Close()
	}
	return nil
}

func timeoutCtx(c *gin.Context) (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}
