// Package api exposes the insight engine over HTTP. Handlers stay thin: they
// bind and validate transport concerns, delegate to the service facade, and
// map domain errors onto status codes.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pythiastack/pythia-insights/internal/engine"
	"github.com/pythiastack/pythia-insights/internal/llm"
	"github.com/pythiastack/pythia-insights/internal/models"
	"github.com/pythiastack/pythia-insights/internal/services"
	"github.com/pythiastack/pythia-insights/internal/tasks"
)

// Handlers wires the service facade into gin routes.
type Handlers struct {
	logger  *slog.Logger
	service *services.InsightService
}

// NewHandlers constructs the HTTP handler set.
func NewHandlers(logger *slog.Logger, service *services.InsightService) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{logger: logger, service: service}
}

// Register attaches all routes to the router.
func (h *Handlers) Register(router *gin.Engine) {
	router.GET("/healthz", h.health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/insights", h.generateInsight)
		v1.GET("/insights/history/:user_id", h.insightHistory)
		v1.POST("/async/insights", h.submitAsync)
		v1.GET("/async/tasks/:task_id", h.taskStatus)
		v1.GET("/monitoring/drift", h.driftReport)
	}
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) generateInsight(c *gin.Context) {
	var req models.InsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.TenantID == "" {
		req.TenantID = c.GetHeader("X-Tenant-ID")
	}

	insight, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, insight)
}

func (h *Handlers) submitAsync(c *gin.Context) {
	var req models.InsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.TenantID == "" {
		req.TenantID = c.GetHeader("X-Tenant-ID")
	}

	taskID, err := h.service.SubmitAsync(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"task_id": taskID,
		"status":  models.TaskSubmitted,
	})
}

func (h *Handlers) taskStatus(c *gin.Context) {
	record, err := h.service.TaskStatus(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handlers) insightHistory(c *gin.Context) {
	query := models.HistoryQuery{
		UserID:   c.Param("user_id"),
		TenantID: c.Query("tenant_id"),
	}
	if query.TenantID == "" {
		query.TenantID = c.GetHeader("X-Tenant-ID")
	}
	if raw := c.Query("severity"); raw != "" {
		query.Severity = models.ParseSeverity(raw)
	}
	query.Limit = intQuery(c, "limit", 50)
	query.Offset = intQuery(c, "offset", 0)

	page, err := h.service.History(c.Request.Context(), query)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handlers) driftReport(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		tenantID = c.GetHeader("X-Tenant-ID")
	}
	report, err := h.service.DriftReport(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// writeError maps domain errors onto HTTP status codes.
func (h *Handlers) writeError(c *gin.Context, err error) {
	if retryAfter, ok := engine.IsRateLimited(err); ok {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":               "rate limit exceeded",
			"retry_after_seconds": int(retryAfter.Seconds()),
		})
		return
	}

	var exhausted *llm.ExhaustedError
	if errors.As(err, &exhausted) {
		providers := make([]gin.H, 0, len(exhausted.Failures))
		for _, f := range exhausted.Failures {
			providers = append(providers, gin.H{
				"provider": f.Provider,
				"kind":     string(llm.KindOf(f.Err)),
				"error":    fmt.Sprintf("%v", f.Err),
			})
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "all generation providers failed",
			"failures": providers,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tasks.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, tasks.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task queue is full, retry later"})
	default:
		h.logger.Error("request failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
