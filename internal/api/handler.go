// Package api exposes the read-only observability surface: rules, execution
// logs, health, and metrics, plus a mutation-event ingestion endpoint for
// integrations that deliver events over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quillon/ruleflow/internal/dispatch"
	"github.com/quillon/ruleflow/internal/engine"
	"github.com/quillon/ruleflow/internal/logger"
	"github.com/quillon/ruleflow/internal/models"
	"github.com/quillon/ruleflow/internal/record"
	"github.com/quillon/ruleflow/internal/store"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	rules      store.RuleStore
	logs       store.LogStore
	dispatcher *dispatch.Dispatcher
	eng        *engine.Engine
}

// New builds the router with all routes registered.
func New(rules store.RuleStore, logs store.LogStore, d *dispatch.Dispatcher, eng *engine.Engine) *gin.Engine {
	h := &Handler{rules: rules, logs: logs, dispatcher: d, eng: eng}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLog())

	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/rules", h.listRules)
		v1.GET("/rules/:id", h.getRule)
		v1.GET("/executions", h.listExecutions)
		v1.GET("/executions/:id", h.getExecution)
		v1.POST("/events", h.ingestEvent)
	}
	return r
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) readyz(c *gin.Context) {
	util := h.eng.QueueUtilization()
	if util >= 1 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "queue full", "queue_utilization": util})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "queue_utilization": util})
}

func (h *Handler) listRules(c *gin.Context) {
	rules, err := h.rules.List(c.Request.Context(), c.Query("tenant"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *Handler) getRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}
	rule, err := h.rules.Get(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *Handler) listExecutions(c *gin.Context) {
	q := store.LogQuery{
		TenantID:   c.Query("tenant"),
		Status:     models.LogStatus(c.Query("status")),
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
	}
	if s := c.Query("rule_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule_id"})
			return
		}
		rid := uint(id)
		q.RuleID = &rid
	}
	if s := c.Query("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		q.From = &t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		q.To = &t
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		q.Limit = n
	}

	logs, err := h.logs.Query(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": logs})
}

func (h *Handler) getExecution(c *gin.Context) {
	log, err := h.logs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, log)
}

type eventRequest struct {
	EntityType string                       `json:"entity_type" binding:"required"`
	Event      string                       `json:"event" binding:"required"`
	RecordID   string                       `json:"record_id" binding:"required"`
	Changes    map[string]record.FieldDelta `json:"changes"`
	Snapshot   map[string]interface{}       `json:"snapshot"`
}

func (h *Handler) ingestEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch models.EventKind(req.Event) {
	case models.EventCreated, models.EventUpdated, models.EventDeleted:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "event must be created, updated, or deleted"})
		return
	}

	h.dispatcher.OnMutation(c.Request.Context(), record.Mutation{
		EntityType: req.EntityType,
		Kind:       req.Event,
		RecordID:   req.RecordID,
		Changes:    req.Changes,
		Snapshot:   req.Snapshot,
	})
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
