package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/salachat/internal/pubsub"
	"go.uber.org/zap"
)

// Pinger is satisfied by *db.DB.
type Pinger interface {
	Health(ctx context.Context) error
}

// BrokerStats is satisfied by every pubsub.Broker and by *realtime.Hub.
type BrokerStats interface {
	Stats() pubsub.Stats
}

// HealthHandler answers load balancer checks. It is public.
type HealthHandler struct {
	db      Pinger
	broker  string
	stats   BrokerStats
	timeout time.Duration
	logger  *zap.Logger
}

func NewHealthHandler(db Pinger, brokerName string, stats BrokerStats, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		broker:  brokerName,
		stats:   stats,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// Health handles GET /v1/health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	stats := h.stats.Stats()
	body := gin.H{
		"status":        "ok",
		"broker":        h.broker,
		"groups":        stats.Groups,
		"subscriptions": stats.Subscriptions,
	}

	if err := h.db.Health(ctx); err != nil {
		h.logger.Warn("health check: database unreachable", zap.Error(err))
		body["status"] = "degraded"
		body["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	c.JSON(http.StatusOK, body)
}
