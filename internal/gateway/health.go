package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xynes/accounts-service/pkg/database"
)

// RequiredSchema must exist before the service reports ready.
const RequiredSchema = "identity"

const readyTimeout = 2 * time.Second

// ReadyChecker is the database handle probed by /ready.
type ReadyChecker interface {
	database.DB
	Ping(ctx context.Context) error
}

// Health serves liveness and readiness probes.
type Health struct {
	db     ReadyChecker
	logger *zap.Logger
}

// NewHealth creates the probe handlers.
func NewHealth(db ReadyChecker, logger *zap.Logger) *Health {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Health{db: db, logger: logger}
}

// Register mounts /health and /ready on r.
func (h *Health) Register(r gin.IRouter) {
	r.GET("/health", h.Live)
	r.GET("/ready", h.Ready)
}

// Live always reports ok while the process serves requests.
func (h *Health) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the database is reachable and migrated.
func (h *Health) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	err := h.db.Ping(ctx)
	if err == nil {
		var ok bool
		ok, err = database.SchemaExists(ctx, h.db, RequiredSchema)
		if err == nil && !ok {
			err = errSchemaMissing
		}
	}
	if err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": "service not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

var errSchemaMissing = errors.New("schema " + RequiredSchema + " missing")
