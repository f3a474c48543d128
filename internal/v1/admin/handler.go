// Package admin serves the hub's read-only HTTP surface.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gauravbhatia4601/meet/internal/v1/registry"
)

// Handler serves health and statistics endpoints. Neither mutates state.
type Handler struct {
	registry *registry.Registry
}

// NewHandler creates the admin handler over the given registry.
func NewHandler(reg *registry.Registry) *Handler {
	return &Handler{registry: reg}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Stats handles GET /stats. The snapshot is consistent per room, not across
// rooms; counts may skew by in-flight joins, which is fine for an admin view.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Stats())
}
