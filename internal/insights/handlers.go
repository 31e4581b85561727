package insights

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/dealscope/internal/circuitbreaker"
	"github.com/mbd888/dealscope/internal/logging"
	"github.com/mbd888/dealscope/internal/validation"
)

// Handler forwards insight requests to a Generator
type Handler struct {
	gen Generator
}

// NewHandler creates a new insights handler
func NewHandler(gen Generator) *Handler {
	return &Handler{gen: gen}
}

// RegisterRoutes sets up insights endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/insights", h.Generate)
}

// Generate returns a narrative for the posted scores.
// POST /v1/insights
func (h *Handler) Generate(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body failed validation",
			"details": validation.FromBinding(err),
		})
		return
	}

	ins, err := h.gen.Generate(c.Request.Context(), req)
	var se *StatusError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"insight": ins})
	case errors.Is(err, ErrNotConfigured):
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":   "insights_disabled",
			"message": "No insights service is configured",
		})
	case errors.Is(err, circuitbreaker.ErrOpen):
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "insights_unavailable",
			"message": "Insights service is temporarily unavailable",
		})
	case errors.As(err, &se) && se.Code < 500:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "insights_rejected",
			"message": "Insights service rejected the request",
		})
	default:
		logging.L(c.Request.Context()).Error("insight generation failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "insights_failed",
			"message": "Insights service failed",
		})
	}
}
