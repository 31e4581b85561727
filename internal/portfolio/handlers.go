package portfolio

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/dealscope/internal/scoring"
	"github.com/mbd888/dealscope/internal/validation"
)

// Handler provides the portfolio roll-up endpoint
type Handler struct {
	thresholds scoring.Thresholds
}

// NewHandler creates a handler that classifies with t.
func NewHandler(t scoring.Thresholds) *Handler {
	return &Handler{thresholds: t}
}

// RegisterRoutes sets up portfolio endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/portfolio/summary", h.Summary)
}

// SummaryRequest is the body of POST /v1/portfolio/summary.
type SummaryRequest struct {
	Deals []Deal `json:"deals" binding:"required,dive"`
}

// Summary rolls the posted deals up.
func (h *Handler) Summary(c *gin.Context) {
	var req SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain a 'deals' array",
			"details": validation.FromBinding(err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": Summarize(req.Deals, h.thresholds)})
}
