package rulebook

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/dealscope/internal/logging"
	"github.com/mbd888/dealscope/internal/metrics"
	"github.com/mbd888/dealscope/internal/scoring"
	"github.com/mbd888/dealscope/internal/validation"
)

// Handler exposes the rulebook and the pure scoring primitives over HTTP
type Handler struct {
	rb *Rulebook
}

// NewHandler creates a new rulebook handler
func NewHandler(rb *Rulebook) *Handler {
	return &Handler{rb: rb}
}

// RegisterRoutes sets up rulebook and scoring endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/rulebook", h.GetRulebook)
	r.POST("/items/evaluate", h.EvaluateItem)
	r.POST("/modules/:name/evaluate", h.EvaluateModule)
	r.POST("/classify", h.Classify)
}

// GetRulebook returns the active configuration.
// GET /v1/rulebook
func (h *Handler) GetRulebook(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rulebook": h.rb,
		"rules":    h.rb.RuleNames(),
	})
}

// EvaluateItemRequest carries either an inline rule or the name of one.
type EvaluateItemRequest struct {
	RawValue string        `json:"rawValue"`
	RuleName string        `json:"ruleName,omitempty"`
	Rule     *scoring.Rule `json:"rule,omitempty"`
}

// EvaluateItem scores one raw value.
// POST /v1/items/evaluate
func (h *Handler) EvaluateItem(c *gin.Context) {
	var req EvaluateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var rule scoring.Rule
	switch {
	case req.Rule != nil && req.RuleName != "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Provide rule or ruleName, not both"})
		return
	case req.Rule != nil:
		if err := req.Rule.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_rule", "message": err.Error()})
			return
		}
		rule = *req.Rule
	case req.RuleName != "":
		r, err := h.rb.Rule(req.RuleName)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule_not_found", "message": err.Error()})
			return
		}
		rule = r
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "rule or ruleName is required"})
		return
	}

	res := scoring.EvaluateItem(req.RawValue, rule)
	if res.ParseFailed {
		metrics.ParseFallbacksTotal.WithLabelValues("item").Inc()
		logging.L(c.Request.Context()).Warn("item scored from fallback",
			"rule", req.RuleName, "raw_value", validation.SanitizeString(req.RawValue, 64))
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

// EvaluateModuleRequest maps item labels to raw values.
type EvaluateModuleRequest struct {
	Values map[string]string `json:"values"`
}

// EvaluateModule scores a deal's KPI table.
// POST /v1/modules/:name/evaluate
func (h *Handler) EvaluateModule(c *gin.Context) {
	var req EvaluateModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	name := c.Param("name")
	sum, err := h.rb.EvaluateModule(name, req.Values)
	if errors.Is(err, ErrUnknownModule) {
		c.JSON(http.StatusNotFound, gin.H{"error": "module_not_found", "message": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to evaluate module"})
		return
	}

	if sum.Fallbacks > 0 {
		metrics.ParseFallbacksTotal.WithLabelValues(sum.Name).Add(float64(sum.Fallbacks))
		logging.L(c.Request.Context()).Warn("module items scored from fallback",
			"module", sum.Name, "fallbacks", sum.Fallbacks)
	}
	c.JSON(http.StatusOK, gin.H{
		"summary": sum,
		"percent": sum.Percent(),
	})
}

// ClassifyRequest is the body of POST /v1/classify.
type ClassifyRequest struct {
	TotalScore *float64 `json:"totalScore" binding:"required"`
}

// Classify maps a total score to a risk level with the active thresholds.
// POST /v1/classify
func (h *Handler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"totalScore": *req.TotalScore,
		"riskLevel":  h.rb.Thresholds.Classify(*req.TotalScore),
		"thresholds": h.rb.Thresholds,
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": "Request body failed validation",
		"details": validation.FromBinding(err),
	})
}
