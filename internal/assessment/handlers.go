package assessment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/dealscope/internal/logging"
	"github.com/mbd888/dealscope/internal/metrics"
	"github.com/mbd888/dealscope/internal/pagination"
	"github.com/mbd888/dealscope/internal/propagation"
	"github.com/mbd888/dealscope/internal/scoring"
	"github.com/mbd888/dealscope/internal/validation"
)

// Handler provides HTTP endpoints for assessments
type Handler struct {
	service *Service
}

// NewHandler creates a new assessment handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up assessment endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/score", h.Score)
	r.POST("/assessments", h.CreateAssessment)
	r.GET("/assessments/:assessmentId", h.GetAssessment)
	r.GET("/companies/:id/assessments", validation.CompanyIDParamMiddleware(), h.CompanyHistory)
}

// ScoreResponse is the single-company result.
type ScoreResponse struct {
	AssessmentID string `json:"assessmentId"`
	scoring.CompanyRiskScore
	DroppedEdges []propagation.DroppedEdge `json:"droppedEdges,omitempty"`
}

// Score scores one company against known neighbors.
// POST /v1/score
func (h *Handler) Score(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.CompanyID != "" && !validation.IsValidCompanyID(req.CompanyID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_company_id",
			"message": "company id may contain letters, digits and . _ : - only",
		})
		return
	}

	a, err := h.service.ScoreOne(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ScoreResponse{
		AssessmentID:     a.ID,
		CompanyRiskScore: a.Companies[0].CompanyRiskScore,
		DroppedEdges:     a.Dropped,
	})
}

// CreateAssessment evaluates a full snapshot.
// POST /v1/assessments
func (h *Handler) CreateAssessment(c *gin.Context) {
	var snap Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		badRequest(c, err)
		return
	}
	for _, co := range snap.Companies {
		if !validation.IsValidCompanyID(co.ID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_company_id",
				"message": "company id " + validation.SanitizeString(co.ID, validation.MaxIDLength) + " may contain letters, digits and . _ : - only",
			})
			return
		}
	}

	a, err := h.service.Assess(c.Request.Context(), snap)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"assessment":   a,
		"distribution": a.Distribution(),
	})
}

// GetAssessment returns a recorded assessment.
// GET /v1/assessments/:assessmentId
func (h *Handler) GetAssessment(c *gin.Context) {
	store := h.service.Store()
	if store == nil {
		notRecorded(c)
		return
	}
	a, err := store.Get(c.Request.Context(), c.Param("assessmentId"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "assessment_not_found",
			"message": "No assessment with that id",
		})
		return
	}
	if err != nil {
		h.storeError(c, "get", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessment": a})
}

// CompanyHistory lists a company's past results, newest first.
// GET /v1/companies/:id/assessments?limit=&cursor=
func (h *Handler) CompanyHistory(c *gin.Context) {
	store := h.service.Store()
	if store == nil {
		notRecorded(c)
		return
	}
	limit, err := pagination.ParseLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit", "message": err.Error()})
		return
	}
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": err.Error()})
		return
	}

	entries, err := store.History(c.Request.Context(), c.Param("id"), limit+1, cursor)
	if err != nil {
		h.storeError(c, "history", err)
		return
	}
	page, next, more := pagination.ComputePage(entries, limit, HistoryEntry.Key)
	if page == nil {
		page = []HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"companyId":  c.Param("id"),
		"items":      page,
		"nextCursor": next,
		"hasMore":    more,
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidSnapshot):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_snapshot", "message": err.Error()})
	case errors.Is(err, propagation.ErrCyclicDependency):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "cyclic_dependency", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error("assessment failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to evaluate assessment",
		})
	}
}

func (h *Handler) storeError(c *gin.Context, op string, err error) {
	metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	logging.L(c.Request.Context()).Error("assessment store failed", "op", op, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Failed to read assessments",
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": "Request body failed validation",
		"details": validation.FromBinding(err),
	})
}

func notRecorded(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{
		"error":   "history_disabled",
		"message": "Assessments are not being recorded",
	})
}
