package triage

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/handler"
	"github.com/jwalitptl/hospital-api/internal/model"
)

type Service interface {
	Score(req *model.ScoreRequest) *model.ScoreResult
	Create(ctx context.Context, req *model.CreateTriageRequest) (*model.TriageAssessment, error)
	Get(ctx context.Context, id uuid.UUID) (*model.TriageAssessment, error)
	List(ctx context.Context, filters *model.TriageFilters) ([]*model.TriageAssessment, error)
	UpdateVitals(ctx context.Context, id uuid.UUID, req *model.UpdateVitalsRequest) (*model.TriageAssessment, error)
	Override(ctx context.Context, id uuid.UUID, req *model.OverrideCategoryRequest) (*model.TriageAssessment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.TriageStatus) (*model.TriageAssessment, error)
	DueForReassessment(ctx context.Context) ([]*model.TriageAssessment, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	triage := r.Group("/triage")
	{
		triage.POST("", h.CreateAssessment)
		triage.GET("", h.ListAssessments)
		triage.POST("/score", h.Score)
		triage.GET("/reassessments/due", h.ListDue)
		triage.GET("/:id", h.GetAssessment)
		triage.PATCH("/:id/vitals", h.UpdateVitals)
		triage.POST("/:id/override", h.Override)
		triage.PATCH("/:id/status", h.UpdateStatus)
	}
}

func (h *Handler) CreateAssessment(c *gin.Context) {
	var req model.CreateTriageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.WriteBindError(c, err)
		return
	}

	assessment, err := h.service.Create(c, &req)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(assessment))
}

func (h *Handler) GetAssessment(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	assessment, err := h.service.Get(c, id)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(assessment))
}

func (h *Handler) ListAssessments(c *gin.Context) {
	var filters model.TriageFilters
	if err := c.ShouldBindQuery(&filters.Pagination); err != nil {
		handler.WriteBindError(c, err)
		return
	}

	patientID, err := handler.QueryID(c, "patient_id")
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	since, err := handler.QueryTime(c, "since")
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	filters.PatientID = patientID
	filters.Since = since
	filters.Category = model.TriageCategory(c.Query("category"))
	filters.Status = model.TriageStatus(c.Query("status"))

	assessments, err := h.service.List(c, &filters)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(assessments))
}

func (h *Handler) UpdateVitals(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	var req model.UpdateVitalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.WriteBindError(c, err)
		return
	}

	assessment, err := h.service.UpdateVitals(c, id, &req)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(assessment))
}

func (h *Handler) Override(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	var req model.OverrideCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.WriteBindError(c, err)
		return
	}

	assessment, err := h.service.Override(c, id, &req)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(assessment))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	var req model.UpdateTriageStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.WriteBindError(c, err)
		return
	}

	assessment, err := h.service.UpdateStatus(c, id, req.Status)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(assessment))
}

func (h *Handler) ListDue(c *gin.Context) {
	due, err := h.service.DueForReassessment(c)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(due))
}

// Score previews a score for a snapshot without creating an assessment.
func (h *Handler) Score(c *gin.Context) {
	var req model.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.WriteBindError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.service.Score(&req)))
}
