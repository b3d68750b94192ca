package department

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/handler"
	"github.com/jwalitptl/hospital-api/internal/model"
)

type Service interface {
	ListDepartments(ctx context.Context) ([]*model.Department, error)
	DepartmentQueue(ctx context.Context, departmentID uuid.UUID) (*model.DepartmentQueue, error)
	Recalculate(ctx context.Context, departmentID uuid.UUID) ([]model.StartEstimate, error)
	WaitingCount(ctx context.Context, departmentID uuid.UUID) (int, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	departments := r.Group("/departments")
	{
		departments.GET("", h.ListDepartments)
		departments.GET("/:id/queue", h.GetQueue)
		departments.GET("/:id/queue/waiting-count", h.WaitingCount)
		departments.POST("/:id/queue/recalculate", h.Recalculate)
	}
}

func (h *Handler) ListDepartments(c *gin.Context) {
	depts, err := h.service.ListDepartments(c)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(depts))
}

func (h *Handler) GetQueue(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	view, err := h.service.DepartmentQueue(c, id)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(view))
}

func (h *Handler) WaitingCount(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	n, err := h.service.WaitingCount(c, id)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"department_id": id,
		"waiting":       n,
	}))
}

func (h *Handler) Recalculate(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	estimates, err := h.service.Recalculate(c, id)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(estimates))
}
