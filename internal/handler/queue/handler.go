package queue

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/handler"
	"github.com/jwalitptl/hospital-api/internal/model"
)

type Service interface {
	Enqueue(ctx context.Context, req *model.CreateQueueEntryRequest) (*model.CreateQueueEntryResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.QueueStatus) (*model.QueueEntry, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	queue := r.Group("/consultation-queue")
	{
		queue.POST("", h.CreateEntry)
		queue.GET("/:id", h.GetEntry)
		queue.PATCH("/:id/status", h.UpdateStatus)
	}
}

// CreateEntry places a triaged patient in a department queue and returns the
// assigned number, token and estimated start.
func (h *Handler) CreateEntry(c *gin.Context) {
	var req model.CreateQueueEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.WriteBindError(c, err)
		return
	}

	resp, err := h.service.Enqueue(c, &req)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(resp))
}

func (h *Handler) GetEntry(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	entry, err := h.service.Get(c, id)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	var req model.UpdateQueueStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.WriteBindError(c, err)
		return
	}

	entry, err := h.service.UpdateStatus(c, id, req.Status)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}
