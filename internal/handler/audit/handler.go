package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/internal/handler"
	"github.com/jwalitptl/hospital-api/internal/model"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
)

type Service interface {
	List(ctx context.Context, filters *model.AuditLogFilters) ([]*model.AuditLog, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit")
	{
		audit.GET("/logs", h.ListLogs)
		audit.GET("/logs/entity/:type/:id", h.GetEntityLogs)
		audit.GET("/export", h.ExportLogs)
	}
}

func (h *Handler) ListLogs(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	logs, err := h.service.List(c, filters)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}

func (h *Handler) GetEntityLogs(c *gin.Context) {
	entityID, err := handler.ParseID(c, "id")
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	filters := &model.AuditLogFilters{
		EntityType: c.Param("type"),
		EntityID:   entityID,
	}

	logs, err := h.service.List(c, filters)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}

func (h *Handler) ExportLogs(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "json" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("unsupported format"))
		return
	}

	filters, err := parseFilters(c)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	logs, err := h.service.List(c, filters)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	filename := fmt.Sprintf("audit_logs_%s.%s", time.Now().Format("20060102_150405"), format)

	switch format {
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
		writer := csv.NewWriter(c.Writer)
		_ = writer.Write([]string{"ID", "Actor ID", "Action", "Entity Type", "Entity ID", "IP Address", "Created At"})
		for _, log := range logs {
			actor := ""
			if log.ActorID != nil {
				actor = log.ActorID.String()
			}
			_ = writer.Write([]string{
				log.ID.String(),
				actor,
				log.Action,
				log.EntityType,
				log.EntityID.String(),
				log.IPAddress,
				log.CreatedAt.Format(time.RFC3339),
			})
		}
		writer.Flush()
	case "json":
		c.JSON(http.StatusOK, logs)
	}
}

func parseFilters(c *gin.Context) (*model.AuditLogFilters, error) {
	var filters model.AuditLogFilters
	if err := c.ShouldBindQuery(&filters.Pagination); err != nil {
		return nil, apperrors.NewBadRequest("invalid pagination", err)
	}

	entityID, err := handler.QueryID(c, "entity_id")
	if err != nil {
		return nil, err
	}
	since, err := handler.QueryTime(c, "since")
	if err != nil {
		return nil, err
	}

	filters.EntityType = c.Query("entity_type")
	filters.EntityID = entityID
	filters.Since = since
	return &filters, nil
}
