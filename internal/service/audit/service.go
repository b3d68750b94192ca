package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/clock"
)

type Service struct {
	repo    repository.AuditRepository
	clock   clock.Clock
	enabled bool
}

func NewService(repo repository.AuditRepository, clk clock.Clock, enabled bool) *Service {
	return &Service{repo: repo, clock: clk, enabled: enabled}
}

type LogOptions struct {
	ActorID   *uuid.UUID
	Changes   interface{}
	IPAddress string
	UserAgent string
}

// Log creates an audit log entry. A nil Service or a disabled one is a no-op.
func (s *Service) Log(ctx context.Context, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	if s == nil || !s.enabled {
		return nil
	}
	if opts == nil {
		opts = &LogOptions{}
	}

	var changes json.RawMessage
	if opts.Changes != nil {
		data, err := json.Marshal(opts.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal audit changes: %w", err)
		}
		changes = data
	}

	// Get IP and User Agent from gin context if not provided in opts
	ipAddress := opts.IPAddress
	userAgent := opts.UserAgent
	if gc, ok := ctx.(*gin.Context); ok && ipAddress == "" {
		ipAddress = gc.ClientIP()
		userAgent = gc.GetHeader("User-Agent")
	}

	log := &model.AuditLog{
		ID:         uuid.New(),
		ActorID:    opts.ActorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		CreatedAt:  s.clock.Now(),
	}

	return s.repo.Create(ctx, log)
}

func (s *Service) List(ctx context.Context, filters *model.AuditLogFilters) ([]*model.AuditLog, error) {
	return s.repo.List(ctx, filters)
}
