package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
)

type auditRepository struct {
	BaseRepository
	dialect goqu.DialectWrapper
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{BaseRepository: base, dialect: goqu.Dialect("postgres")}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, actor_id, action, entity_type, entity_id,
			changes, ip_address, user_agent, created_at
		) VALUES (
			:id, :actor_id, :action, :entity_type, :entity_id,
			:changes, :ip_address, :user_agent, :created_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filters *model.AuditLogFilters) ([]*model.AuditLog, error) {
	ds := r.dialect.From("audit_logs").Select(
		"id", "actor_id", "action", "entity_type", "entity_id",
		"changes", "ip_address", "user_agent", "created_at",
	).Prepared(true)

	if filters != nil {
		if filters.EntityType != "" {
			ds = ds.Where(goqu.C("entity_type").Eq(filters.EntityType))
		}
		if filters.EntityID != uuid.Nil {
			ds = ds.Where(goqu.C("entity_id").Eq(filters.EntityID.String()))
		}
		if !filters.Since.IsZero() {
			ds = ds.Where(goqu.C("created_at").Gte(filters.Since))
		}
		ds = ds.Limit(uint(filters.Limit())).Offset(uint(filters.Offset()))
	}
	ds = ds.Order(goqu.C("created_at").Desc())

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit query: %w", err)
	}

	var logs []*model.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM audit_logs
		WHERE created_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	return res.RowsAffected()
}
