package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
)

var triageColumns = []interface{}{
	"id", "patient_id", "assessor_id", "assessed_at", "last_assessed_at",
	"vital_signs", "consciousness", "symptoms", "risk_factors",
	"priority_score", "category", "manual_override", "recommended_action",
	"reassessment_required", "reassessment_interval_minutes", "alerts",
	"status", "chief_complaint", "created_at", "updated_at",
}

const selectTriage = `
	SELECT id, patient_id, assessor_id, assessed_at, last_assessed_at,
		vital_signs, consciousness, symptoms, risk_factors,
		priority_score, category, manual_override, recommended_action,
		reassessment_required, reassessment_interval_minutes, alerts,
		status, chief_complaint, created_at, updated_at
	FROM triage_assessments`

type triageRepository struct {
	BaseRepository
	dialect goqu.DialectWrapper
}

func NewTriageRepository(base BaseRepository) repository.TriageRepository {
	return &triageRepository{BaseRepository: base, dialect: goqu.Dialect("postgres")}
}

func (r *triageRepository) Create(ctx context.Context, a *model.TriageAssessment, events ...*model.OutboxEvent) error {
	query := `
		INSERT INTO triage_assessments (
			id, patient_id, assessor_id, assessed_at, last_assessed_at,
			vital_signs, consciousness, symptoms, risk_factors,
			priority_score, category, manual_override, recommended_action,
			reassessment_required, reassessment_interval_minutes, alerts,
			status, chief_complaint, created_at, updated_at
		) VALUES (
			:id, :patient_id, :assessor_id, :assessed_at, :last_assessed_at,
			:vital_signs, :consciousness, :symptoms, :risk_factors,
			:priority_score, :category, :manual_override, :recommended_action,
			:reassessment_required, :reassessment_interval_minutes, :alerts,
			:status, :chief_complaint, :created_at, :updated_at
		)
	`
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, a); err != nil {
			return fmt.Errorf("failed to create triage assessment: %w", err)
		}
		return insertOutbox(ctx, tx, events)
	})
}

func (r *triageRepository) Get(ctx context.Context, id uuid.UUID) (*model.TriageAssessment, error) {
	var a model.TriageAssessment
	if err := r.db.GetContext(ctx, &a, selectTriage+` WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to get triage assessment %s: %w", id, notFound(err))
	}
	return &a, nil
}

// triageUpdate binds the previous updated_at next to the new values.
type triageUpdate struct {
	model.TriageAssessment
	PrevUpdatedAt time.Time `db:"prev_updated_at"`
}

func (r *triageRepository) Update(ctx context.Context, a *model.TriageAssessment, prevUpdatedAt time.Time, events ...*model.OutboxEvent) error {
	query := `
		UPDATE triage_assessments SET
			assessor_id = :assessor_id,
			last_assessed_at = :last_assessed_at,
			vital_signs = :vital_signs,
			consciousness = :consciousness,
			symptoms = :symptoms,
			risk_factors = :risk_factors,
			priority_score = :priority_score,
			category = :category,
			manual_override = :manual_override,
			recommended_action = :recommended_action,
			reassessment_required = :reassessment_required,
			reassessment_interval_minutes = :reassessment_interval_minutes,
			alerts = :alerts,
			status = :status,
			updated_at = :updated_at
		WHERE id = :id AND status = 'ACTIVE' AND updated_at = :prev_updated_at
	`
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, query, triageUpdate{TriageAssessment: *a, PrevUpdatedAt: prevUpdatedAt})
		if err != nil {
			return fmt.Errorf("failed to update triage assessment: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM triage_assessments WHERE id = $1)`, a.ID); err != nil {
				return fmt.Errorf("failed to check triage assessment: %w", err)
			}
			if !exists {
				return fmt.Errorf("failed to update triage assessment %s: %w", a.ID, repository.ErrNotFound)
			}
			return fmt.Errorf("failed to update triage assessment %s: %w", a.ID, repository.ErrStatusChanged)
		}
		return insertOutbox(ctx, tx, events)
	})
}

func (r *triageRepository) List(ctx context.Context, filters *model.TriageFilters) ([]*model.TriageAssessment, error) {
	ds := r.dialect.From("triage_assessments").Select(triageColumns...).Prepared(true)

	if filters != nil {
		if filters.PatientID != uuid.Nil {
			ds = ds.Where(goqu.C("patient_id").Eq(filters.PatientID.String()))
		}
		if filters.Category != "" {
			ds = ds.Where(goqu.C("category").Eq(string(filters.Category)))
		}
		if filters.Status != "" {
			ds = ds.Where(goqu.C("status").Eq(string(filters.Status)))
		}
		if !filters.Since.IsZero() {
			ds = ds.Where(goqu.C("assessed_at").Gte(filters.Since))
		}
		ds = ds.Limit(uint(filters.Limit())).Offset(uint(filters.Offset()))
	}
	ds = ds.Order(goqu.C("priority_score").Desc(), goqu.C("assessed_at").Asc())

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build triage list query: %w", err)
	}

	var assessments []*model.TriageAssessment
	if err := r.db.SelectContext(ctx, &assessments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list triage assessments: %w", err)
	}
	return assessments, nil
}

func (r *triageRepository) ListActive(ctx context.Context) ([]*model.TriageAssessment, error) {
	var assessments []*model.TriageAssessment
	query := selectTriage + ` WHERE status = $1 ORDER BY last_assessed_at ASC`
	if err := r.db.SelectContext(ctx, &assessments, query, model.TriageStatusActive); err != nil {
		return nil, fmt.Errorf("failed to list active triage assessments: %w", err)
	}
	return assessments, nil
}
