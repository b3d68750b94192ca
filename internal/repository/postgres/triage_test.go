package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
)

var triageCols = []string{
	"id", "patient_id", "assessor_id", "assessed_at", "last_assessed_at",
	"vital_signs", "consciousness", "symptoms", "risk_factors",
	"priority_score", "category", "manual_override", "recommended_action",
	"reassessment_required", "reassessment_interval_minutes", "alerts",
	"status", "chief_complaint", "created_at", "updated_at",
}

func TestTriageGetRestoresStoredAssessment(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTriageRepository(base)
	id := uuid.New()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	vitals := `{"temperature":{"value":39.1,"unit":"C","is_abnormal":true},"heart_rate":{"value":72,"is_abnormal":false},"pain_score":6}`
	symptoms := `[{"name":"chest pain","severity":"severe"}]`
	risks := `{"diabetes":true,"hypertension":false,"heart_disease":false,"immunocompromised":false}`
	alerts := `[{"from":"GREEN","to":"YELLOW","score":12,"changed_at":"2024-03-01T09:00:00Z"}]`

	mock.ExpectQuery(`FROM triage_assessments WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(triageCols).AddRow(
			id.String(), uuid.New().String(), uuid.New().String(), now, now,
			[]byte(vitals), "PAIN", []byte(symptoms), []byte(risks),
			12, "YELLOW", false, "Urgent assessment within 30 minutes",
			true, 30, []byte(alerts),
			"ACTIVE", "", now, now,
		))

	a, err := repo.Get(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, 12, a.PriorityScore)
	assert.Equal(t, model.CategoryYellow, a.Category)
	require.NotNil(t, a.VitalSigns.Temperature)
	assert.Equal(t, 39.1, *a.VitalSigns.Temperature.Value)
	assert.True(t, a.VitalSigns.Temperature.Abnormal)
	assert.False(t, a.VitalSigns.HeartRate.Abnormal)
	assert.Equal(t, 6, *a.VitalSigns.PainScore)
	assert.Equal(t, model.Symptoms{{Name: "chest pain", Severity: "severe"}}, a.Symptoms)
	assert.True(t, a.RiskFactors.Diabetes)
	require.Len(t, a.Alerts, 1)
	assert.Equal(t, model.CategoryGreen, a.Alerts[0].From)
}

func TestTriageGetNotFound(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTriageRepository(base)

	mock.ExpectQuery(`FROM triage_assessments`).WillReturnRows(sqlmock.NewRows(triageCols))

	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTriageCreateWritesOutboxInSameTransaction(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTriageRepository(base)
	now := time.Now().UTC()
	a := &model.TriageAssessment{
		PatientID:  uuid.New(),
		AssessorID: uuid.New(),
		Category:   model.CategoryGreen,
		Status:     model.TriageStatusActive,
	}
	a.ID = uuid.New()
	evt, err := model.NewOutboxEvent(model.EventTriageAssessed, a, now)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO triage_assessments`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO outbox_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), a, evt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTriageUpdateMissingRow(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTriageRepository(base)
	a := &model.TriageAssessment{}
	a.ID = uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE triage_assessments SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(a.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.Update(context.Background(), a, time.Time{})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTriageUpdateRejectsChangedRow(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTriageRepository(base)
	prev := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := &model.TriageAssessment{
		Category: model.CategoryYellow,
		Status:   model.TriageStatusActive,
	}
	a.ID = uuid.New()
	a.UpdatedAt = prev.Add(time.Minute)
	evt, err := model.NewOutboxEvent(model.EventTriageCategoryChanged, a, a.UpdatedAt)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`WHERE id = \$\d+ AND status = 'ACTIVE' AND updated_at = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(a.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err = repo.Update(context.Background(), a, prev, evt)
	assert.ErrorIs(t, err, repository.ErrStatusChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTriageUpdateWritesOutbox(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTriageRepository(base)
	prev := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := &model.TriageAssessment{Status: model.TriageStatusActive}
	a.ID = uuid.New()
	a.UpdatedAt = prev.Add(time.Minute)
	evt, err := model.NewOutboxEvent(model.EventTriageCategoryChanged, a, a.UpdatedAt)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE triage_assessments SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO outbox_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Update(context.Background(), a, prev, evt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTriageListFiltersByCategory(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTriageRepository(base)

	mock.ExpectQuery(`FROM "triage_assessments" WHERE .*"category" = \$1`).
		WillReturnRows(sqlmock.NewRows(triageCols))

	list, err := repo.List(context.Background(), &model.TriageFilters{Category: model.CategoryRed})

	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}
