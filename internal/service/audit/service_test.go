package audit

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/clock"
)

type memoryRepo struct {
	logs []*model.AuditLog
}

func (r *memoryRepo) Create(_ context.Context, log *model.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func (r *memoryRepo) List(context.Context, *model.AuditLogFilters) ([]*model.AuditLog, error) {
	return r.logs, nil
}

func (r *memoryRepo) Cleanup(context.Context, time.Time) (int64, error) { return 0, nil }

func TestLogRecordsChanges(t *testing.T) {
	repo := &memoryRepo{}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(repo, clock.NewFixed(now), true)
	id := uuid.New()

	err := svc.Log(context.Background(), model.AuditActionStatusChange, model.AuditEntityQueueEntry, id, &LogOptions{
		Changes: map[string]string{"from": "WAITING", "to": "IN_PROGRESS"},
	})

	require.NoError(t, err)
	require.Len(t, repo.logs, 1)
	assert.Equal(t, id, repo.logs[0].EntityID)
	assert.Equal(t, now, repo.logs[0].CreatedAt)

	var changes map[string]string
	require.NoError(t, json.Unmarshal(repo.logs[0].Changes, &changes))
	assert.Equal(t, "IN_PROGRESS", changes["to"])
}

func TestLogReadsRequestMetadataFromGinContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &memoryRepo{}
	svc := NewService(repo, clock.System(), true)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/", nil)
	c.Request.Header.Set("User-Agent", "front-desk/1.0")
	c.Request.RemoteAddr = "10.1.2.3:5555"

	require.NoError(t, svc.Log(c, model.AuditActionCreate, model.AuditEntityTriage, uuid.New(), nil))
	assert.Equal(t, "10.1.2.3", repo.logs[0].IPAddress)
	assert.Equal(t, "front-desk/1.0", repo.logs[0].UserAgent)
}

func TestLogDisabled(t *testing.T) {
	repo := &memoryRepo{}
	var nilSvc *Service

	assert.NoError(t, NewService(repo, clock.System(), false).Log(context.Background(), "create", "x", uuid.New(), nil))
	assert.NoError(t, nilSvc.Log(context.Background(), "create", "x", uuid.New(), nil))
	assert.Empty(t, repo.logs)
}
