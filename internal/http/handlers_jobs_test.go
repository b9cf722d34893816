package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aiqualifier/aiq-api/internal/data"
	domainauth "github.com/aiqualifier/aiq-api/internal/domain/auth"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	"github.com/aiqualifier/aiq-api/internal/mocks"
	"github.com/aiqualifier/aiq-api/internal/service"
)

type jobHandlersFixture struct {
	handlers *JobHandlers
	repo     *mocks.MockJobRepository
}

func newJobHandlersFixture(t *testing.T) *jobHandlersFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	repo := mocks.NewMockJobRepository(ctrl)
	svc, err := service.NewJobService(service.JobServiceOptions{
		Repo:         repo,
		DefaultLease: 60 * time.Second,
	})
	require.NoError(t, err)

	return &jobHandlersFixture{
		handlers: &JobHandlers{Svc: svc},
		repo:     repo,
	}
}

func ownedJob(id, userID string, status model.JobStatus) *model.Job {
	return &model.Job{
		ID:     id,
		Type:   model.JobTypeQualifyProspects,
		Status: status,
		UserID: &userID,
	}
}

func TestJobsCancel_UnknownJobReturnsNotFound(t *testing.T) {
	fx := newJobHandlersFixture(t)
	fx.repo.EXPECT().
		GetByID(gomock.Any(), "missing-job").
		Return(nil, data.ErrJobNotFound)

	req := sessionRequest(http.MethodPost, "/api/jobs/missing-job/cancel", "missing-job",
		&domainauth.Session{UserID: "user-1", Role: domainauth.RoleUser})
	rec := httptest.NewRecorder()
	fx.handlers.Cancel(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestJobsCancel_RunningJobConflicts(t *testing.T) {
	fx := newJobHandlersFixture(t)
	fx.repo.EXPECT().
		GetByID(gomock.Any(), "job-1").
		Return(ownedJob("job-1", "user-1", model.JobStatusRunning), nil)
	fx.repo.EXPECT().
		Cancel(gomock.Any(), "job-1").
		Return(false, nil)

	req := sessionRequest(http.MethodPost, "/api/jobs/job-1/cancel", "job-1",
		&domainauth.Session{UserID: "user-1", Role: domainauth.RoleUser})
	rec := httptest.NewRecorder()
	fx.handlers.Cancel(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_cancellable", env.Error.Code)
	assert.Equal(t, "job has already started or finished", env.Error.Message)
}

func TestJobsCancel_PendingJobCancels(t *testing.T) {
	fx := newJobHandlersFixture(t)
	fx.repo.EXPECT().
		GetByID(gomock.Any(), "job-1").
		Return(ownedJob("job-1", "user-1", model.JobStatusPending), nil)
	fx.repo.EXPECT().
		Cancel(gomock.Any(), "job-1").
		Return(true, nil)

	req := sessionRequest(http.MethodPost, "/api/jobs/job-1/cancel", "job-1",
		&domainauth.Session{UserID: "user-1", Role: domainauth.RoleUser})
	rec := httptest.NewRecorder()
	fx.handlers.Cancel(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJobsProgress_OtherUsersJobHiddenFromRegularUser(t *testing.T) {
	fx := newJobHandlersFixture(t)
	fx.repo.EXPECT().
		GetByID(gomock.Any(), "job-1").
		Return(ownedJob("job-1", "owner", model.JobStatusRunning), nil)

	req := sessionRequest(http.MethodGet, "/api/jobs/job-1/progress", "job-1",
		&domainauth.Session{UserID: "someone-else", Role: domainauth.RoleUser})
	rec := httptest.NewRecorder()
	fx.handlers.Progress(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
