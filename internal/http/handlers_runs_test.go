package httpx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aiqualifier/aiq-api/internal/data"
	domainauth "github.com/aiqualifier/aiq-api/internal/domain/auth"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	"github.com/aiqualifier/aiq-api/internal/mocks"
	"github.com/aiqualifier/aiq-api/internal/service"
)

// noopConnector backs a *sql.DB that is never used; the handlers under test
// exercise only read paths that go through the mocked repositories.
type noopConnector struct{}

func (noopConnector) Connect(context.Context) (driver.Conn, error) {
	return nil, errors.New("not implemented")
}
func (noopConnector) Driver() driver.Driver { return nil }

func newHandlerTestDB() *sql.DB { return sql.OpenDB(noopConnector{}) }

type stubRunTxCreator struct{}

func (stubRunTxCreator) CreateInTx(context.Context, *sql.Tx, *model.CreateRunRequest) (*model.Run, error) {
	return nil, errors.New("not used in handler tests")
}

type stubJobTxCreator struct{}

func (stubJobTxCreator) CreateInTx(context.Context, *sql.Tx, *model.CreateJobRequest) (*model.Job, error) {
	return nil, errors.New("not used in handler tests")
}

type runHandlersFixture struct {
	handlers *RunHandlers
	runs     *mocks.MockRunRepository
}

func newRunHandlersFixture(t *testing.T) *runHandlersFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	runs := mocks.NewMockRunRepository(ctrl)
	results := mocks.NewMockProspectResultRepository(ctrl)
	scorer := mocks.NewMockProspectScorer(ctrl)

	svc, err := service.NewQualificationService(service.QualificationServiceOptions{
		DB:           newHandlerTestDB(),
		Runs:         runs,
		RunTxCreator: stubRunTxCreator{},
		JobTxCreator: stubJobTxCreator{},
		Results:      results,
		Scorer:       scorer,
	})
	require.NoError(t, err)

	return &runHandlersFixture{
		handlers: &RunHandlers{Qualification: svc},
		runs:     runs,
	}
}

func sessionRequest(method, target, runID string, session *domainauth.Session) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req = req.WithContext(SetSessionInContext(req.Context(), session))
	req.SetPathValue("id", runID)
	return req
}

func TestRunsGet_UnknownRunReturnsNotFound(t *testing.T) {
	fx := newRunHandlersFixture(t)
	fx.runs.EXPECT().
		GetByID(gomock.Any(), "missing-run").
		Return(nil, data.ErrRunNotFound)

	req := sessionRequest(http.MethodGet, "/api/runs/missing-run", "missing-run",
		&domainauth.Session{UserID: "user-1", Role: domainauth.RoleUser})
	rec := httptest.NewRecorder()
	fx.handlers.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestRunsGet_NonOwnerSeesNotFound(t *testing.T) {
	fx := newRunHandlersFixture(t)
	fx.runs.EXPECT().
		GetByID(gomock.Any(), "run-1").
		Return(&model.Run{ID: "run-1", UserID: "owner"}, nil)

	req := sessionRequest(http.MethodGet, "/api/runs/run-1", "run-1",
		&domainauth.Session{UserID: "someone-else", Role: domainauth.RoleUser})
	rec := httptest.NewRecorder()
	fx.handlers.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunsGet_OwnerSeesRun(t *testing.T) {
	fx := newRunHandlersFixture(t)
	fx.runs.EXPECT().
		GetByID(gomock.Any(), "run-1").
		Return(&model.Run{ID: "run-1", UserID: "owner", Status: model.RunStatusProcessing}, nil)

	req := sessionRequest(http.MethodGet, "/api/runs/run-1", "run-1",
		&domainauth.Session{UserID: "owner", Role: domainauth.RoleUser})
	rec := httptest.NewRecorder()
	fx.handlers.Get(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
}
