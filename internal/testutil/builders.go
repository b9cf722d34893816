// Package testutil provides testing utilities and helpers for the aiqualifier job system.
package testutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aiqualifier/aiq-api/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Type:       model.JobTypeQualifyProspects,
			Priority:   50,
			Payload:    json.RawMessage(`{"run_id": "00000000-0000-0000-0000-000000000001", "user_id": "test-user", "qualification_id": "test-qualification", "domains": ["example.com"]}`),
			MaxRetries: 3,
		},
	}
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(jobType model.JobType) *JobRequestBuilder {
	b.req.Type = jobType
	return b
}

// WithPriority sets the job priority.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithPayload sets the job payload.
func (b *JobRequestBuilder) WithPayload(payload json.RawMessage) *JobRequestBuilder {
	b.req.Payload = payload
	return b
}

// WithPayloadString sets the job payload from a string.
func (b *JobRequestBuilder) WithPayloadString(payload string) *JobRequestBuilder {
	b.req.Payload = json.RawMessage(payload)
	return b
}

// WithUserID sets the owning user.
func (b *JobRequestBuilder) WithUserID(userID string) *JobRequestBuilder {
	b.req.UserID = &userID
	return b
}

// WithRunID sets the run the job belongs to.
func (b *JobRequestBuilder) WithRunID(runID string) *JobRequestBuilder {
	b.req.RunID = &runID
	return b
}

// WithScheduledAt sets the scheduled time.
func (b *JobRequestBuilder) WithScheduledAt(scheduledAt time.Time) *JobRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// WithMaxRetries sets the maximum number of retries.
func (b *JobRequestBuilder) WithMaxRetries(maxRetries int) *JobRequestBuilder {
	b.req.MaxRetries = maxRetries
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// TestScenarioBuilder provides a fluent interface for building test scenarios.
type TestScenarioBuilder struct {
	jobs []JobScenario
}

// JobScenario represents a job and the actions to perform on it.
type JobScenario struct {
	Request *model.CreateJobRequest
	Actions []JobAction
}

// JobAction represents an action to perform on a job.
type JobAction struct {
	Type   string // "reserve", "complete", "fail", "heartbeat"
	Params map[string]interface{}
}

// NewTestScenario creates a new TestScenarioBuilder.
func NewTestScenario() *TestScenarioBuilder {
	return &TestScenarioBuilder{
		jobs: make([]JobScenario, 0),
	}
}

// AddJob adds a job scenario to the test.
func (b *TestScenarioBuilder) AddJob(request *model.CreateJobRequest, actions ...JobAction) *TestScenarioBuilder {
	b.jobs = append(b.jobs, JobScenario{
		Request: request,
		Actions: actions,
	})
	return b
}

// AddPendingJob adds a job that stays pending.
func (b *TestScenarioBuilder) AddPendingJob(priority int) *TestScenarioBuilder {
	req := NewJobRequest().
		WithPriority(priority).
		WithPayload(QualifyPayload("pending.example.com")).
		Build()
	return b.AddJob(req)
}

// AddRunningJob adds a job that gets reserved and stays running.
func (b *TestScenarioBuilder) AddRunningJob(priority int) *TestScenarioBuilder {
	req := NewJobRequest().
		WithPriority(priority).
		WithPayload(QualifyPayload("running.example.com")).
		Build()
	return b.AddJob(req, ReserveAction())
}

// AddCompletedJob adds a job that gets reserved and completed.
func (b *TestScenarioBuilder) AddCompletedJob(priority int) *TestScenarioBuilder {
	req := NewJobRequest().
		WithPriority(priority).
		WithPayload(QualifyPayload("completed.example.com")).
		Build()
	return b.AddJob(req, ReserveAction(), CompleteAction())
}

// AddFailedJob adds a job that gets reserved and failed.
func (b *TestScenarioBuilder) AddFailedJob(priority, maxRetries int) *TestScenarioBuilder {
	req := NewJobRequest().
		WithPriority(priority).
		WithMaxRetries(maxRetries).
		WithPayload(QualifyPayload("failed.example.com")).
		Build()
	return b.AddJob(req, ReserveAction(), FailAction("test failure"))
}

// Build returns the constructed job scenarios.
func (b *TestScenarioBuilder) Build() []JobScenario {
	return b.jobs
}

// Action builders for common job actions

// ReserveAction creates a reserve action.
func ReserveAction() JobAction {
	return JobAction{Type: "reserve"}
}

// CompleteAction creates a complete action.
func CompleteAction() JobAction {
	return JobAction{Type: "complete"}
}

// FailAction creates a fail action with an error message.
func FailAction(errorMsg string) JobAction {
	return JobAction{
		Type:   "fail",
		Params: map[string]interface{}{"error": errorMsg},
	}
}

// HeartbeatAction creates a heartbeat action with lease seconds.
func HeartbeatAction(leaseSeconds int) JobAction {
	return JobAction{
		Type:   "heartbeat",
		Params: map[string]interface{}{"leaseSeconds": leaseSeconds},
	}
}

// Common test job request presets

// QualifyPayload builds a qualify_prospects payload covering the given domains.
func QualifyPayload(domains ...string) json.RawMessage {
	payload := model.QualifyJobPayload{
		RunID:           "00000000-0000-0000-0000-000000000001",
		UserID:          "test-user",
		QualificationID: "test-qualification",
		Domains:         domains,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal qualify payload: %v", err))
	}
	return data
}

// QualifyJobRequest creates a qualify_prospects job request with default values.
func QualifyJobRequest(runID string, domains ...string) *model.CreateJobRequest {
	payload := model.QualifyJobPayload{
		RunID:           runID,
		UserID:          "test-user",
		QualificationID: "test-qualification",
		Domains:         domains,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal qualify payload: %v", err))
	}
	return NewJobRequest().
		WithType(model.JobTypeQualifyProspects).
		WithRunID(runID).
		WithUserID(payload.UserID).
		WithPayload(data).
		Build()
}

// RecommendationJobRequest creates a recommendation job request with default values.
func RecommendationJobRequest(userID string) *model.CreateJobRequest {
	return NewJobRequest().
		WithType(model.JobTypeRecommendation).
		WithUserID(userID).
		WithPayloadString(fmt.Sprintf(`{"user_id": %q}`, userID)).
		Build()
}

// HighPriorityJobRequest creates a high priority job request.
func HighPriorityJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithPriority(100).
		WithPayload(QualifyPayload("urgent.example.com")).
		Build()
}

// LowPriorityJobRequest creates a low priority job request.
func LowPriorityJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithPriority(10).
		WithPayload(QualifyPayload("background.example.com")).
		Build()
}

// ScheduledJobRequest creates a job request scheduled for the future.
func ScheduledJobRequest(scheduledAt time.Time) *model.CreateJobRequest {
	return NewJobRequest().
		WithScheduledAt(scheduledAt).
		WithPayload(QualifyPayload("scheduled.example.com")).
		Build()
}

// RetryableJobRequest creates a job request with custom retry settings.
func RetryableJobRequest(maxRetries int) *model.CreateJobRequest {
	return NewJobRequest().
		WithMaxRetries(maxRetries).
		WithPayload(QualifyPayload("retryable.example.com")).
		Build()
}

// CreateRunRequest builds a run request for the given user over the given domains.
func CreateRunRequest(userID string, domains ...string) *model.CreateRunRequest {
	if len(domains) == 0 {
		domains = []string{"example.com"}
	}
	return &model.CreateRunRequest{
		UserID:          userID,
		QualificationID: "test-qualification",
		Domains:         domains,
	}
}

// ProgressRequest builds a learner progress upsert for tests.
func ProgressRequest(userID, qualificationID string, score float64, completed bool) *model.UpsertProgressRequest {
	return &model.UpsertProgressRequest{
		UserID:          userID,
		QualificationID: qualificationID,
		Score:           score,
		Completed:       completed,
	}
}

// UATSessionRequest builds a UAT session start request for tests.
func UATSessionRequest(userID, scenario string) *model.StartUATSessionRequest {
	return &model.StartUATSessionRequest{
		UserID:   userID,
		Scenario: scenario,
	}
}
