package metrics

import (
	"time"

	obserrors "github.com/aiqualifier/aiq-api/internal/observability/errors"
	"github.com/aiqualifier/aiq-api/internal/observability/statsd"
)

// Run lifecycle phases for metric tagging.
const (
	RunPhaseStarted   = "started"
	RunPhaseCompleted = "completed"
	RunPhaseFailed    = "failed"
	RunPhaseResumed   = "resumed"
)

// RunMetric captures details about a qualification run lifecycle event.
type RunMetric struct {
	Phase        string
	Result       string
	Duration     time.Duration
	Prospects    int
	AverageScore float64
	Err          error
}

// EmitRunLifecycle emits standardised qualification run metrics.
func EmitRunLifecycle(sink statsd.Sink, in RunMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"phase":  in.Phase,
		"result": in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("run.transition", 1, tags)

	if in.Prospects > 0 {
		sink.Count("run.prospects", int64(in.Prospects), CloneTags(tags))
	}
	if in.Phase == RunPhaseCompleted && in.AverageScore > 0 {
		sink.Gauge("run.average_score", in.AverageScore, CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("run.duration", in.Duration, CloneTags(tags))
	}
}

// EmitProspectScored emits a per-prospect scoring metric.
func EmitProspectScored(sink statsd.Sink, score float64, err error) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	tags := map[string]string{}
	if err != nil {
		result = ResultError
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	tags["result"] = result

	sink.Count("prospect.scored", 1, tags)
	if err == nil {
		sink.Gauge("prospect.score", score, CloneTags(tags))
	}
}
