package domain

import (
	"encoding/json"
	"testing"
)

func TestPipelineSpec_Defaults(t *testing.T) {
	doc := []byte(`{
		"name": "clip",
		"tasks": [
			{"id": "kf", "type": "keyframe"},
			{"id": "vid", "type": "video", "depends_on": ["kf"], "required": false, "retry_budget": 0}
		]
	}`)

	var spec PipelineSpec
	if err := json.Unmarshal(doc, &spec); err != nil {
		t.Fatal(err)
	}
	p := spec.Pipeline()

	kf := p.Tasks[0]
	if kf.RetryBudget != DefaultRetryBudget {
		t.Errorf("omitted budget must default to %d, got %d", DefaultRetryBudget, kf.RetryBudget)
	}
	if !kf.CanRetry() {
		t.Error("task with an omitted budget must still be retryable")
	}
	if !kf.Required {
		t.Error("omitted required must default to true")
	}
	if kf.State != TaskStatePending {
		t.Errorf("materialized task must start PENDING, got %s", kf.State)
	}

	vid := p.Tasks[1]
	if vid.RetryBudget != 0 {
		t.Errorf("explicit zero budget must be kept, got %d", vid.RetryBudget)
	}
	if vid.CanRetry() {
		t.Error("explicit zero budget must not retry")
	}
	if vid.Required {
		t.Error("explicit required=false must be kept")
	}
}
