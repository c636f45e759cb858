package store

import (
	"testing"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{JobQueued, JobGenerating, true},
		{JobQueued, JobFailed, true},
		{JobGenerating, JobExtracting, true},
		{JobGenerating, JobFailed, true},
		{JobExtracting, JobMatching, true},
		{JobMatching, JobAggregating, true},
		{JobAggregating, JobCompleted, true},
		{JobAggregating, JobFailed, true},

		// No skipping, no re-entry, no leaving terminals.
		{JobQueued, JobExtracting, false},
		{JobQueued, JobCompleted, false},
		{JobGenerating, JobQueued, false},
		{JobExtracting, JobGenerating, false},
		{JobMatching, JobCompleted, false},
		{JobCompleted, JobFailed, false},
		{JobCompleted, JobGenerating, false},
		{JobFailed, JobQueued, false},
		{JobFailed, JobCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.allowed {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestJobStatusPredicates(t *testing.T) {
	if !JobCompleted.Terminal() || !JobFailed.Terminal() {
		t.Errorf("completed and failed must be terminal")
	}
	if JobQueued.Terminal() || JobMatching.Terminal() {
		t.Errorf("non-terminal status reported terminal")
	}
	for _, status := range []JobStatus{JobGenerating, JobExtracting, JobMatching, JobAggregating} {
		if !status.Active() {
			t.Errorf("%s should be active", status)
		}
	}
	for _, status := range []JobStatus{JobQueued, JobCompleted, JobFailed} {
		if status.Active() {
			t.Errorf("%s should not be active", status)
		}
	}
}

func TestUpdateJobValidate(t *testing.T) {
	if err := (&UpdateJob{}).Validate(); err == nil {
		t.Errorf("empty update must be rejected")
	}
	status := JobGenerating
	if err := (&UpdateJob{Status: &status}).Validate(); err == nil {
		t.Errorf("update without id must be rejected")
	}
	if err := (&UpdateJob{ID: "job-1", Status: &status}).Validate(); err != nil {
		t.Errorf("valid update rejected: %v", err)
	}
}

func TestDeleteJobValidate(t *testing.T) {
	if err := (&DeleteJob{}).Validate(); err == nil {
		t.Errorf("unconditional delete must be rejected")
	}
	if err := (&DeleteJob{IDs: []string{"job-1"}}).Validate(); err != nil {
		t.Errorf("valid delete rejected: %v", err)
	}
}
