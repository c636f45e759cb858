package store

import (
	"github.com/pkg/errors"
)

// JobStatus is the lifecycle state of a restyle job. A job moves forward
// through the stage statuses in order; COMPLETED and FAILED are terminal.
type JobStatus string

const (
	JobQueued      JobStatus = "QUEUED"
	JobGenerating  JobStatus = "GENERATING"
	JobExtracting  JobStatus = "EXTRACTING"
	JobMatching    JobStatus = "MATCHING"
	JobAggregating JobStatus = "AGGREGATING"
	JobCompleted   JobStatus = "COMPLETED"
	JobFailed      JobStatus = "FAILED"
)

// jobTransitions encodes the forward-only status machine. FAILED is reachable
// from every non-terminal status; nothing leaves a terminal status.
var jobTransitions = map[JobStatus][]JobStatus{
	JobQueued:      {JobGenerating, JobFailed},
	JobGenerating:  {JobExtracting, JobFailed},
	JobExtracting:  {JobMatching, JobFailed},
	JobMatching:    {JobAggregating, JobFailed},
	JobAggregating: {JobCompleted, JobFailed},
	JobCompleted:   {},
	JobFailed:      {},
}

// CanTransition reports whether moving from s to next is a legal forward step.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Active reports whether a stage call may be in flight for the status.
func (s JobStatus) Active() bool {
	switch s {
	case JobGenerating, JobExtracting, JobMatching, JobAggregating:
		return true
	default:
		return false
	}
}

// Job is a single restyle-and-match request. Rows are owned by the
// orchestrator; everything else reads snapshots.
type Job struct {
	ID       string
	PhotoRef string
	Style    string
	Strength float64
	RoomHint string

	Status JobStatus

	// Attempt counters per retryable stage.
	GenerationAttempts int
	ExtractionAttempts int
	MatchingAttempts   int

	// Failure record, populated when Status is FAILED.
	FailedStage  string
	ErrorClass   string
	ErrorMessage string

	CreatedTs int64
	UpdatedTs int64
}

type FindJob struct {
	ID            *string
	Status        []JobStatus
	CreatedBefore *int64

	Limit  *int
	Offset *int
}

func (find *FindJob) Validate() error {
	if find.ID != nil && *find.ID == "" {
		return errors.New("job id cannot be empty")
	}
	if find.Limit != nil && *find.Limit <= 0 {
		return errors.Errorf("invalid limit %d", *find.Limit)
	}
	if find.Offset != nil && *find.Offset < 0 {
		return errors.Errorf("invalid offset %d", *find.Offset)
	}
	return nil
}

type UpdateJob struct {
	ID string

	Status             *JobStatus
	GenerationAttempts *int
	ExtractionAttempts *int
	MatchingAttempts   *int
	FailedStage        *string
	ErrorClass         *string
	ErrorMessage       *string
}

func (update *UpdateJob) Validate() error {
	if update.ID == "" {
		return errors.New("job id is required")
	}
	if update.Status == nil &&
		update.GenerationAttempts == nil &&
		update.ExtractionAttempts == nil &&
		update.MatchingAttempts == nil &&
		update.FailedStage == nil &&
		update.ErrorClass == nil &&
		update.ErrorMessage == nil {
		return errors.New("update has no fields set")
	}
	return nil
}

// DeleteJob selects jobs to purge. All set conditions apply together; at
// least one must be set. Styled images, regions and matches of the selected
// jobs are deleted in the same call.
type DeleteJob struct {
	IDs           []string
	Status        []JobStatus
	CreatedBefore *int64
}

func (delete *DeleteJob) Validate() error {
	if len(delete.IDs) == 0 && len(delete.Status) == 0 && delete.CreatedBefore == nil {
		return errors.New("refusing to delete jobs without a condition")
	}
	return nil
}
