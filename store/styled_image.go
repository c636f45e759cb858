package store

import (
	"github.com/pkg/errors"
)

// StyledImage records one successful generation: the restyled room image and
// the parameters that produced it. At most one row per job.
type StyledImage struct {
	ID    int64
	JobID string

	// ImageRef resolves through the image store.
	ImageRef string

	Style    string
	Strength float64
	RoomHint string
	// Prompt is the full prompt sent to the generation backend.
	Prompt string

	LatencyMs int64
	CreatedTs int64
}

type FindStyledImage struct {
	ID    *int64
	JobID *string
}

func (find *FindStyledImage) Validate() error {
	if find.ID == nil && find.JobID == nil {
		return errors.New("find styled image needs an id or a job id")
	}
	if find.JobID != nil && *find.JobID == "" {
		return errors.New("job id cannot be empty")
	}
	return nil
}
