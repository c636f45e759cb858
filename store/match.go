package store

import (
	"github.com/pkg/errors"
)

// Match is one ranked product candidate for a region. Rank starts at 1 and is
// dense within a region. Title, category and price are snapshotted at match
// time so completed results stay stable under later catalog edits.
type Match struct {
	ID       int64
	JobID    string
	RegionID string
	Rank     int32

	ProductID string
	// Score is the adjusted score the ranking used.
	Score float64
	// Similarity is the raw cosine similarity before adjustments.
	Similarity float64

	Title    string
	Category string
	Price    float64
	Currency string

	CreatedTs int64
}

type FindMatch struct {
	JobID    *string
	RegionID *string
}

func (find *FindMatch) Validate() error {
	if find.JobID == nil && find.RegionID == nil {
		return errors.New("find match needs a job id or a region id")
	}
	return nil
}
