package store

import (
	"github.com/pkg/errors"
)

// Region is one detected furniture/decor area of a styled image. Idx is the
// stable extraction order, contiguous from 0 within a job.
type Region struct {
	ID            string
	JobID         string
	StyledImageID int64
	Idx           int32

	Label    string
	Category string

	// Bounding box in styled-image pixel coordinates.
	X      int32
	Y      int32
	Width  int32
	Height int32

	// CropRef resolves the region crop through the image store.
	CropRef string

	Embedding []float32

	CreatedTs int64
}

type FindRegion struct {
	ID    *string
	JobID *string
}

func (find *FindRegion) Validate() error {
	if find.ID == nil && find.JobID == nil {
		return errors.New("find region needs an id or a job id")
	}
	return nil
}
