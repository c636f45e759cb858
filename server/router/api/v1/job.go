package v1

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ghurfati/ghurfati/pipeline"
	"github.com/ghurfati/ghurfati/store"
)

// capacityRetryAfterSeconds is the Retry-After hint on queue-full rejections
// when the error itself carries none.
const capacityRetryAfterSeconds = 5

// SubmitJobRequest is the POST /api/v1/jobs payload. PhotoRef must resolve
// to a previously stored image.
type SubmitJobRequest struct {
	PhotoRef string  `json:"photo_ref"`
	Style    string  `json:"style"`
	Strength float64 `json:"strength"`
	RoomHint string  `json:"room_hint,omitempty"`
}

// JobResponse is the job snapshot returned by every job endpoint. Result is
// attached only once the job has completed.
type JobResponse struct {
	ID       string  `json:"id"`
	PhotoRef string  `json:"photo_ref"`
	Style    string  `json:"style"`
	Strength float64 `json:"strength"`
	RoomHint string  `json:"room_hint,omitempty"`
	Status   string  `json:"status"`

	GenerationAttempts int `json:"generation_attempts"`
	ExtractionAttempts int `json:"extraction_attempts"`
	MatchingAttempts   int `json:"matching_attempts"`

	FailedStage  string `json:"failed_stage,omitempty"`
	ErrorClass   string `json:"error_class,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedTs int64 `json:"created_ts"`
	UpdatedTs int64 `json:"updated_ts"`

	Result *pipeline.MatchResult `json:"result,omitempty"`
}

type ListJobsResponse struct {
	Jobs []*JobResponse `json:"jobs"`
}

func convertJob(job *store.Job) *JobResponse {
	return &JobResponse{
		ID:                 job.ID,
		PhotoRef:           job.PhotoRef,
		Style:              job.Style,
		Strength:           job.Strength,
		RoomHint:           job.RoomHint,
		Status:             string(job.Status),
		GenerationAttempts: job.GenerationAttempts,
		ExtractionAttempts: job.ExtractionAttempts,
		MatchingAttempts:   job.MatchingAttempts,
		FailedStage:        job.FailedStage,
		ErrorClass:         job.ErrorClass,
		ErrorMessage:       job.ErrorMessage,
		CreatedTs:          job.CreatedTs,
		UpdatedTs:          job.UpdatedTs,
	}
}

// SubmitJob admits a new restyle job. Admission is synchronous: 202 with the
// QUEUED snapshot on success, 400 on validation failures, 429 with a
// Retry-After header when the queue is full. Rejections leave no job behind.
func (s *APIV1Service) SubmitJob(c echo.Context) error {
	request := &SubmitJobRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed submit request").SetInternal(err)
	}

	job, err := s.Orchestrator.Submit(c.Request().Context(), request.PhotoRef, pipeline.StyleParams{
		Style:    request.Style,
		Strength: request.Strength,
		RoomHint: request.RoomHint,
	})
	if err != nil {
		var cerr *pipeline.ClassifiedError
		if errors.As(err, &cerr) {
			switch cerr.Class {
			case pipeline.ErrorClassValidation:
				return echo.NewHTTPError(http.StatusBadRequest, cerr.Message())
			case pipeline.ErrorClassCapacity:
				retryAfter := capacityRetryAfterSeconds
				if cerr.RetryAfter > 0 {
					retryAfter = int(cerr.RetryAfter.Seconds())
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, cerr.Message())
			}
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to submit job").SetInternal(err)
	}

	return c.JSON(http.StatusAccepted, convertJob(job))
}

// GetJob returns the current job snapshot. Completed jobs carry the
// aggregated result; failed jobs carry the failure record on the snapshot.
func (s *APIV1Service) GetJob(c echo.Context) error {
	ctx := c.Request().Context()
	jobID := c.Param("id")

	job, err := s.Orchestrator.GetStatus(ctx, jobID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get job").SetInternal(err)
	}
	if job == nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
	}

	response := convertJob(job)
	if job.Status == store.JobCompleted {
		result, err := s.Orchestrator.LoadResult(ctx, job)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to load job result").SetInternal(err)
		}
		response.Result = result
	}
	return c.JSON(http.StatusOK, response)
}

// CancelJob requests cancellation of a job. The call is idempotent:
// canceling a terminal job returns its snapshot unchanged, and a queued job
// fails immediately without entering the pipeline.
func (s *APIV1Service) CancelJob(c echo.Context) error {
	jobID := c.Param("id")

	job, err := s.Orchestrator.Cancel(c.Request().Context(), jobID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to cancel job").SetInternal(err)
	}
	if job == nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
	}
	return c.JSON(http.StatusOK, convertJob(job))
}

// ListJobs returns recent jobs, newest first. limit defaults to 20 and is
// capped at 100; an optional status query param filters by lifecycle state.
func (s *APIV1Service) ListJobs(c echo.Context) error {
	limit, offset := parsePagination(c, 20, 100)
	find := &store.FindJob{Limit: &limit, Offset: &offset}
	if status := c.QueryParam("status"); status != "" {
		find.Status = []store.JobStatus{store.JobStatus(strings.ToUpper(status))}
	}

	jobs, err := s.Orchestrator.ListJobs(c.Request().Context(), find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list jobs").SetInternal(err)
	}

	response := &ListJobsResponse{Jobs: make([]*JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, convertJob(job))
	}
	return c.JSON(http.StatusOK, response)
}
