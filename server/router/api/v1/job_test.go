package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ghurfati/ghurfati/pipeline"
	"github.com/ghurfati/ghurfati/store"
)

func queuedJob(id string) *store.Job {
	return &store.Job{
		ID:        id,
		PhotoRef:  "room.png",
		Style:     "scandinavian",
		Strength:  0.7,
		RoomHint:  "living room",
		Status:    store.JobQueued,
		CreatedTs: 100,
		UpdatedTs: 100,
	}
}

func decodeJob(t *testing.T, body string) *JobResponse {
	t.Helper()
	response := &JobResponse{}
	if err := json.Unmarshal([]byte(body), response); err != nil {
		t.Fatalf("decode job response: %v\nbody: %s", err, body)
	}
	return response
}

func TestSubmitJob(t *testing.T) {
	f := newFixture(t)
	f.pipeline.submitJob = queuedJob("job-1")

	rec := f.do(http.MethodPost, "/api/v1/jobs",
		`{"photo_ref": "room.png", "style": "scandinavian", "strength": 0.7, "room_hint": "living room"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	response := decodeJob(t, rec.Body.String())
	if response.ID != "job-1" || response.Status != "QUEUED" {
		t.Errorf("snapshot = %s/%s, want job-1/QUEUED", response.ID, response.Status)
	}
	if response.Result != nil {
		t.Error("queued snapshot should not carry a result")
	}

	if len(f.pipeline.submitted) != 1 {
		t.Fatalf("submit calls = %d, want 1", len(f.pipeline.submitted))
	}
	params := f.pipeline.submitted[0]
	if params.Style != "scandinavian" || params.Strength != 0.7 || params.RoomHint != "living room" {
		t.Errorf("submitted params = %+v", params)
	}
}

func TestSubmitJobValidationRejected(t *testing.T) {
	f := newFixture(t)
	f.pipeline.submitErr = pipeline.NewValidationError(pipeline.StageSubmission, errors.New(`unknown style "baroque"`))

	rec := f.do(http.MethodPost, "/api/v1/jobs", `{"photo_ref": "room.png", "style": "baroque"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.Contains(rec.Body.String(), "unknown style") {
		t.Errorf("body %q should carry the validation message", rec.Body.String())
	}
}

func TestSubmitJobQueueFull(t *testing.T) {
	f := newFixture(t)
	f.pipeline.submitErr = pipeline.NewCapacityError(pipeline.StageSubmission, errors.New("queue is full"))

	rec := f.do(http.MethodPost, "/api/v1/jobs", `{"photo_ref": "room.png", "style": "scandinavian"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("Retry-After"); got != "5" {
		t.Errorf("Retry-After = %q, want default 5", got)
	}

	// A backend hint overrides the default.
	f.pipeline.submitErr = &pipeline.ClassifiedError{
		Original:   errors.New("queue is full"),
		Stage:      pipeline.StageSubmission,
		Class:      pipeline.ErrorClassCapacity,
		RetryAfter: 30 * time.Second,
	}
	rec = f.do(http.MethodPost, "/api/v1/jobs", `{"photo_ref": "room.png", "style": "scandinavian"}`)
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want hinted 30", got)
	}
}

func TestSubmitJobMalformedBody(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/jobs", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(f.pipeline.submitted) != 0 {
		t.Error("malformed body must not reach the pipeline")
	}
}

func TestGetJob(t *testing.T) {
	f := newFixture(t)

	completed := queuedJob("done")
	completed.Status = store.JobCompleted
	completed.GenerationAttempts = 1
	f.pipeline.statusJobs["done"] = completed
	f.pipeline.result = &pipeline.MatchResult{
		JobID:     "done",
		Status:    "COMPLETED",
		Regions:   []pipeline.RegionResult{{RegionID: "r-1", Matches: []pipeline.ProductMatch{}}},
		Unmatched: []string{"r-1"},
	}

	failed := queuedJob("broken")
	failed.Status = store.JobFailed
	failed.FailedStage = "generation"
	failed.ErrorClass = "transient"
	failed.ErrorMessage = "context deadline exceeded"
	f.pipeline.statusJobs["broken"] = failed

	t.Run("CompletedIncludesResult", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/v1/jobs/done", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		response := decodeJob(t, rec.Body.String())
		if response.Result == nil {
			t.Fatal("completed job should include the aggregated result")
		}
		if response.Result.JobID != "done" || len(response.Result.Regions) != 1 {
			t.Errorf("result = %+v", response.Result)
		}
	})

	t.Run("FailedCarriesFailureRecord", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/v1/jobs/broken", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		response := decodeJob(t, rec.Body.String())
		if response.Result != nil {
			t.Error("failed job should not include a result")
		}
		if response.FailedStage != "generation" || response.ErrorClass != "transient" {
			t.Errorf("failure record = %s/%s", response.FailedStage, response.ErrorClass)
		}
		if response.ErrorMessage != "context deadline exceeded" {
			t.Errorf("error message = %q", response.ErrorMessage)
		}
	})

	t.Run("UnknownIs404", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/v1/jobs/nope", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}

func TestCancelJob(t *testing.T) {
	f := newFixture(t)
	f.pipeline.statusJobs["j1"] = queuedJob("j1")

	rec := f.do(http.MethodPost, "/api/v1/jobs/j1/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if response := decodeJob(t, rec.Body.String()); response.ID != "j1" {
		t.Errorf("snapshot id = %s, want j1", response.ID)
	}

	rec = f.do(http.MethodPost, "/api/v1/jobs/nope/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job cancel status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestListJobs(t *testing.T) {
	f := newFixture(t)
	newer := queuedJob("new")
	newer.CreatedTs = 200
	older := queuedJob("old")
	f.pipeline.listJobs = []*store.Job{newer, older}

	rec := f.do(http.MethodGet, "/api/v1/jobs?limit=5&status=queued", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	response := &ListJobsResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), response); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(response.Jobs) != 2 || response.Jobs[0].ID != "new" || response.Jobs[1].ID != "old" {
		t.Errorf("jobs = %+v, want [new old]", response.Jobs)
	}

	find := f.pipeline.lastFind
	if find.Limit == nil || *find.Limit != 5 {
		t.Errorf("limit = %v, want 5", find.Limit)
	}
	if len(find.Status) != 1 || find.Status[0] != store.JobQueued {
		t.Errorf("status filter = %v, want [QUEUED]", find.Status)
	}
}

func TestListJobsPaginationBounds(t *testing.T) {
	f := newFixture(t)

	f.do(http.MethodGet, "/api/v1/jobs", "")
	if find := f.pipeline.lastFind; find.Limit == nil || *find.Limit != 20 {
		t.Errorf("default limit = %v, want 20", find.Limit)
	}

	f.do(http.MethodGet, "/api/v1/jobs?limit=1000&offset=40", "")
	find := f.pipeline.lastFind
	if find.Limit == nil || *find.Limit != 100 {
		t.Errorf("capped limit = %v, want 100", find.Limit)
	}
	if find.Offset == nil || *find.Offset != 40 {
		t.Errorf("offset = %v, want 40", find.Offset)
	}
}
