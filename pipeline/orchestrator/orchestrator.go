package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ghurfati/ghurfati/pipeline"
	"github.com/ghurfati/ghurfati/pipeline/metrics"
	"github.com/ghurfati/ghurfati/store"
)

// Store is the slice of store operations the orchestrator uses.
type Store interface {
	CreateJob(ctx context.Context, create *store.Job) (*store.Job, error)
	GetJob(ctx context.Context, id string) (*store.Job, error)
	UpdateJob(ctx context.Context, update *store.UpdateJob) (*store.Job, error)
	ListJobs(ctx context.Context, find *store.FindJob) ([]*store.Job, error)
	DeleteJobs(ctx context.Context, delete *store.DeleteJob) (int64, error)
	CreateStyledImage(ctx context.Context, create *store.StyledImage) (*store.StyledImage, error)
	GetStyledImageByJob(ctx context.Context, jobID string) (*store.StyledImage, error)
	CreateRegions(ctx context.Context, creates []*store.Region) ([]*store.Region, error)
	ListRegions(ctx context.Context, find *store.FindRegion) ([]*store.Region, error)
	CreateMatches(ctx context.Context, creates []*store.Match) ([]*store.Match, error)
	ListMatches(ctx context.Context, find *store.FindMatch) ([]*store.Match, error)
}

// ImageStore resolves and persists image content by opaque ref.
type ImageStore interface {
	Read(ref string) ([]byte, error)
	Save(data []byte, ext string) (string, error)
	Stat(ref string) (int64, error)
	Delete(ref string) error
}

// Matcher ranks catalog candidates for one region.
type Matcher interface {
	Match(ctx context.Context, region *store.Region, k int) ([]*store.Match, error)
}

// Config tunes the worker pool, matching fan-out and retention.
type Config struct {
	// Workers is the number of goroutines draining the admission queue.
	Workers int
	// TopK is how many matches are kept per region.
	TopK int
	// MatchConcurrency caps concurrent region queries within one job.
	MatchConcurrency int
	// Retry applies independently to each retryable stage.
	Retry RetryPolicy
	// Retention is how long terminal jobs are kept. Zero disables the
	// janitor.
	Retention time.Duration
	// JanitorInterval is how often expired jobs are purged.
	JanitorInterval time.Duration
}

// DefaultConfig returns the stock orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Workers:          2,
		TopK:             3,
		MatchConcurrency: 4,
		Retry:            DefaultRetryPolicy(),
		Retention:        24 * time.Hour,
		JanitorInterval:  10 * time.Minute,
	}
}

// Dependencies carries everything the orchestrator is wired with.
type Dependencies struct {
	Store     Store
	Images    ImageStore
	Generator pipeline.Generator
	Extractor pipeline.Extractor
	Matcher   Matcher
	Queue     *AdmissionQueue
	Metrics   *metrics.PrometheusExporter
	Logger    *slog.Logger
}

// Orchestrator owns the job lifecycle from submission to terminal status.
type Orchestrator struct {
	store     Store
	images    ImageStore
	generator pipeline.Generator
	extractor pipeline.Extractor
	matcher   Matcher
	queue     *AdmissionQueue
	metrics   *metrics.PrometheusExporter
	logger    *slog.Logger
	config    Config

	running       atomic.Bool
	cancelWorkers context.CancelFunc
	wg            sync.WaitGroup
	active        atomic.Int64

	// cancelSet holds job ids with a pending cancellation request; workers
	// consume entries between stages.
	cancelMu  sync.Mutex
	cancelSet map[string]struct{}
}

// New wires an orchestrator. The admission queue is passed in so its
// capacity is owned by the caller.
func New(deps Dependencies, cfg Config) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("orchestrator needs a store")
	}
	if deps.Images == nil {
		return nil, errors.New("orchestrator needs an image store")
	}
	if deps.Generator == nil {
		return nil, errors.New("orchestrator needs a generator")
	}
	if deps.Extractor == nil {
		return nil, errors.New("orchestrator needs an extractor")
	}
	if deps.Matcher == nil {
		return nil, errors.New("orchestrator needs a matcher")
	}
	if deps.Queue == nil {
		return nil, errors.New("orchestrator needs an admission queue")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewPrometheusExporter(metrics.DefaultConfig())
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MatchConcurrency <= 0 {
		cfg.MatchConcurrency = def.MatchConcurrency
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = def.JanitorInterval
	}
	cfg.Retry = cfg.Retry.normalized()

	return &Orchestrator{
		store:     deps.Store,
		images:    deps.Images,
		generator: deps.Generator,
		extractor: deps.Extractor,
		matcher:   deps.Matcher,
		queue:     deps.Queue,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		config:    cfg,
		cancelSet: make(map[string]struct{}),
	}, nil
}

// Submit validates the request, reserves admission capacity and persists a
// QUEUED job. Rejections are synchronous and leave no job row behind.
func (o *Orchestrator) Submit(ctx context.Context, photoRef string, params pipeline.StyleParams) (*store.Job, error) {
	if photoRef == "" {
		o.metrics.RecordJobRejected("validation")
		return nil, pipeline.NewValidationError(pipeline.StageSubmission, errors.New("photo ref is required"))
	}
	if err := params.Validate(); err != nil {
		o.metrics.RecordJobRejected("validation")
		return nil, pipeline.NewValidationError(pipeline.StageSubmission, err)
	}
	if _, err := o.images.Stat(photoRef); err != nil {
		o.metrics.RecordJobRejected("validation")
		return nil, pipeline.NewValidationError(pipeline.StageSubmission, fmt.Errorf("photo ref %s does not resolve", photoRef))
	}

	if !o.queue.TryReserve() {
		o.metrics.RecordJobRejected("queue_full")
		return nil, pipeline.NewCapacityError(pipeline.StageSubmission, errors.New("admission queue is full"))
	}

	job := &store.Job{
		ID:       shortuuid.New(),
		PhotoRef: photoRef,
		Style:    params.Style,
		Strength: params.Strength,
		RoomHint: params.RoomHint,
		Status:   store.JobQueued,
	}
	created, err := o.store.CreateJob(ctx, job)
	if err != nil {
		o.queue.Release()
		return nil, fmt.Errorf("create job: %w", err)
	}
	o.queue.Enqueue(created.ID)
	o.metrics.RecordJobSubmitted(params.Style)
	o.metrics.SetQueueDepth(o.queue.Depth())
	o.logger.Info("orchestrator: job queued", "job_id", created.ID, "style", params.Style, "queue_depth", o.queue.Depth())
	return created, nil
}

// Cancel requests cancellation. Terminal jobs are untouched, so repeated
// cancels are idempotent. Queued jobs fail right away; a job mid-stage keeps
// running until the in-flight call returns, then its result is discarded.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (*store.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	if job.Status.Terminal() {
		return job, nil
	}

	o.cancelMu.Lock()
	o.cancelSet[jobID] = struct{}{}
	o.cancelMu.Unlock()

	if job.Status == store.JobQueued {
		// Not picked up yet: fail the row now; workers skip terminal jobs
		// at dequeue.
		failed := o.fail(ctx, job, pipeline.NewCanceledError(pipeline.StageSubmission, errors.New("canceled by user")))
		return failed, nil
	}
	o.logger.Info("orchestrator: cancel requested", "job_id", jobID, "status", job.Status)
	return job, nil
}

// GetStatus returns the current job snapshot, or nil when the id is unknown.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*store.Job, error) {
	return o.store.GetJob(ctx, jobID)
}

// ListJobs returns job snapshots for the HTTP listing surface.
func (o *Orchestrator) ListJobs(ctx context.Context, find *store.FindJob) ([]*store.Job, error) {
	return o.store.ListJobs(ctx, find)
}

// LoadResult rebuilds the aggregated result of a job from persisted rows.
// Terminal jobs always reproduce the same result.
func (o *Orchestrator) LoadResult(ctx context.Context, job *store.Job) (*pipeline.MatchResult, error) {
	styled, err := o.store.GetStyledImageByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	regions, err := o.store.ListRegions(ctx, &store.FindRegion{JobID: &job.ID})
	if err != nil {
		return nil, err
	}
	matches, err := o.store.ListMatches(ctx, &store.FindMatch{JobID: &job.ID})
	if err != nil {
		return nil, err
	}
	return pipeline.Aggregate(job, styled, regions, matches), nil
}

// Start launches the worker pool and, when retention is configured, the
// janitor.
func (o *Orchestrator) Start() {
	if !o.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.cancelWorkers = cancel
	for i := 0; i < o.config.Workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx)
	}
	if o.config.Retention > 0 {
		o.wg.Add(1)
		go o.janitor(ctx)
	}
	o.logger.Info("orchestrator: started",
		"workers", o.config.Workers,
		"queue_capacity", o.queue.Capacity(),
		"retention", o.config.Retention)
}

// Stop signals the workers and waits up to timeout for in-flight jobs to
// settle. Jobs still waiting in the queue stay QUEUED and are recovered on
// the next boot.
func (o *Orchestrator) Stop(timeout time.Duration) error {
	if !o.running.CompareAndSwap(true, false) {
		return nil
	}
	o.cancelWorkers()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.logger.Info("orchestrator: stopped")
		return nil
	case <-time.After(timeout):
		o.logger.Warn("orchestrator: shutdown timeout")
		return context.DeadlineExceeded
	}
}

// Recover reconciles jobs left over from a previous run. Queued jobs are
// re-admitted in creation order; jobs caught mid-stage are failed because
// the stage call they were waiting on is gone.
func (o *Orchestrator) Recover(ctx context.Context) error {
	jobs, err := o.store.ListJobs(ctx, &store.FindJob{Status: []store.JobStatus{
		store.JobQueued, store.JobGenerating, store.JobExtracting, store.JobMatching, store.JobAggregating,
	}})
	if err != nil {
		return fmt.Errorf("list unfinished jobs: %w", err)
	}
	// ListJobs returns newest first; recovery replays oldest first so the
	// restored queue keeps the original submission order.
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedTs != jobs[j].CreatedTs {
			return jobs[i].CreatedTs < jobs[j].CreatedTs
		}
		return jobs[i].ID < jobs[j].ID
	})

	requeued, failed := 0, 0
	for _, job := range jobs {
		if job.Status == store.JobQueued {
			// Every queued row held a slot before the restart, so the queue
			// only overflows here when it was reconfigured smaller.
			if !o.queue.TryReserve() {
				o.fail(ctx, job, pipeline.NewCapacityError(pipeline.StageSubmission, errors.New("admission queue full after restart")))
				failed++
				continue
			}
			o.queue.Enqueue(job.ID)
			requeued++
			continue
		}
		o.fail(ctx, job, pipeline.NewTerminalError(stageForStatus(job.Status), errors.New("interrupted by restart")))
		failed++
	}
	if requeued > 0 || failed > 0 {
		o.logger.Info("orchestrator: recovered unfinished jobs", "requeued", requeued, "failed", failed)
	}
	o.metrics.SetQueueDepth(o.queue.Depth())
	return nil
}

func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()
	for {
		jobID, ok := o.queue.Dequeue(ctx)
		if !ok {
			return
		}
		o.metrics.SetQueueDepth(o.queue.Depth())
		o.metrics.SetActiveJobs(int(o.active.Add(1)))
		o.process(ctx, jobID)
		o.metrics.SetActiveJobs(int(o.active.Add(-1)))
	}
}

// process drives one job through the stage sequence. Jobs that turned
// terminal while waiting (canceled in queue) are skipped.
func (o *Orchestrator) process(ctx context.Context, jobID string) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		o.logger.Error("orchestrator: load job", "job_id", jobID, "error", err)
		return
	}
	if job == nil || job.Status.Terminal() {
		o.clearCancel(jobID)
		return
	}

	styled, generated, ok := o.runGeneration(ctx, job)
	if !ok {
		return
	}
	regions, ok := o.runExtraction(ctx, job, styled, generated)
	if !ok {
		return
	}
	matches, ok := o.runMatching(ctx, job, regions)
	if !ok {
		return
	}
	if !o.finish(ctx, job, styled, regions, matches) {
		return
	}
	o.metrics.RecordJobFinished("completed", time.Since(time.Unix(job.CreatedTs, 0)))
}

func (o *Orchestrator) runGeneration(ctx context.Context, job *store.Job) (*store.StyledImage, *pipeline.Generated, bool) {
	if !o.enterStage(ctx, job, store.JobGenerating) {
		return nil, nil, false
	}

	photo, err := o.images.Read(job.PhotoRef)
	if err != nil {
		o.fail(ctx, job, pipeline.NewValidationError(pipeline.StageGeneration, fmt.Errorf("photo ref %s does not resolve", job.PhotoRef)))
		return nil, nil, false
	}

	params := pipeline.StyleParams{Style: job.Style, Strength: job.Strength, RoomHint: job.RoomHint}
	stageStart := time.Now()
	var generated *pipeline.Generated
	attempts, stageErr := o.config.Retry.Do(ctx, pipeline.StageGeneration, func(ctx context.Context) error {
		g, err := o.generator.Generate(ctx, photo, params)
		if err == nil {
			generated = g
		}
		return err
	}, o.retryObserver(job.ID, pipeline.StageGeneration))
	o.persistAttempts(ctx, job.ID, store.JobGenerating, attempts)
	if stageErr != nil {
		o.fail(ctx, job, pipeline.Classify(pipeline.StageGeneration, stageErr))
		return nil, nil, false
	}
	o.metrics.RecordStage(string(pipeline.StageGeneration), time.Since(stageStart))

	// A cancel that landed while the backend call was in flight discards
	// the result: nothing of this job is persisted.
	if o.takeCancel(job.ID) {
		o.failCanceled(ctx, job, pipeline.StageGeneration)
		return nil, nil, false
	}

	imageRef, err := o.images.Save(generated.Image, "")
	if err != nil {
		o.fail(ctx, job, pipeline.NewTerminalError(pipeline.StageGeneration, err))
		return nil, nil, false
	}
	styled, err := o.store.CreateStyledImage(ctx, &store.StyledImage{
		JobID:     job.ID,
		ImageRef:  imageRef,
		Style:     job.Style,
		Strength:  job.Strength,
		RoomHint:  job.RoomHint,
		Prompt:    generated.Prompt,
		LatencyMs: generated.LatencyMs,
	})
	if err != nil {
		o.fail(ctx, job, pipeline.NewTerminalError(pipeline.StageGeneration, err))
		return nil, nil, false
	}
	return styled, generated, true
}

func (o *Orchestrator) runExtraction(ctx context.Context, job *store.Job, styled *store.StyledImage, generated *pipeline.Generated) ([]*store.Region, bool) {
	if !o.enterStage(ctx, job, store.JobExtracting) {
		return nil, false
	}

	stageStart := time.Now()
	var regions []*store.Region
	attempts, stageErr := o.config.Retry.Do(ctx, pipeline.StageExtraction, func(ctx context.Context) error {
		rs, err := o.extractor.Extract(ctx, generated.Image)
		if err == nil {
			regions = rs
		}
		return err
	}, o.retryObserver(job.ID, pipeline.StageExtraction))
	o.persistAttempts(ctx, job.ID, store.JobExtracting, attempts)
	if stageErr != nil {
		o.fail(ctx, job, pipeline.Classify(pipeline.StageExtraction, stageErr))
		return nil, false
	}
	o.metrics.RecordStage(string(pipeline.StageExtraction), time.Since(stageStart))

	for _, region := range regions {
		region.JobID = job.ID
		region.StyledImageID = styled.ID
	}
	if len(regions) > 0 {
		created, err := o.store.CreateRegions(ctx, regions)
		if err != nil {
			o.fail(ctx, job, pipeline.NewTerminalError(pipeline.StageExtraction, err))
			return nil, false
		}
		regions = created
	}
	return regions, true
}

func (o *Orchestrator) runMatching(ctx context.Context, job *store.Job, regions []*store.Region) ([]*store.Match, bool) {
	if !o.enterStage(ctx, job, store.JobMatching) {
		return nil, false
	}
	if len(regions) == 0 {
		return nil, true
	}

	stageStart := time.Now()
	results := make([][]*store.Match, len(regions))
	errs := make([]error, len(regions))
	attempts := make([]int, len(regions))

	sem := make(chan struct{}, o.config.MatchConcurrency)
	var wg sync.WaitGroup
	for i, region := range regions {
		wg.Add(1)
		go func(i int, region *store.Region) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			queryStart := time.Now()
			var matches []*store.Match
			n, err := o.config.Retry.Do(ctx, pipeline.StageMatching, func(ctx context.Context) error {
				ms, err := o.matcher.Match(ctx, region, o.config.TopK)
				if err == nil {
					matches = ms
				}
				return err
			}, o.retryObserver(job.ID, pipeline.StageMatching))
			attempts[i] = n
			if err != nil {
				errs[i] = err
				return
			}
			for _, match := range matches {
				match.JobID = job.ID
			}
			o.metrics.RecordVectorQuery(time.Since(queryStart), len(matches))
			results[i] = matches
		}(i, region)
	}
	wg.Wait()

	stageAttempts := 1
	for _, n := range attempts {
		if n > stageAttempts {
			stageAttempts = n
		}
	}
	o.persistAttempts(ctx, job.ID, store.JobMatching, stageAttempts)

	for _, err := range errs {
		if err != nil {
			o.fail(ctx, job, pipeline.Classify(pipeline.StageMatching, err))
			return nil, false
		}
	}
	o.metrics.RecordStage(string(pipeline.StageMatching), time.Since(stageStart))

	// Reassemble in region order regardless of completion order.
	var all []*store.Match
	for _, matches := range results {
		all = append(all, matches...)
	}
	if len(all) > 0 {
		created, err := o.store.CreateMatches(ctx, all)
		if err != nil {
			o.fail(ctx, job, pipeline.NewTerminalError(pipeline.StageMatching, err))
			return nil, false
		}
		all = created
	}
	return all, true
}

func (o *Orchestrator) finish(ctx context.Context, job *store.Job, styled *store.StyledImage, regions []*store.Region, matches []*store.Match) bool {
	if !o.enterStage(ctx, job, store.JobAggregating) {
		return false
	}
	result := pipeline.Aggregate(job, styled, regions, matches)

	status := store.JobCompleted
	if _, err := o.store.UpdateJob(ctx, &store.UpdateJob{ID: job.ID, Status: &status}); err != nil {
		o.logger.Warn("orchestrator: completion rejected", "job_id", job.ID, "error", err)
		return false
	}
	o.clearCancel(job.ID)
	o.logger.Info("orchestrator: job completed",
		"job_id", job.ID,
		"regions", len(result.Regions),
		"matches", len(matches),
		"unmatched", len(result.Unmatched))
	return true
}

// enterStage checks the cancel flag and advances the status row. A rejected
// transition means the job turned terminal underneath the worker (a cancel
// won the race), so the worker walks away without touching it further.
func (o *Orchestrator) enterStage(ctx context.Context, job *store.Job, status store.JobStatus) bool {
	if o.takeCancel(job.ID) {
		o.failCanceled(ctx, job, stageForStatus(status))
		return false
	}
	updated, err := o.store.UpdateJob(ctx, &store.UpdateJob{ID: job.ID, Status: &status})
	if err != nil {
		o.logger.Warn("orchestrator: stage transition rejected", "job_id", job.ID, "status", status, "error", err)
		return false
	}
	*job = *updated
	return true
}

// fail moves the job to FAILED with its failure record and emits metrics.
func (o *Orchestrator) fail(ctx context.Context, job *store.Job, cerr *pipeline.ClassifiedError) *store.Job {
	o.clearCancel(job.ID)
	status := store.JobFailed
	stage := string(cerr.Stage)
	class := cerr.Class.String()
	message := cerr.Message()
	updated, err := o.store.UpdateJob(ctx, &store.UpdateJob{
		ID:           job.ID,
		Status:       &status,
		FailedStage:  &stage,
		ErrorClass:   &class,
		ErrorMessage: &message,
	})
	if err != nil {
		o.logger.Error("orchestrator: record failure", "job_id", job.ID, "stage", stage, "error", err)
		return job
	}
	o.metrics.RecordStageError(stage, class)
	o.metrics.RecordJobFinished("failed", time.Since(time.Unix(job.CreatedTs, 0)))
	o.logger.Warn("orchestrator: job failed", "job_id", job.ID, "stage", stage, "class", class, "message", message)
	return updated
}

func (o *Orchestrator) failCanceled(ctx context.Context, job *store.Job, stage pipeline.Stage) {
	o.fail(ctx, job, pipeline.NewCanceledError(stage, errors.New("canceled by user")))
}

// persistAttempts records how many tries a stage consumed. Failures here are
// logged, not fatal: the counter is diagnostic.
func (o *Orchestrator) persistAttempts(ctx context.Context, jobID string, status store.JobStatus, attempts int) {
	update := &store.UpdateJob{ID: jobID}
	switch status {
	case store.JobGenerating:
		update.GenerationAttempts = &attempts
	case store.JobExtracting:
		update.ExtractionAttempts = &attempts
	case store.JobMatching:
		update.MatchingAttempts = &attempts
	default:
		return
	}
	if _, err := o.store.UpdateJob(ctx, update); err != nil {
		o.logger.Error("orchestrator: persist attempts", "job_id", jobID, "status", status, "error", err)
	}
}

func (o *Orchestrator) retryObserver(jobID string, stage pipeline.Stage) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		o.metrics.RecordStageRetry(string(stage))
		o.logger.Warn("orchestrator: stage retry",
			"job_id", jobID,
			"stage", stage,
			"attempt", attempt,
			"delay", delay,
			"error", err)
	}
}

func (o *Orchestrator) takeCancel(jobID string) bool {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	if _, ok := o.cancelSet[jobID]; !ok {
		return false
	}
	delete(o.cancelSet, jobID)
	return true
}

func (o *Orchestrator) clearCancel(jobID string) {
	o.cancelMu.Lock()
	delete(o.cancelSet, jobID)
	o.cancelMu.Unlock()
}

func stageForStatus(status store.JobStatus) pipeline.Stage {
	switch status {
	case store.JobGenerating:
		return pipeline.StageGeneration
	case store.JobExtracting:
		return pipeline.StageExtraction
	case store.JobMatching:
		return pipeline.StageMatching
	case store.JobAggregating:
		return pipeline.StageAggregation
	default:
		return pipeline.StageSubmission
	}
}

func (o *Orchestrator) janitor(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.config.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.purgeExpired(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// purgeExpired deletes terminal jobs older than the retention window, their
// dependent rows and their stored images.
func (o *Orchestrator) purgeExpired(ctx context.Context) {
	cutoff := time.Now().Add(-o.config.Retention).Unix()
	jobs, err := o.store.ListJobs(ctx, &store.FindJob{
		Status:        []store.JobStatus{store.JobCompleted, store.JobFailed},
		CreatedBefore: &cutoff,
	})
	if err != nil {
		o.logger.Error("orchestrator: list expired jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	ids := make([]string, 0, len(jobs))
	var refs []string
	for _, job := range jobs {
		ids = append(ids, job.ID)
		if styled, err := o.store.GetStyledImageByJob(ctx, job.ID); err == nil && styled != nil {
			refs = append(refs, styled.ImageRef)
		}
		if regions, err := o.store.ListRegions(ctx, &store.FindRegion{JobID: &job.ID}); err == nil {
			for _, region := range regions {
				if region.CropRef != "" {
					refs = append(refs, region.CropRef)
				}
			}
		}
	}

	purged, err := o.store.DeleteJobs(ctx, &store.DeleteJob{IDs: ids})
	if err != nil {
		o.logger.Error("orchestrator: purge expired jobs", "error", err)
		return
	}
	for _, ref := range refs {
		if err := o.images.Delete(ref); err != nil {
			o.logger.Warn("orchestrator: delete image", "ref", ref, "error", err)
		}
	}
	o.logger.Info("orchestrator: purged expired jobs", "jobs", purged, "images", len(refs))
}
