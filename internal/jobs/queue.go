// Package jobs runs background work: persisted job records, an in-process
// worker pool, fixed-delay retries for transient failures and periodic sweeps.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/store"
)

// Job kinds.
const (
	KindCreateNote       = "create_note"
	KindUpdateNote       = "update_note"
	KindDeleteNote       = "delete_note"
	KindAnalyzeNote      = "analyze_note"
	KindAnalyzeBatch     = "analyze_batch"
	KindSyncNoteCalendar = "sync_note_calendar"
	KindSyncCalendar     = "sync_calendar_user"
	KindSyncCalendarAll  = "sync_calendar_all"
	KindSweepUnprocessed = "sweep_unprocessed"
)

// ErrQueueClosed is returned by Submit after Run has returned.
var ErrQueueClosed = errors.New("jobs: queue closed")

// Handler executes one job. The returned value is stored as the job result.
// Errors for which apperr.IsPermanent holds are not retried.
type Handler func(ctx context.Context, job *models.Job) (any, error)

// RetryPolicy is a fixed-delay retry ceiling.
type RetryPolicy struct {
	MaxRetries uint64        `yaml:"max_retries"`
	Delay      time.Duration `yaml:"delay"`
}

// Config tunes the worker pool.
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	Retry      map[string]RetryPolicy
}

// DefaultRetry returns the per-kind retry policies.
func DefaultRetry() map[string]RetryPolicy {
	return map[string]RetryPolicy{
		KindCreateNote:       {MaxRetries: 3, Delay: 60 * time.Second},
		KindUpdateNote:       {MaxRetries: 3, Delay: 60 * time.Second},
		KindDeleteNote:       {MaxRetries: 2, Delay: 30 * time.Second},
		KindAnalyzeNote:      {MaxRetries: 2, Delay: 120 * time.Second},
		KindAnalyzeBatch:     {MaxRetries: 2, Delay: 120 * time.Second},
		KindSyncNoteCalendar: {MaxRetries: 3, Delay: 60 * time.Second},
		KindSyncCalendar:     {MaxRetries: 3, Delay: 60 * time.Second},
	}
}

// Queue persists jobs and executes them on a pool of workers.
type Queue struct {
	db       *store.DB
	cfg      Config
	logger   *slog.Logger
	handlers map[string]Handler
	keys     *keyLocks
	submitMu sync.Mutex
	ch       chan string
	stopping chan struct{}
	done     chan struct{}
	onFinish []func(models.Job)
	periodic []periodic
}

type periodic struct {
	name     string
	interval time.Duration
	fn       func(context.Context) error
}

// New creates a queue. Handlers must be registered before Run.
func New(db *store.DB, cfg Config, logger *slog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetry()
	}
	return &Queue{
		db:       db,
		cfg:      cfg,
		logger:   logger,
		handlers: map[string]Handler{},
		keys:     newKeyLocks(),
		ch:       make(chan string, cfg.QueueSize),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register binds a handler to a job kind.
func (q *Queue) Register(kind string, h Handler) {
	q.handlers[kind] = h
}

// OnFinish registers a callback invoked after each job reaches a terminal state.
func (q *Queue) OnFinish(fn func(models.Job)) {
	q.onFinish = append(q.onFinish, fn)
}

// Every schedules fn to run periodically while the queue runs.
func (q *Queue) Every(name string, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 {
		return
	}
	q.periodic = append(q.periodic, periodic{name: name, interval: interval, fn: fn})
}

// Recover fails jobs a previous process left unfinished. Call it once
// before accepting new work.
func (q *Queue) Recover(ctx context.Context) (int64, error) {
	n, err := q.db.FailStaleJobs(ctx)
	if err == nil && n > 0 {
		q.logger.Warn("jobs: failed stale jobs", slog.Int64("count", n))
	}
	return n, err
}

// Submit records a job and hands it to the workers. A non-empty dedupKey
// held by a job that has not started yet returns that job instead of a new
// one. Jobs sharing a key never run concurrently, so a submission made while
// one runs is queued behind it.
func (q *Queue) Submit(ctx context.Context, kind string, userID int64, dedupKey string, payload any) (*models.Job, error) {
	select {
	case <-q.stopping:
		return nil, ErrQueueClosed
	default:
	}
	if _, ok := q.handlers[kind]; !ok {
		return nil, apperr.Validation(fmt.Sprintf("unknown job kind %q", kind))
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode payload: %w", err)
	}

	job, existing, err := q.record(ctx, models.Job{
		ID:       uuid.NewString(),
		Kind:     kind,
		UserID:   userID,
		DedupKey: dedupKey,
		Payload:  raw,
	})
	if err != nil || existing {
		return job, err
	}

	// Jobs left in the channel at shutdown stay PENDING until the next Recover.
	select {
	case q.ch <- job.ID:
		return job, nil
	case <-q.stopping:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// record persists j unless a pending job already holds its dedup key, in
// which case that job is returned with existing set.
func (q *Queue) record(ctx context.Context, j models.Job) (job *models.Job, existing bool, err error) {
	if j.DedupKey != "" {
		q.submitMu.Lock()
		defer q.submitMu.Unlock()
		pending, err := q.db.PendingJobByDedupKey(ctx, j.DedupKey)
		if err == nil {
			return pending, true, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, false, err
		}
	}
	job, err = q.db.CreateJob(ctx, j)
	return job, false, err
}

// Get returns the job with id.
func (q *Queue) Get(ctx context.Context, id string) (*models.Job, error) {
	return q.db.GetJob(ctx, id)
}

// Run starts the workers and periodic tasks and blocks until ctx is done
// and every worker has returned.
func (q *Queue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx)
		}()
	}
	for _, p := range q.periodic {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.tick(ctx, p)
		}()
	}
	q.logger.Info("jobs: started", slog.Int("workers", q.cfg.Workers), slog.Int("periodic", len(q.periodic)))

	<-ctx.Done()
	close(q.stopping)
	wg.Wait()
	close(q.done)
	q.logger.Info("jobs: stopped")
	return nil
}

// Done is closed once Run has returned.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.ch:
			q.process(ctx, id)
		}
	}
}

func (q *Queue) tick(ctx context.Context, p periodic) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := p.fn(ctx); err != nil && ctx.Err() == nil {
				q.logger.Error("jobs: periodic task failed",
					slog.String("task", p.name), slog.String("error", err.Error()))
			}
		}
	}
}

func (q *Queue) policy(kind string) RetryPolicy {
	if p, ok := q.cfg.Retry[kind]; ok {
		return p
	}
	return RetryPolicy{}
}

func (q *Queue) process(ctx context.Context, id string) {
	job, err := q.db.GetJob(ctx, id)
	if err != nil {
		q.logger.Error("jobs: load job failed", slog.String("job_id", id), slog.String("error", err.Error()))
		return
	}
	h := q.handlers[job.Kind]

	var result any
	attempt := func(ctx context.Context) error {
		if err := q.db.MarkJobRunning(ctx, job.ID); err != nil {
			return err
		}
		job.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
		r, err := h(attemptCtx, job)
		if err != nil {
			if apperr.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			q.logger.Warn("jobs: attempt failed",
				slog.String("job_id", job.ID), slog.String("kind", job.Kind),
				slog.Int("attempt", job.Attempts), slog.String("error", err.Error()))
			return err
		}
		result = r
		return nil
	}
	// The key is held per attempt, not across the retry delay.
	op := func() error {
		return q.Exclusive(ctx, job.DedupKey, attempt)
	}
	p := q.policy(job.Kind)
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), p.MaxRetries), ctx)
	runErr := backoff.Retry(op, b)

	// The run context may be gone; the terminal state is written regardless.
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer finishCancel()

	status := models.JobSuccess
	var (
		raw    json.RawMessage
		errMsg string
	)
	if runErr != nil {
		status, errMsg = models.JobFailure, runErr.Error()
		q.logger.Error("jobs: job failed",
			slog.String("job_id", job.ID), slog.String("kind", job.Kind), slog.String("error", errMsg))
	} else if result != nil {
		if raw, err = json.Marshal(result); err != nil {
			status, errMsg, raw = models.JobFailure, fmt.Sprintf("encode result: %v", err), nil
		}
	}
	if err := q.db.FinishJob(finishCtx, job.ID, status, raw, errMsg); err != nil {
		q.logger.Error("jobs: finish job failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return
	}
	job.Status, job.Result, job.Error = status, raw, errMsg
	for _, fn := range q.onFinish {
		fn(*job)
	}
}

// Decode unmarshals the job payload. A malformed payload is a permanent failure.
func Decode[T any](job *models.Job) (T, error) {
	var v T
	if err := json.Unmarshal(job.Payload, &v); err != nil {
		return v, apperr.Validation(fmt.Sprintf("job %s: bad payload: %v", job.ID, err))
	}
	return v, nil
}
