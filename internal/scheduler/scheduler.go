// Package scheduler is the admission controller for processing jobs: it
// owns the job table, the FIFO pending queue, the concurrency bound, the
// per-job timeout and cancellation token, and the retention sweeper. It
// is the only component that moves a job between statuses.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediacut/highlightd/internal/logger"
	"github.com/mediacut/highlightd/internal/ports"
	"github.com/mediacut/highlightd/internal/store"
	"github.com/mediacut/highlightd/internal/types"
	"github.com/mediacut/highlightd/internal/usecase"
)

// ErrShuttingDown is returned by Submit once Stop has been called.
var ErrShuttingDown = errors.New("scheduler is shutting down")

// Options wires the scheduler's collaborators and tuning.
type Options struct {
	Video    ports.VideoTool
	ASR      ports.ASR
	Analyzer ports.Analyzer
	Notifier ports.Notifier
	Store    *store.Store
	Log      *logger.Logger

	MaxConcurrentJobs int
	JobTimeout        time.Duration
	OutputRoot        string

	RetentionWindow time.Duration
	CleanupInterval time.Duration

	AdjacentGapSec float64
	EndPaddingSec  float64
}

type Scheduler struct {
	opts Options
	exec *usecase.Executor
	log  *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*types.Job
	queue   []string
	tokens  map[string]*token
	running int
	closed  bool
}

func New(opts Options) *Scheduler {
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = 3
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Store == nil {
		opts.Store = store.Disabled()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*types.Job),
		tokens: make(map[string]*token),
	}
	s.exec = usecase.New(usecase.Deps{
		Video:          opts.Video,
		ASR:            opts.ASR,
		Analyzer:       opts.Analyzer,
		Notifier:       opts.Notifier,
		Log:            opts.Log,
		Persist:        s.persistSnapshot,
		AdjacentGapSec: opts.AdjacentGapSec,
		EndPaddingSec:  opts.EndPaddingSec,
	})
	return s
}

// Start recovers persisted unfinished jobs and launches the retention
// sweeper. Pending and processing records are both re-queued as pending:
// a job that was mid-flight when the process died restarts from the
// beginning, which is safe because every stage overwrites its artifacts.
func (s *Scheduler) Start() {
	recovered, err := s.opts.Store.ListPending(context.Background())
	if err != nil {
		s.log.Error("restart recovery failed", "error", err)
	}
	s.mu.Lock()
	for _, rec := range recovered {
		job := rec
		job.Status = types.JobStatusPending
		job.StartedAt = nil
		s.jobs[job.ID] = &job
		s.queue = append(s.queue, job.ID)
		s.persistLocked(job)
	}
	n := len(recovered)
	s.admitNextLocked()
	s.mu.Unlock()
	if n > 0 {
		s.log.Info("recovered unfinished jobs", "count", n)
	}

	if s.opts.CleanupInterval > 0 && s.opts.RetentionWindow > 0 {
		s.wg.Add(1)
		go s.sweep()
	}
}

// Stop refuses further submissions and waits for running jobs and the
// sweeper to wind down. Jobs interrupted mid-stage keep their processing
// record in the store and are re-queued by the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Submit records a new pending job, persists it, and admits it if a
// concurrency slot is free. The returned job is a snapshot.
func (s *Scheduler) Submit(payload types.JobPayload) (types.Job, error) {
	if len(payload.Videos) == 0 {
		return types.Job{}, errors.New("no videos in request")
	}

	job := types.Job{
		ID:        uuid.NewString(),
		Status:    types.JobStatusPending,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	job.OutputDir = filepath.Join(s.opts.OutputRoot, job.ID)
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return types.Job{}, fmt.Errorf("create output dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.Job{}, ErrShuttingDown
	}
	s.jobs[job.ID] = &job
	s.queue = append(s.queue, job.ID)
	s.persistLocked(job)
	s.admitNextLocked()
	return snapshot(&job), nil
}

// Cancel requests cancellation. A pending job transitions to cancelled
// immediately; a processing job gets its token set and transitions when
// the executor reaches its next stage boundary. Any other status, or an
// unknown id, returns false.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	switch job.Status {
	case types.JobStatusPending:
		s.dropFromQueueLocked(id)
		s.terminalLocked(job, types.JobStatusCancelled, "")
		return true
	case types.JobStatusProcessing:
		if tok, ok := s.tokens[id]; ok {
			tok.Request()
		}
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the job, falling back to the store for
// records already evicted from memory.
func (s *Scheduler) Status(id string) (types.Job, bool) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		snap := snapshot(job)
		s.mu.Unlock()
		return snap, true
	}
	s.mu.Unlock()

	rec, err := s.opts.Store.Get(context.Background(), id)
	if err != nil {
		return types.Job{}, false
	}
	return rec, true
}

// Delete removes a terminal job's record from memory and the store.
// Live jobs must be cancelled first.
func (s *Scheduler) Delete(id string) bool {
	s.mu.Lock()
	if job, ok := s.jobs[id]; ok {
		if !job.Status.Terminal() {
			s.mu.Unlock()
			return false
		}
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	ok, err := s.opts.Store.Delete(context.Background(), id)
	if err != nil {
		s.log.Warn("delete job record failed", "job", id, "error", err)
	}
	return ok || err == nil
}

// admitNextLocked backfills free concurrency slots from the head of the
// pending queue. Caller holds s.mu.
func (s *Scheduler) admitNextLocked() {
	for s.running < s.opts.MaxConcurrentJobs && len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		job, ok := s.jobs[id]
		if !ok || job.Status != types.JobStatusPending {
			continue
		}
		now := time.Now()
		job.Status = types.JobStatusProcessing
		job.StartedAt = &now
		s.persistLocked(*job)

		tok := &token{}
		s.tokens[id] = tok
		s.running++

		s.wg.Add(1)
		go s.execute(id, tok)
	}
}

// execute runs one admitted job under its wall-clock deadline. The
// deadline starts here, at admission, so queue wait never counts against
// the job's budget.
func (s *Scheduler) execute(id string, tok *token) {
	defer s.wg.Done()

	s.mu.Lock()
	job := snapshot(s.jobs[id])
	s.mu.Unlock()

	// the start notification is sent from here, not from inside Submit,
	// so a caller that subscribes right after submitting still sees it
	s.notify(types.Notification{Type: types.EventStart, JobID: id, Message: "processing started"})

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.JobTimeout)
	defer cancel()

	res, err := s.exec.Run(ctx, &job, tok)

	s.mu.Lock()
	cur, ok := s.jobs[id]
	if !ok {
		s.releaseSlotLocked(id)
		s.mu.Unlock()
		return
	}
	cur.Progress = job.Progress

	switch {
	case err == nil:
		s.terminalLocked(cur, types.JobStatusCompleted, "")
		s.notifyResultLocked(cur, res)
	case errors.Is(err, usecase.ErrCancelled) || tok.Requested():
		s.terminalLocked(cur, types.JobStatusCancelled, "")
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		// a fatal stage interrupted by the deadline surfaces the
		// collaborator's own error, so the expired context decides
		s.terminalLocked(cur, types.JobStatusTimeout,
			fmt.Sprintf("processing exceeded the %s time limit", s.opts.JobTimeout))
	case s.ctx.Err() != nil:
		// shutdown: leave the processing record for restart recovery
		s.log.Info("job interrupted by shutdown", "job", id)
	default:
		s.terminalLocked(cur, types.JobStatusError, err.Error())
	}

	s.releaseSlotLocked(id)
	s.admitNextLocked()
	s.mu.Unlock()
}

func (s *Scheduler) releaseSlotLocked(id string) {
	delete(s.tokens, id)
	s.running--
}

// terminalLocked applies the one allowed transition into a terminal
// status, persists it, and emits the job's single terminal notification.
// Caller holds s.mu.
func (s *Scheduler) terminalLocked(job *types.Job, status types.JobStatus, errMsg string) {
	if job.Status.Terminal() {
		return
	}
	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	job.Error = errMsg
	s.persistLocked(*job)

	switch status {
	case types.JobStatusCompleted:
		// notifyResultLocked sends the completion with its artifacts
	case types.JobStatusCancelled:
		s.notify(types.Notification{Type: types.EventCancelled, JobID: job.ID,
			Message: "processing cancelled", Extras: map[string]string{"final": "true"}})
	case types.JobStatusTimeout, types.JobStatusError:
		s.notify(types.Notification{Type: types.EventError, JobID: job.ID,
			Message: errMsg, Extras: map[string]string{"final": "true"}})
	}
}

func (s *Scheduler) notifyResultLocked(job *types.Job, res usecase.Result) {
	s.notify(types.Notification{
		Type:    types.EventComplete,
		JobID:   job.ID,
		Message: "processing complete",
		Extras: map[string]string{
			"final":      "true",
			"outputPath": res.OutputPath,
			"outputDir":  job.OutputDir,
		},
	})
}

func (s *Scheduler) notify(n types.Notification) {
	if s.opts.Notifier != nil {
		s.opts.Notifier.Notify(n)
	}
}

// persistSnapshot is the executor's stage-completion callback. It merges
// the progress map back into the live record and writes the store
// best-effort.
func (s *Scheduler) persistSnapshot(job types.Job) {
	s.mu.Lock()
	if cur, ok := s.jobs[job.ID]; ok && !cur.Status.Terminal() {
		cur.Progress = job.Progress
		job.Status = cur.Status
	}
	s.mu.Unlock()
	if err := s.opts.Store.Upsert(context.Background(), job); err != nil {
		s.log.Warn("persist job failed", "job", job.ID, "error", err)
	}
}

// persistLocked writes the store best-effort. Store failures never block
// scheduling. Caller holds s.mu.
func (s *Scheduler) persistLocked(job types.Job) {
	if err := s.opts.Store.Upsert(context.Background(), job); err != nil {
		s.log.Warn("persist job failed", "job", job.ID, "error", err)
	}
}

func (s *Scheduler) dropFromQueueLocked(id string) {
	for i, qid := range s.queue {
		if qid == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func snapshot(job *types.Job) types.Job {
	snap := *job
	if job.Progress != nil {
		snap.Progress = make(map[string]string, len(job.Progress))
		for k, v := range job.Progress {
			snap.Progress[k] = v
		}
	}
	return snap
}
