// Package jobs runs itinerary document pipelines on a fixed pool of workers so
// the conversion poll never blocks a request goroutine.
package jobs

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"tourdoc/apperr"
	"tourdoc/logging"
	"tourdoc/metrics"
	"tourdoc/pipeline"
)

type Pipeline interface {
	RunWithProgress(ctx context.Context, itineraryID string, report func(pipeline.Stage)) (pipeline.Result, error)
}

// Handle lets the submitter wait for its job.
type Handle struct {
	JobID       string
	ItineraryID string
	UserID      string

	requestID string
	done      chan struct{}
	result    pipeline.Result
	err       error
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait returns the pipeline outcome, or ctx's error if ctx ends first. The job
// keeps running either way.
func (h *Handle) Wait(ctx context.Context) (pipeline.Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return pipeline.Result{}, ctx.Err()
	}
}

type Runner struct {
	pipeline Pipeline
	statuses StatusStore
	hub      *hub
	queue    chan *Handle
	workers  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

func NewRunner(p Pipeline, statuses StatusStore, workers, queueSize int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		pipeline: p,
		statuses: statuses,
		hub:      newHub(),
		queue:    make(chan *Handle, queueSize),
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(i)
	}
	logging.Info().Int("workers", r.workers).Int("queue", cap(r.queue)).Msg("document workers started")
}

// Submit queues a document run for an itinerary. A full queue is reported as
// unavailable rather than blocking the caller.
func (r *Runner) Submit(ctx context.Context, itineraryID, userID string) (*Handle, error) {
	const op = "jobs.Submit"

	h := &Handle{
		JobID:       uuid.NewString(),
		ItineraryID: itineraryID,
		UserID:      userID,
		requestID:   logging.RequestIDFromContext(ctx),
		done:        make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, apperr.Unavailable(op, "document service is shutting down")
	}
	select {
	case r.queue <- h:
	default:
		r.mu.Unlock()
		return nil, apperr.Unavailable(op, "too many documents in progress, try again shortly")
	}
	r.mu.Unlock()

	metrics.JobsQueued.Inc()
	r.update(ctx, h, Status{State: StateQueued})
	logging.Ctx(ctx).Info().Str("job_id", h.JobID).Str("itinerary_id", itineraryID).Msg("document job queued")
	return h, nil
}

func (r *Runner) Status(ctx context.Context, jobID string) (Status, error) {
	return r.statuses.Get(ctx, jobID)
}

// Subscribe streams status changes of a job until it finishes or cancel is called.
func (r *Runner) Subscribe(jobID string) (<-chan Status, func()) {
	s, cancel := r.hub.subscribe(jobID)
	return s.send, cancel
}

// Shutdown stops the workers, fails jobs still waiting in the queue and waits
// for running jobs to return.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		select {
		case h := <-r.queue:
			metrics.JobsQueued.Dec()
			r.finish(context.Background(), h, pipeline.Result{}, apperr.Unavailable("jobs.Shutdown", "document service stopped before the job ran"))
		default:
			return nil
		}
	}
}

func (r *Runner) work(n int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case h := <-r.queue:
			metrics.JobsQueued.Dec()
			r.run(n, h)
		}
	}
}

func (r *Runner) run(worker int, h *Handle) {
	ctx := r.ctx
	if h.requestID != "" {
		ctx = logging.ContextWithRequestID(ctx, h.requestID)
	}
	logging.Ctx(ctx).Debug().Int("worker", worker).Str("job_id", h.JobID).Msg("document job started")

	r.update(ctx, h, Status{State: StateRunning})
	res, err := r.pipeline.RunWithProgress(ctx, h.ItineraryID, func(stage pipeline.Stage) {
		if stage != pipeline.StageDone {
			r.update(ctx, h, Status{State: StateRunning, Stage: string(stage)})
		}
	})
	r.finish(ctx, h, res, err)
}

func (r *Runner) finish(ctx context.Context, h *Handle, res pipeline.Result, err error) {
	h.result, h.err = res, err

	st := Status{State: StateDone, Stage: string(pipeline.StageDone)}
	if err != nil {
		st = Status{State: StateFailed, Error: apperr.Message(err)}
	} else {
		st.PDF = filepath.Base(res.PDFPath)
		st.Docx = filepath.Base(res.DocxPath)
	}
	r.update(ctx, h, st)
	r.hub.closeJob(h.JobID)
	close(h.done)
}

func (r *Runner) update(ctx context.Context, h *Handle, st Status) {
	st.JobID = h.JobID
	st.ItineraryID = h.ItineraryID
	st.UserID = h.UserID
	st.UpdatedAt = time.Now().UTC()

	// Status writes must outlive a cancelled request.
	if err := r.statuses.Put(context.WithoutCancel(ctx), st); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("job_id", h.JobID).Msg("could not save job status")
	}
	r.hub.publish(st)
}
