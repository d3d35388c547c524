package ingest

import (
	"context"
	"sync"

	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/logger"
)

const (
	DefaultWorkerCount = 3

	defaultQueueDepth = 256
)

// submission is one queued ingest request.
type submission struct {
	jobID string
	url   string
	opts  *ProcessOptions
}

// Dispatcher runs ingest pipelines on a bounded pool of workers so callers
// can submit a URL and return immediately with a job id to poll.
type Dispatcher struct {
	svc         *Service
	log         *logger.Logger
	workerCount int
	queue       chan submission

	wg       sync.WaitGroup
	stopChan chan struct{}
	mu       sync.RWMutex
	running  bool
}

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	// WorkerCount caps how many pipelines run in parallel.
	WorkerCount int
	// QueueDepth bounds how many submissions may wait for a worker.
	QueueDepth int
}

// NewDispatcher creates a dispatcher over svc. Call Start before submitting.
func NewDispatcher(svc *Service, cfg *DispatcherConfig, log *logger.Logger) *Dispatcher {
	if cfg == nil {
		cfg = &DispatcherConfig{}
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	queueDepth := cfg.QueueDepth
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	if log == nil {
		log = logger.Default()
	}

	return &Dispatcher{
		svc:         svc,
		log:         log.WithComponent("dispatcher"),
		workerCount: workerCount,
		queue:       make(chan submission, queueDepth),
		stopChan:    make(chan struct{}),
	}
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true
	d.stopChan = make(chan struct{})

	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	d.log.Info(context.Background(), "Ingest workers started", map[string]interface{}{
		"workers": d.workerCount,
	})
}

// Stop gracefully stops the workers, waiting for in-flight pipelines to
// finish or ctx to expire. Submissions still waiting in the queue stay in
// the registry as queued.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info(ctx, "Ingest workers stopped")
		return nil
	case <-ctx.Done():
		d.log.Warn(ctx, "Ingest worker shutdown timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the workers are accepting submissions.
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// QueueDepth reports how many submissions are waiting for a worker.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// SubmitURL registers a queued job and schedules its pipeline. The returned
// job id can be polled with GetJobStatus right away.
func (d *Dispatcher) SubmitURL(url string, opts *ProcessOptions) (string, error) {
	if url == "" {
		return "", apperrors.BadRequest("url is required")
	}
	if !d.IsRunning() {
		return "", apperrors.InternalError("ingest workers are not running")
	}

	job := NewJob(url)
	d.svc.store.Put(job)

	select {
	case d.queue <- submission{jobID: job.ID, url: url, opts: opts}:
		return job.ID, nil
	default:
		d.svc.store.Delete(job.ID)
		return "", apperrors.QueueFull()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopChan:
			return
		case sub := <-d.queue:
			d.process(id, sub)
		}
	}
}

func (d *Dispatcher) process(workerID int, sub submission) {
	ctx := context.Background()
	d.log.Debug(ctx, "Worker picked up job", map[string]interface{}{
		"worker": workerID,
		"job_id": sub.jobID,
	})

	result := d.svc.run(ctx, sub.jobID, sub.url, sub.opts)

	d.log.Debug(ctx, "Worker finished job", map[string]interface{}{
		"worker":  workerID,
		"job_id":  sub.jobID,
		"success": result.Success,
	})
}
