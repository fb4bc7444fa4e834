// Package executor runs the per-job lifecycle: queue -> running -> a
// terminal state, bridging contract inputs into the mapped graph, waiting
// for the annotated output nodes to write their artifacts, and coercing
// the result back into the contract's declared output types.
//
// # Contract
//
// Each job executes as one cooperative task on a bounded worker pool; jobs
// never block request handlers. State transitions are serialized by the
// JobStore's writer lock (internal/filestore), so within one job id the
// lifecycle is totally ordered.
//
// # Concurrency
//
// A fixed pool of worker goroutines drains a buffered channel of job ids.
// Enqueue never blocks the caller beyond the channel's buffer; callers that
// need to shed load should size the buffer and treat a full channel as
// backpressure.
//
// # Idempotency
//
// Cancel requests are idempotent (internal/filestore.Store.RequestCancel);
// terminal states are sticky and rejected by the JobStore itself.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/comfyendpoints/runtime/internal/domain"
	"github.com/comfyendpoints/runtime/internal/engineclient"
	"github.com/comfyendpoints/runtime/internal/filestore"
	"github.com/comfyendpoints/runtime/internal/logging"
	"github.com/comfyendpoints/runtime/internal/metrics"
)

// Config controls worker pool sizing and output-polling timing constants.
type Config struct {
	Workers             int
	OutputTimeout       time.Duration
	OutputPollInterval  time.Duration
	ArtifactGracePeriod time.Duration
	StateDBPath         string
	Metrics             *metrics.Registry
}

const (
	defaultWorkers       = 8
	defaultOutputTimeout = 180 * time.Second
	defaultPollInterval  = 1500 * time.Millisecond
	defaultGracePeriod   = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.OutputTimeout <= 0 {
		c.OutputTimeout = defaultOutputTimeout
	}
	if c.OutputPollInterval <= 0 {
		c.OutputPollInterval = defaultPollInterval
	}
	if c.ArtifactGracePeriod <= 0 {
		c.ArtifactGracePeriod = defaultGracePeriod
	}
	return c
}

// Executor dispatches job ids onto a worker pool that runs each job's
// lifecycle to completion.
type Executor struct {
	store    *filestore.Store
	engine   *engineclient.Client
	contract *domain.WorkflowContract
	workflow map[string]any
	cfg      Config

	taskCh  chan string
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// New constructs an Executor bound to one contract and workflow payload.
func New(store *filestore.Store, engine *engineclient.Client, contract *domain.WorkflowContract, workflow map[string]any, cfg Config) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		store:    store,
		engine:   engine,
		contract: contract,
		workflow: workflow,
		cfg:      cfg,
		taskCh:   make(chan string, cfg.Workers*4),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the fixed worker pool.
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	logging.Op().Info("job executor started", "workers", e.cfg.Workers)
}

// Stop drains in-flight workers and returns once they've exited.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	logging.Op().Info("job executor stopped")
}

// Enqueue schedules jobID for execution. It does not block on the job
// starting; the gateway handler returns to the caller immediately after
// this call.
func (e *Executor) Enqueue(jobID string) {
	select {
	case e.taskCh <- jobID:
	case <-e.stopCh:
	}
}

// recordTransition reports a job reaching state to the optional metrics
// registry. No-op when Metrics was not configured.
func (e *Executor) recordTransition(state string) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.RecordJobTransition(state)
	}
}

func (e *Executor) worker(id int) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case jobID := <-e.taskCh:
			e.runJob(context.Background(), jobID)
		}
	}
}
