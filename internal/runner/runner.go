// Package runner executes load tests: a shared request budget, a set of
// virtual-user workers, and the controller that owns each run's lifecycle.
package runner

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"volley/internal/stats"
)

type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Summary describes a finished run. It is handed to the HistorySink.
type Summary struct {
	ID              string
	Config          Config
	Stats           stats.Snapshot
	State           State
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds float64
}

// HistorySink stores finished runs.
type HistorySink interface {
	Save(Summary) error
}

// Run is one execution of a load test.
type Run struct {
	id    string
	cfg   Config
	req   Request
	start time.Time
	ctx   context.Context

	state  atomic.Int32
	budget *Budget
	stats  *stats.Aggregator
	pub    Publisher

	// mu orders the stop transition against the completion transition.
	// Events are published outside it.
	mu sync.Mutex

	// stopping tracks a stopped event still being published; done is not
	// closed before it is delivered.
	stopping sync.WaitGroup
	stopCh   chan struct{}
	done     chan struct{}
	summary  Summary
}

func (r *Run) ID() string           { return r.id }
func (r *Run) Config() Config       { return r.cfg }
func (r *Run) StartTime() time.Time { return r.start }
func (r *Run) State() State         { return State(r.state.Load()) }
func (r *Run) Running() bool        { return r.State() == StateRunning }

// Remaining is the number of requests not yet reserved by a worker.
func (r *Run) Remaining() int { return r.budget.Remaining() }

// Done is closed once every worker has finished and the summary is stored.
func (r *Run) Done() <-chan struct{} { return r.done }

// Summary blocks until the run has finished.
func (r *Run) Summary() Summary {
	<-r.done
	return r.summary
}

func (r *Run) Snapshot() stats.Snapshot {
	return r.stats.Snapshot(time.Now(), r.start)
}

func (r *Run) publish(ev Event) {
	if r.pub != nil {
		r.pub.Publish(ev)
	}
}

func (r *Run) publishUpdate(u Update) {
	u.Stats = r.Snapshot()
	r.publish(Event{Type: EventUpdate, RunID: r.id, Update: &u})
}

func (r *Run) stop() error {
	r.mu.Lock()
	if !r.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		r.mu.Unlock()
		return ErrRunNotRunning
	}
	close(r.stopCh)
	r.stopping.Add(1)
	r.mu.Unlock()

	defer r.stopping.Done()
	r.publish(Event{Type: EventStopped, RunID: r.id})
	return nil
}

// Controller starts and stops runs. Each run gets its own budget and
// aggregator; nothing is shared between runs except the HTTP client.
type Controller struct {
	client    HTTPClient
	registry  *Registry
	history   HistorySink
	publisher Publisher
	logger    *zap.Logger

	NewID func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController wires a controller. registry, history, pub and logger may be
// nil; pub receives the events of every run.
func NewController(client HTTPClient, registry *Registry, history HistorySink, pub Publisher, logger *zap.Logger) *Controller {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		client:    client,
		registry:  registry,
		history:   history,
		publisher: pub,
		logger:    logger,
		NewID:     func() string { return uuid.New().String() },
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (c *Controller) Registry() *Registry { return c.registry }

// Start validates cfg, launches the run and returns its id without waiting
// for it to finish. pub, if not nil, receives this run's events in addition
// to the controller's publisher.
func (c *Controller) Start(cfg Config, pub Publisher) (string, error) {
	run, err := c.StartRun(cfg, pub)
	if err != nil {
		return "", err
	}
	return run.ID(), nil
}

// StartRun is Start returning the run handle.
func (c *Controller) StartRun(cfg Config, pub Publisher) (*Run, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Headers = maps.Clone(cfg.Headers)

	run := &Run{
		id:     c.NewID(),
		cfg:    cfg,
		req:    buildRequest(cfg),
		start:  time.Now(),
		ctx:    c.ctx,
		budget: NewBudget(cfg.TotalRequests),
		stats:  stats.NewAggregator(),
		pub:    MultiPublisher{c.publisher, pub},
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	run.state.Store(int32(StateRunning))

	c.registry.Add(run)
	c.wg.Add(1)

	c.logger.Info("test started",
		zap.String("run_id", run.id),
		zap.String("method", cfg.Method),
		zap.String("url", cfg.URL),
		zap.Int("concurrent_users", cfg.ConcurrentUsers),
		zap.Int("total_requests", cfg.TotalRequests),
		zap.Int("delay_ms", cfg.DelayBetweenRequests),
		zap.Bool("json_body", cfg.Body != "" && cfg.Body.IsJSON()),
	)
	run.publish(Event{Type: EventStarted, RunID: run.id})

	go c.execute(run)

	return run, nil
}

func (c *Controller) execute(run *Run) {
	defer c.wg.Done()

	var wg sync.WaitGroup
	for i := 0; i < run.cfg.ConcurrentUsers; i++ {
		w := &worker{id: i, run: run, client: c.client, logger: c.logger}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop()
		}()
	}
	wg.Wait()

	end := time.Now()
	final := run.stats.Snapshot(end, run.start)

	run.mu.Lock()
	completed := run.state.CompareAndSwap(int32(StateRunning), int32(StateCompleted))
	if !completed {
		run.state.Store(int32(StateStopped))
	}
	run.mu.Unlock()

	if completed {
		run.publish(Event{Type: EventCompleted, RunID: run.id, Final: &final})
	} else {
		run.stopping.Wait()
	}

	run.summary = Summary{
		ID:              run.id,
		Config:          run.cfg,
		Stats:           final,
		State:           run.State(),
		StartTime:       run.start,
		EndTime:         end,
		DurationSeconds: end.Sub(run.start).Seconds(),
	}

	c.logger.Info("test finished",
		zap.String("run_id", run.id),
		zap.Stringer("state", run.summary.State),
		zap.Int64("total_requests", final.TotalRequests),
		zap.Int64("successful_requests", final.SuccessfulRequests),
		zap.Int64("failed_requests", final.FailedRequests),
		zap.Float64("duration_s", run.summary.DurationSeconds),
	)

	if c.history != nil {
		if err := c.history.Save(run.summary); err != nil {
			c.logger.Error("saving test history failed", zap.String("run_id", run.id), zap.Error(err))
		}
	}

	c.registry.Remove(run.id)
	close(run.done)
}

// Stop asks a running run to stop. Workers finish their in-flight request
// and issue no further ones. Unknown or already finished runs are reported
// with ErrUnknownRun or ErrRunNotRunning and are otherwise left alone.
func (c *Controller) Stop(id string) error {
	run, ok := c.registry.Get(id)
	if !ok {
		c.logger.Info("stop requested for unknown test", zap.String("run_id", id))
		return ErrUnknownRun
	}

	if err := run.stop(); err != nil {
		c.logger.Info("stop requested for test that is not running",
			zap.String("run_id", id), zap.Stringer("state", run.State()))
		return err
	}

	c.logger.Info("test stopped", zap.String("run_id", id))
	return nil
}

// Wait blocks until every started run has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Shutdown stops all active runs and waits for them. If ctx expires first,
// in-flight requests are cancelled and ctx's error is returned.
func (c *Controller) Shutdown(ctx context.Context) error {
	for _, id := range c.registry.IDs() {
		_ = c.Stop(id)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return ctx.Err()
	}
}
