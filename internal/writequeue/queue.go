package writequeue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	obsmetrics "github.com/smallbiznis/parkvoucher/internal/observability/metrics"
	"go.uber.org/zap"
)

var (
	ErrClosed    = errors.New("write queue closed")
	ErrTaskPanic = errors.New("write task panicked")
)

// Task is one mutation. It runs alone: no other task executes until it returns.
type Task func(ctx context.Context) error

// Classifier reports whether an error is an expected business outcome that
// should reach the caller without being logged as a failure.
type Classifier func(err error) bool

type job struct {
	name     string
	ctx      context.Context
	fn       Task
	enqueued time.Time
	result   chan error
}

// Queue runs tasks one at a time in submission order. A failing or panicking
// task never blocks the tasks behind it. Once a task is accepted it runs to
// completion even if the submitter's context is cancelled.
type Queue struct {
	log      *zap.Logger
	metrics  *obsmetrics.WriteQueueMetrics
	expected Classifier

	mu      sync.Mutex
	pending []*job
	closed  bool
	started bool

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

type Options struct {
	Log      *zap.Logger
	Metrics  *obsmetrics.WriteQueueMetrics
	Expected Classifier
}

func New(opts Options) *Queue {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		log:      log.Named("writequeue"),
		metrics:  opts.Metrics,
		expected: opts.Expected,
		signal:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the single consumer. Calling it twice is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go q.loop()
}

// Stop refuses new tasks, drains the ones already accepted and waits for the
// consumer to exit or ctx to end.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	started := q.started
	q.mu.Unlock()

	close(q.stop)
	if !started {
		q.failPending(ErrClosed)
		return nil
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do enqueues fn and blocks until it has run, returning its error.
func (q *Queue) Do(ctx context.Context, name string, fn Task) error {
	if fn == nil {
		return errors.New("write task is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	j := &job{
		name:     name,
		ctx:      context.WithoutCancel(ctx),
		fn:       fn,
		enqueued: time.Now(),
		result:   make(chan error, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, j)
	depth := len(q.pending)
	q.mu.Unlock()

	q.metrics.SetDepth(depth)
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return <-j.result
}

// Len reports the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		if j := q.next(); j != nil {
			q.run(j)
			continue
		}
		select {
		case <-q.signal:
		case <-q.stop:
			for j := q.next(); j != nil; j = q.next() {
				q.run(j)
			}
			return
		}
	}
}

func (q *Queue) next() *job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	j := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.metrics.SetDepth(len(q.pending))
	return j
}

func (q *Queue) run(j *job) {
	start := time.Now()
	q.metrics.ObserveWait(start.Sub(j.enqueued))

	err, panicked := q.call(j)
	outcome := obsmetrics.TaskOutcomeOK
	switch {
	case panicked:
		outcome = obsmetrics.TaskOutcomePanic
		q.log.Error("write task panicked", zap.String("task", j.name), zap.Error(err))
	case err != nil && q.isExpected(err):
		outcome = obsmetrics.TaskOutcomeExpected
	case err != nil:
		outcome = obsmetrics.TaskOutcomeFailed
		q.log.Error("write task failed", zap.String("task", j.name), zap.Error(err))
	}
	q.metrics.ObserveTask(j.name, outcome, time.Since(start))

	j.result <- err
}

func (q *Queue) call(j *job) (err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Debug("write task stack", zap.String("task", j.name), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("%w: %s: %v", ErrTaskPanic, j.name, r)
			panicked = true
		}
	}()
	return j.fn(j.ctx), false
}

func (q *Queue) isExpected(err error) bool {
	return q.expected != nil && q.expected(err)
}

func (q *Queue) failPending(err error) {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, j := range pending {
		j.result <- err
	}
}
