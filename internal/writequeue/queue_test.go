package writequeue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var errExpected = errors.New("expected outcome")

func newStartedQueue(t *testing.T, opts Options) *Queue {
	t.Helper()
	q := New(opts)
	q.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})
	return q
}

func TestRunsTasksInSubmissionOrder(t *testing.T) {
	q := New(Options{})

	var mu sync.Mutex
	order := []int{}
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), "order", func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// Wait until the task is queued so submission order is deterministic.
		deadline := time.Now().Add(time.Second)
		for q.Len() != i+1 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	q.Start()
	wg.Wait()
	_ = q.Stop(context.Background())

	for i, got := range order {
		if got != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestTasksNeverOverlap(t *testing.T) {
	q := newStartedQueue(t, Options{})

	var mu sync.Mutex
	running := 0
	maxRunning := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), "overlap", func(context.Context) error {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				mu.Unlock()
				time.Sleep(100 * time.Microsecond)
				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxRunning != 1 {
		t.Fatalf("expected at most one running task, saw %d", maxRunning)
	}
}

func TestErrorIsReturnedAndQueueContinues(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	q := newStartedQueue(t, Options{Log: zap.New(core)})

	boom := errors.New("disk full")
	if err := q.Do(context.Background(), "fail", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	ran := false
	if err := q.Do(context.Background(), "after", func(context.Context) error { ran = true; return nil }); err != nil {
		t.Fatalf("expected next task to succeed, got %v", err)
	}
	if !ran {
		t.Fatalf("expected next task to run")
	}
	if logs.FilterMessage("write task failed").Len() != 1 {
		t.Fatalf("expected failure to be logged once")
	}
}

func TestExpectedErrorsAreNotLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	q := newStartedQueue(t, Options{
		Log:      zap.New(core),
		Expected: func(err error) bool { return errors.Is(err, errExpected) },
	})

	if err := q.Do(context.Background(), "reject", func(context.Context) error { return errExpected }); !errors.Is(err, errExpected) {
		t.Fatalf("expected errExpected, got %v", err)
	}
	if logs.Len() != 0 {
		t.Fatalf("expected no logs for expected errors, got %d", logs.Len())
	}
}

func TestPanicIsRecovered(t *testing.T) {
	q := newStartedQueue(t, Options{})

	err := q.Do(context.Background(), "panic", func(context.Context) error { panic("bad state") })
	if !errors.Is(err, ErrTaskPanic) {
		t.Fatalf("expected ErrTaskPanic, got %v", err)
	}
	if err := q.Do(context.Background(), "after", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected queue to keep running, got %v", err)
	}
}

func TestCancelledCallerStillRunsTask(t *testing.T) {
	q := newStartedQueue(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr error
	err := q.Do(ctx, "detached", func(taskCtx context.Context) error {
		sawErr = taskCtx.Err()
		return nil
	})
	if err != nil {
		t.Fatalf("expected detached task to succeed, got %v", err)
	}
	if sawErr != nil {
		t.Fatalf("expected task context to be detached from cancellation, got %v", sawErr)
	}
}

func TestStopDrainsAndRejects(t *testing.T) {
	q := New(Options{})
	q.Start()

	if err := q.Do(context.Background(), "before", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := q.Do(context.Background(), "after", func(context.Context) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestExactlyOnceDecrementUnderContention(t *testing.T) {
	q := newStartedQueue(t, Options{})

	remain := 7
	const callers = 40
	errNone := errors.New("exhausted")

	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- q.Do(context.Background(), "decrement", func(context.Context) error {
				if remain <= 0 {
					return errNone
				}
				remain--
				return nil
			})
		}()
	}
	wg.Wait()
	close(results)

	ok, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errNone):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 7 || rejected != callers-7 || remain != 0 {
		t.Fatalf("expected 7 successes and %d rejections with remain 0, got %d/%d remain=%d", callers-7, ok, rejected, remain)
	}
}
