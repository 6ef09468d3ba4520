package argwait

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Loop is a single-goroutine cooperative scheduler. Every posted Task is one
// tick; ticks run strictly in posting order on the goroutine that called Run.
// Blocking work is pushed off the loop with Go and its result is posted back
// as a new tick.
type Loop struct {
	mu       sync.Mutex
	queue    []Task
	inflight int
	fatal    error
	idle     []func() error
	running  bool
	closed   bool
	wake     chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	workers *pool.Pool
	handoff sync.WaitGroup
	log     *slog.Logger
}

var _ Scheduler = (*Loop)(nil)

// NewLoop creates a Loop with its worker pool.
func NewLoop(opts ...LoopOption) *Loop {
	cfg := defaultLoopConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Loop{
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		workers: pool.New().WithMaxGoroutines(cfg.workers),
		log:     cfg.logger,
	}
}

// Post queues task. It never blocks and is safe to call from any goroutine.
func (l *Loop) Post(task Task) {
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()
	l.signal()
}

// Fail stops the loop before its next tick; Run returns err.
func (l *Loop) Fail(err error) {
	l.mu.Lock()
	if l.fatal == nil {
		l.fatal = err
	}
	l.mu.Unlock()
	l.signal()
}

// OnIdle registers a one-shot check that runs on the loop goroutine when
// nothing is queued and no worker operation is outstanding.
func (l *Loop) OnIdle(check func() error) {
	l.mu.Lock()
	l.idle = append(l.idle, check)
	l.mu.Unlock()
}

// Go runs work on the worker pool and completes h with its result on a later tick.
// It never blocks: while every worker is busy the work waits off the loop goroutine.
// The context passed to work is cancelled when Run's context is, or on Close.
func (l *Loop) Go(work func(ctx context.Context) (any, error), h *Handle) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.Post(func() { h.Reject(ErrLoopClosed) })
		return
	}
	l.inflight++
	// Add under mu never races the Wait in Close
	l.handoff.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.handoff.Done()
		l.submit(work, h)
	}()
}

func (l *Loop) submit(work func(ctx context.Context) (any, error), h *Handle) {
	ctx := l.ctx
	l.workers.Go(func() {
		var v any
		err := protect(func() error {
			var err error
			v, err = work(ctx)
			return err
		})

		l.mu.Lock()
		l.inflight--
		l.queue = append(l.queue, func() { h.Complete(v, err) })
		l.mu.Unlock()
		l.signal()
	})
}

// Run processes ticks until the loop is idle, failed, or ctx is done.
// It returns the fatal error, the error of an idle check, or ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrLoopRunning
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, l.cancel)
	defer stop()

	for {
		task, done, err := l.next(ctx)
		if done {
			if err != nil {
				l.log.Error("loop stopped", slog.Any("error", err))
			}
			return err
		}

		if perr := protect(func() error { task(); return nil }); perr != nil {
			l.Fail(perr)
		}
	}
}

// Close cancels outstanding worker contexts and waits for the workers to exit.
// Go calls made after Close reject their handle with ErrLoopClosed.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.handoff.Wait()
	l.workers.Wait()
	return nil
}

func (l *Loop) next(ctx context.Context) (Task, bool, error) {
	for {
		l.mu.Lock()
		if l.fatal != nil {
			err := l.fatal
			l.mu.Unlock()
			return nil, true, err
		}
		if err := ctx.Err(); err != nil {
			l.mu.Unlock()
			return nil, true, err
		}

		if len(l.queue) > 0 {
			task := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			return task, false, nil
		}

		if l.inflight == 0 {
			checks := l.idle
			l.idle = nil
			l.mu.Unlock()

			if len(checks) == 0 {
				return nil, true, nil
			}

			var errs []error
			for _, check := range checks {
				if err := check(); err != nil {
					errs = append(errs, err)
				}
			}
			if len(errs) == 1 {
				return nil, true, errs[0]
			}
			if len(errs) > 1 {
				return nil, true, errors.Join(errs...)
			}
			// checks may have queued more work
			continue
		}
		l.mu.Unlock()

		select {
		case <-l.wake:
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
