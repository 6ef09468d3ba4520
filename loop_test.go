package argwait

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_loop_Run(t *testing.T) {
	t.Run("positive", func(t *testing.T) {
		t.Run("empty loop returns at once", func(t *testing.T) {
			loop := NewLoop()
			defer loop.Close()

			assert.NoError(t, loop.Run(context.Background()))
		})

		t.Run("ticks run in posting order", func(t *testing.T) {
			loop := NewLoop()
			defer loop.Close()
			spy := newCallSpy()

			loop.Post(func() {
				spy.Append("1")
				loop.Post(func() { spy.Append("3") })
			})
			loop.Post(func() { spy.Append("2") })

			require.NoError(t, loop.Run(context.Background()))
			assert.Equal(t, []string{"1", "2", "3"}, spy.All())
		})

		t.Run("worker results land in reservation order", func(t *testing.T) {
			loop := NewLoop(WithWorkers(4))
			defer loop.Close()
			c := New(loop)

			delays := []time.Duration{60 * time.Millisecond, 40 * time.Millisecond, 20 * time.Millisecond, 0}
			for i, d := range delays {
				i, d := i, d
				loop.Go(func(ctx context.Context) (any, error) {
					time.Sleep(d)
					return i, nil
				}, c.Arg())
			}

			var got Args
			c.Then(func(args Args) error {
				got = args
				return nil
			})

			require.NoError(t, loop.Run(context.Background()))
			assert.Equal(t, Args{0, 1, 2, 3}, got)
		})

		t.Run("idle checks run once nothing is left", func(t *testing.T) {
			loop := NewLoop()
			defer loop.Close()
			spy := newCallSpy()

			loop.OnIdle(func() error {
				spy.Append("idle")
				loop.Post(func() { spy.Append("after idle") })
				return nil
			})
			loop.Post(func() { spy.Append("tick") })

			require.NoError(t, loop.Run(context.Background()))
			assert.Equal(t, []string{"tick", "idle", "after idle"}, spy.All())
		})
	})

	t.Run("negative", func(t *testing.T) {
		t.Run("fail stops before the next tick", func(t *testing.T) {
			loop := NewLoop()
			defer loop.Close()
			spy := newCallSpy()
			boom := errors.New("boom")

			loop.Post(func() {
				spy.Append("fail")
				loop.Fail(boom)
				loop.Fail(errors.New("ignored"))
			})
			loop.Post(func() { spy.Append("never") })

			assert.ErrorIs(t, loop.Run(context.Background()), boom)
			assert.Equal(t, []string{"fail"}, spy.All())
		})

		t.Run("panicking tick is fatal", func(t *testing.T) {
			loop := NewLoop()
			defer loop.Close()

			loop.Post(func() { panic("kaboom") })

			var perr *PanicError
			require.ErrorAs(t, loop.Run(context.Background()), &perr)
			assert.Equal(t, "kaboom", perr.Value)
		})

		t.Run("failing idle check", func(t *testing.T) {
			loop := NewLoop()
			defer loop.Close()
			boom := errors.New("boom")

			loop.OnIdle(func() error { return boom })

			assert.ErrorIs(t, loop.Run(context.Background()), boom)
		})

		t.Run("nested run", func(t *testing.T) {
			loop := NewLoop()
			defer loop.Close()

			var nested error
			loop.Post(func() { nested = loop.Run(context.Background()) })

			require.NoError(t, loop.Run(context.Background()))
			assert.ErrorIs(t, nested, ErrLoopRunning)
		})

		t.Run("context cancelled while a worker is busy", func(t *testing.T) {
			loop := NewLoop()
			c := New(loop)
			release := make(chan struct{})

			loop.Go(func(ctx context.Context) (any, error) {
				<-release
				return nil, nil
			}, c.Pend())

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			assert.ErrorIs(t, loop.Run(ctx), context.DeadlineExceeded)

			close(release)
			assert.NoError(t, loop.Close())
		})

		t.Run("saturated pool does not block the loop", func(t *testing.T) {
			loop := NewLoop(WithWorkers(1))
			defer loop.Close()
			c := New(loop)

			slow := func(ctx context.Context) (any, error) {
				select {
				case <-time.After(300 * time.Millisecond):
					return nil, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			ticked := false
			loop.Post(func() {
				for i := 0; i < 3; i++ {
					loop.Go(slow, c.Pend())
				}
			})
			loop.Post(func() { ticked = true })

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			start := time.Now()
			err := loop.Run(ctx)

			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Less(t, time.Since(start), 250*time.Millisecond)
			assert.True(t, ticked)
		})

		t.Run("close waits for work handed off concurrently", func(t *testing.T) {
			loop := NewLoop(WithWorkers(2))

			var ran atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					loop.Go(func(ctx context.Context) (any, error) {
						ran.Add(1)
						return nil, nil
					}, nil)
				}()
			}
			require.NoError(t, loop.Close())
			wg.Wait()

			// one completion or rejection per call, none still in flight
			loop.mu.Lock()
			defer loop.mu.Unlock()
			assert.Len(t, loop.queue, 20)
			assert.Equal(t, 0, loop.inflight)
			assert.LessOrEqual(t, ran.Load(), int32(20))
		})

		t.Run("worker panic reaches the error handler", func(t *testing.T) {
			loop := NewLoop()
			defer loop.Close()
			c := New(loop)

			loop.Go(func(ctx context.Context) (any, error) {
				panic("worker")
			}, c.Arg())
			c.Then(nil)

			var handled error
			c.Error(func(err error) error {
				handled = err
				return nil
			})

			require.NoError(t, loop.Run(context.Background()))
			var perr *PanicError
			require.ErrorAs(t, handled, &perr)
			assert.Equal(t, "worker", perr.Value)
		})

		t.Run("work started after close is rejected", func(t *testing.T) {
			loop := NewLoop()
			require.NoError(t, loop.Close())
			c := New(loop)

			loop.Go(func(ctx context.Context) (any, error) {
				return "never", nil
			}, c.Arg())
			c.Then(nil)

			var handled error
			c.Error(func(err error) error {
				handled = err
				return nil
			})

			require.NoError(t, loop.Run(context.Background()))
			assert.ErrorIs(t, handled, ErrLoopClosed)
		})
	})
}
