package argwait

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// Coordinator sequences asynchronous completions into continuation stages.
//
// Reservations (Arg, Group, Pass) go to the current stage; Then seals it with
// a continuation and opens the next one. A sealed stage resumes on a later
// scheduler tick once all its reservations resolved. Wait queues finalizers
// for the moment nothing is pending, Error queues handlers for failures.
//
// A Coordinator is not safe for concurrent use: call it only from the
// scheduler goroutine, or before the scheduler starts running.
type Coordinator struct {
	sched Scheduler
	cfg   config
	log   *slog.Logger
	id    string

	generation uint64
	pending    int
	current    *stage
	handlers   []ErrorHandler
	drainQueue []Finalizer
	draining   bool

	held      []error
	idleArmed bool
	failed    bool

	joiners []*Handle
	result  any
}

// New creates a Coordinator that defers its work onto s.
func New(s Scheduler, opts ...Option) *Coordinator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	id := uuid.Must(uuid.NewV7()).String()
	log := cfg.logger.With(slog.String("coordinator_id", id))
	if cfg.name != "" {
		log = log.With(slog.String("workflow", cfg.name))
	}

	return &Coordinator{
		sched:   s,
		cfg:     cfg,
		log:     log,
		id:      id,
		current: newStage(0),
	}
}

// ID returns the identifier used in log records and uncaught errors.
func (c *Coordinator) ID() string {
	return c.id
}

// Pending returns the number of sealed stages and bare pendings not yet finished.
func (c *Coordinator) Pending() int {
	return c.pending
}

// Generation returns the current error generation.
func (c *Coordinator) Generation() uint64 {
	return c.generation
}

// Failed reports whether an uncaught error terminated the coordinator.
func (c *Coordinator) Failed() bool {
	return c.failed
}

// Return sets the value a parent coordinator receives when this one was
// passed to its Pass and has drained.
func (c *Coordinator) Return(v any) {
	c.result = v
}

// Arg reserves the next positional argument of the current stage.
func (c *Coordinator) Arg() *Handle {
	s := c.current
	slot := len(s.args)
	s.args = append(s.args, nil)
	s.wait++
	c.trace("arg", slog.Int("slot", slot), slog.Int("wait", s.wait))

	return c.newHandle(s.gen, "arg",
		func(v any) { s.args[slot] = v },
		func() { c.release(s) },
	)
}

// Pass forwards p as the next positional argument. A plain Value is stored at
// once; a *Coordinator occupies the slot until it drains, then yields its
// Return value.
func (c *Coordinator) Pass(p Passable) {
	c.trace("pass", slog.Int("slot", len(c.current.args)))
	p.passInto(c)
}

func (c *Coordinator) passInto(parent *Coordinator) {
	if c == parent {
		panic(ErrSelfJoin)
	}
	if c.sched != parent.sched {
		panic(ErrForeignScheduler)
	}
	c.joiners = append(c.joiners, parent.Arg())
	c.settle()
}

// Group is a positional argument holding an ordered sequence whose elements
// resolve independently.
type Group struct {
	c    *Coordinator
	s    *stage
	slot *groupSlot
}

// Group reserves the next positional argument as a sequence. Elements are
// added with Add until the stage is sealed by Then.
func (c *Coordinator) Group() *Group {
	s := c.current
	g := &groupSlot{items: []any{}}
	c.trace("group", slog.Int("slot", len(s.args)))
	s.args = append(s.args, g)

	return &Group{c: c, s: s, slot: g}
}

// Add reserves the next element of the sequence.
// It panics with ErrGroupSealed once the owning stage has a continuation.
func (g *Group) Add() *Handle {
	if g.s.sealed {
		panic(ErrGroupSealed)
	}
	i := len(g.slot.items)
	g.slot.items = append(g.slot.items, nil)
	g.s.wait++
	g.c.trace("group item", slog.Int("item", i), slog.Int("wait", g.s.wait))

	return g.c.newHandle(g.s.gen, "group",
		func(v any) { g.slot.items[i] = v },
		func() { g.c.release(g.s) },
	)
}

// Len returns the number of reserved elements.
func (g *Group) Len() int {
	return len(g.slot.items)
}

// Then seals the current stage with fn and opens a new one. fn runs on a later
// tick once every reservation of the sealed stage resolved. A nil fn only
// waits.
func (c *Coordinator) Then(fn Continuation) {
	s := c.current
	s.cont = fn
	s.sealed = true
	c.current = newStage(c.generation)
	c.pending++
	c.trace("then", slog.Int("args", len(s.args)), slog.Int("wait", s.wait), slog.Int("pending", c.pending))

	if s.idle() {
		c.schedule(s)
	}
}

// Pend returns a handle for work whose result is not forwarded but which must
// finish before the coordinator drains.
func (c *Coordinator) Pend() *Handle {
	c.pending++
	c.trace("pend", slog.Int("pending", c.pending))

	return c.newHandle(c.generation, "pend", nil, func() {
		c.pending--
		c.settle()
	})
}

// Wait queues fn to run once nothing is pending. Finalizers run one per tick
// in registration order; work added by one delays the next.
func (c *Coordinator) Wait(fn Finalizer) {
	c.drainQueue = append(c.drainQueue, fn)
	c.trace("wait", slog.Int("queued", len(c.drainQueue)))
	c.settle()
}

// Error queues fn to consume the next error. Handlers are used once each, in
// registration order. Under Hold, each registration takes the oldest held error.
func (c *Coordinator) Error(fn ErrorHandler) {
	c.handlers = append(c.handlers, fn)
	c.trace("error", slog.Int("handlers", len(c.handlers)))

	if len(c.held) > 0 {
		c.sched.Post(c.deliverHeld)
	}
}

func (c *Coordinator) release(s *stage) {
	s.wait--
	if s.wait > 0 {
		return
	}
	if s.sealed {
		c.schedule(s)
		return
	}
	c.settle()
}

func (c *Coordinator) schedule(s *stage) {
	c.sched.Post(func() { c.resume(s) })
}

func (c *Coordinator) resume(s *stage) {
	if c.failed || s.gen != c.generation {
		c.trace("resume skipped", slog.Uint64("stage_generation", s.gen))
		return
	}
	c.pending--
	c.trace("resume", slog.Int("args", len(s.args)), slog.Int("pending", c.pending))

	if s.cont != nil {
		args := s.materialize()
		if err := protect(func() error { return s.cont(args) }); err != nil {
			c.handleError(s.gen, err)
			return
		}
		if c.failed || s.gen != c.generation {
			return
		}
	}

	// reservations left open by the continuation get an empty stage of their own
	if len(c.current.args) > 0 {
		c.Then(nil)
	}
	c.settle()
}

func (c *Coordinator) drained() bool {
	return c.pending == 0 && c.current.idle()
}

func (c *Coordinator) settle() {
	if c.drained() {
		c.kickDrain()
	}
}

func (c *Coordinator) kickDrain() {
	if c.draining || c.failed {
		return
	}
	if len(c.drainQueue) == 0 && len(c.joiners) == 0 {
		return
	}
	c.draining = true
	c.sched.Post(c.drainStep)
}

func (c *Coordinator) drainStep() {
	c.draining = false
	if c.failed || !c.drained() {
		return
	}

	if len(c.drainQueue) == 0 {
		joiners := c.joiners
		c.joiners = nil
		c.trace("drained", slog.Int("joiners", len(joiners)))
		for _, h := range joiners {
			h.Resolve(c.result)
		}
		return
	}

	fn := c.drainQueue[0]
	c.drainQueue[0] = nil
	c.drainQueue = c.drainQueue[1:]
	c.trace("finalize", slog.Int("queued", len(c.drainQueue)))

	if err := protect(func() error { return fn() }); err != nil {
		c.raise(err)
		return
	}
	c.settle()
}

func (c *Coordinator) handleError(gen uint64, err error) {
	if c.failed {
		return
	}
	if gen != c.generation {
		c.trace("stale error", slog.Uint64("bound_generation", gen))
	}
	c.raise(err)
}

func (c *Coordinator) raise(err error) {
	if len(c.handlers) == 0 {
		c.uncaught(err)
		return
	}

	h := c.handlers[0]
	c.handlers[0] = nil
	c.handlers = c.handlers[1:]
	c.advance()
	c.trace("handle error", slog.Any("error", err))

	if herr := protect(func() error { return h(err) }); herr != nil {
		c.raise(herr)
		return
	}
	c.settle()
}

func (c *Coordinator) advance() {
	c.generation++
	c.pending = 0
	c.current = newStage(c.generation)
}

func (c *Coordinator) uncaught(err error) {
	if c.cfg.policy == Hold {
		c.advance()
		c.held = append(c.held, err)
		c.trace("error held", slog.Int("held", len(c.held)), slog.Any("error", err))
		if !c.idleArmed {
			c.idleArmed = true
			c.sched.OnIdle(c.checkHeld)
		}
		return
	}

	c.failed = true
	c.log.Error("uncaught error", slog.Uint64("generation", c.generation), slog.Any("error", err))
	c.sched.Fail(&UncaughtError{Err: err, Coordinator: c.id})
}

func (c *Coordinator) deliverHeld() {
	if len(c.held) == 0 || c.failed || len(c.handlers) == 0 {
		return
	}
	err := c.held[0]
	c.held[0] = nil
	c.held = c.held[1:]
	c.raise(err)
}

func (c *Coordinator) checkHeld() error {
	c.idleArmed = false
	if len(c.held) == 0 || c.failed {
		return nil
	}
	err := c.held[0]
	if len(c.held) > 1 {
		err = errors.Join(c.held...)
	}
	c.held = nil
	c.failed = true
	c.log.Error("held error never handled", slog.Any("error", err))
	return &UncaughtError{Err: err, Coordinator: c.id}
}

func (c *Coordinator) trace(msg string, attrs ...slog.Attr) {
	if !c.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	c.log.LogAttrs(context.Background(), slog.LevelDebug, msg, append(attrs, slog.Uint64("generation", c.generation))...)
}
