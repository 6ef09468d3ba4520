package argwait

import "log/slog"

// Handle is the single completion signal of one reservation: an argument
// slot, a group element or a bare pending operation. It must be completed
// exactly once, on the loop goroutine; a second call panics with
// ErrAlreadyCompleted.
type Handle struct {
	c       *Coordinator
	gen     uint64
	kind    string
	write   func(v any)
	release func()
	used    bool
}

func (c *Coordinator) newHandle(gen uint64, kind string, write func(v any), release func()) *Handle {
	return &Handle{
		c:       c,
		gen:     gen,
		kind:    kind,
		write:   write,
		release: release,
	}
}

// Complete resolves the reservation with v, or routes err to the error handlers.
// A handle of an abandoned generation still delivers its error, but a value
// only lands in its orphaned slot.
func (h *Handle) Complete(v any, err error) {
	if h.used {
		panic(ErrAlreadyCompleted)
	}
	h.used = true

	if err != nil {
		h.c.handleError(h.gen, err)
		return
	}

	// a stale handle may still fill its orphaned slot
	if h.write != nil {
		h.write(v)
	}

	if h.c.failed || h.gen != h.c.generation {
		h.c.trace("stale completion", slog.String("kind", h.kind), slog.Uint64("bound_generation", h.gen))
		return
	}
	h.release()
}

// Resolve is Complete(v, nil).
func (h *Handle) Resolve(v any) {
	h.Complete(v, nil)
}

// Reject is Complete(nil, err).
func (h *Handle) Reject(err error) {
	h.Complete(nil, err)
}

// Done reports whether the handle was already completed.
func (h *Handle) Done() bool {
	return h.used
}
