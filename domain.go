package argwait

// Task is one tick of a Scheduler.
type Task func()

// Scheduler is the host event loop a Coordinator defers its work onto.
// Tasks posted to it run one at a time, in posting order, on a single goroutine.
type Scheduler interface {
	// Post queues task to run on a later tick. Safe to call from any goroutine.
	Post(task Task)
	// Fail terminates the scheduler with a fatal error. Only the first call counts.
	Fail(err error)
	// OnIdle registers check to run once the scheduler has nothing left to do.
	// A non-nil result is treated like a Fail.
	OnIdle(check func() error)
}

// Continuation receives the resolved positional arguments of a stage.
type Continuation func(args Args) error

// Finalizer runs once the coordinator has drained.
type Finalizer func() error

// ErrorHandler consumes one error. Returning an error hands it to the next handler.
type ErrorHandler func(err error) error
