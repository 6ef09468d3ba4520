package argwait

import (
	"fmt"
	"log/slog"
	"runtime"
)

type config struct {
	policy ErrorPolicy
	logger *slog.Logger
	name   string
}

// Option configures a Coordinator.
type Option func(*config)

func defaultConfig() config {
	return config{
		policy: Fatal,
	}
}

// WithErrorPolicy sets what happens to an error nobody handles.
// It panics if p is not a known policy.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(c *config) {
		if !p.Valid() {
			panic(fmt.Errorf("argwait: %w: %q", ErrUnknownPolicy, p))
		}
		c.policy = p
	}
}

// WithLogger sets the logger used for debug tracing and fatal errors.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithName adds a "workflow" attribute to every log record of the coordinator.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

type loopConfig struct {
	workers int
	logger  *slog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*loopConfig)

// DefaultWorkers is the size of the worker pool when WithWorkers is not given.
const DefaultWorkers = 8

func defaultLoopConfig() loopConfig {
	return loopConfig{
		workers: DefaultWorkers,
	}
}

// WithWorkers bounds how many blocking operations started with Loop.Go run at once.
// A non-positive n selects runtime.GOMAXPROCS(0).
func WithWorkers(n int) LoopOption {
	return func(c *loopConfig) {
		if n < 1 {
			n = runtime.GOMAXPROCS(0)
		}
		c.workers = n
	}
}

// WithLoopLogger sets the logger of the loop.
func WithLoopLogger(l *slog.Logger) LoopOption {
	return func(c *loopConfig) {
		c.logger = l
	}
}
