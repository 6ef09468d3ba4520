package argwait

// ErrorPolicy decides what happens to an error when no handler is registered.
type ErrorPolicy string

const (
	// Fatal terminates the scheduler with an *UncaughtError.
	Fatal = ErrorPolicy("fatal")
	// Hold keeps the error until the next Error registration consumes it.
	// It still becomes fatal if the scheduler goes idle first.
	Hold = ErrorPolicy("hold")
)

// Valid reports whether p is a known policy.
func (p ErrorPolicy) Valid() bool {
	return p == Fatal || p == Hold
}
