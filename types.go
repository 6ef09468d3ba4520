package argwait

import "fmt"

type stage struct {
	args   []any
	wait   int
	cont   Continuation
	sealed bool
	gen    uint64
}

func newStage(gen uint64) *stage {
	return &stage{gen: gen}
}

func (s *stage) idle() bool {
	return s.wait == 0
}

func (s *stage) materialize() Args {
	args := make(Args, len(s.args))
	for i, v := range s.args {
		if g, ok := v.(*groupSlot); ok {
			items := make([]any, len(g.items))
			copy(items, g.items)
			args[i] = items
			continue
		}
		args[i] = v
	}
	return args
}

type groupSlot struct {
	items []any
}

// Args are the resolved positional arguments of a stage, in reservation order.
type Args []any

// Len returns the number of positional arguments.
func (a Args) Len() int {
	return len(a)
}

// Group returns the sequence stored at position i by a Group reservation.
func (a Args) Group(i int) []any {
	return Arg[[]any](a, i)
}

// Arg returns the argument at position i converted to T.
// It panics when i is out of range or the value is not a T; a nil value yields the zero T.
func Arg[T any](a Args, i int) T {
	if i < 0 || i >= len(a) {
		panic(fmt.Sprintf("argwait: argument %d out of range [0,%d)", i, len(a)))
	}
	if a[i] == nil {
		var zero T
		return zero
	}
	v, ok := a[i].(T)
	if !ok {
		var zero T
		panic(fmt.Sprintf("argwait: argument %d is %T, not %T", i, a[i], zero))
	}
	return v
}

// Passable is something Pass can forward into the next positional slot:
// either a plain value built with Value, or a nested *Coordinator.
type Passable interface {
	passInto(c *Coordinator)
}

type plainValue struct {
	v any
}

// Value wraps v so that Pass forwards it as-is.
func Value(v any) Passable {
	return plainValue{v: v}
}

func (p plainValue) passInto(c *Coordinator) {
	c.current.args = append(c.current.args, p.v)
}
