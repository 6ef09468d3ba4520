package argwait

import (
	"context"
	"log/slog"
	"sync"
)

func newCallSpy() *callSpy {
	return &callSpy{}
}

// callSpy records the order in which continuations, finalizers and handlers ran.
type callSpy struct {
	narrative   []string
	narrativeMx sync.RWMutex
}

func (spy *callSpy) Append(event string) {
	spy.narrativeMx.Lock()
	spy.narrative = append(spy.narrative, event)
	spy.narrativeMx.Unlock()
}

func (spy *callSpy) Len() int {
	spy.narrativeMx.RLock()
	length := len(spy.narrative)
	spy.narrativeMx.RUnlock()

	return length
}

func (spy *callSpy) At(index int) string {
	spy.narrativeMx.RLock()
	event := spy.narrative[index]
	spy.narrativeMx.RUnlock()

	return event
}

func (spy *callSpy) All() []string {
	spy.narrativeMx.RLock()
	events := make([]string, len(spy.narrative))
	copy(events, spy.narrative)
	spy.narrativeMx.RUnlock()

	return events
}

// logSpy keeps the records a logger actually handled.
type logSpy struct {
	level     slog.Level
	records   []slog.Record
	recordsMx sync.Mutex
}

func newLogSpy(level slog.Level) *logSpy {
	return &logSpy{level: level}
}

func (spy *logSpy) Enabled(_ context.Context, level slog.Level) bool {
	return level >= spy.level
}

func (spy *logSpy) Handle(_ context.Context, r slog.Record) error {
	spy.recordsMx.Lock()
	spy.records = append(spy.records, r.Clone())
	spy.recordsMx.Unlock()

	return nil
}

func (spy *logSpy) WithAttrs([]slog.Attr) slog.Handler { return spy }

func (spy *logSpy) WithGroup(string) slog.Handler { return spy }

func (spy *logSpy) Records() []slog.Record {
	spy.recordsMx.Lock()
	records := make([]slog.Record, len(spy.records))
	copy(records, spy.records)
	spy.recordsMx.Unlock()

	return records
}
