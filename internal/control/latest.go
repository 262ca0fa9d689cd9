package control

import "go.uber.org/atomic"

// Latest is a single-slot mailbox: the writer publishes, the reader sees
// the newest value and never blocks. Older values are overwritten unread.
type Latest[T any] struct {
	p atomic.Pointer[T]
}

func (l *Latest[T]) Publish(v T) { l.p.Store(&v) }

// Load returns the newest value, or false if nothing was published yet.
func (l *Latest[T]) Load() (T, bool) {
	p := l.p.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}
