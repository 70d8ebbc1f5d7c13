package ports

import "time"

// systemClock is the default Clock, reading the real wall clock. Mirrors
// the teacher's guardian.wallClock pattern: a zero-size type satisfying
// the interface, swapped out in tests for a deterministic queue.
type systemClock struct{}

// SystemClock is the production Clock: POSIX seconds UTC from time.Now().
var SystemClock Clock = systemClock{}

func (systemClock) Now() uint64 {
	return uint64(time.Now().UTC().Unix())
}

// FixedClock returns a constant time, for tests that don't care about
// sequencing.
type FixedClock uint64

func (f FixedClock) Now() uint64 { return uint64(f) }

// QueueClock returns successive values from a fixed queue, repeating the
// last value once exhausted. Grounds spec §8 scenario 3 ("injected clock
// returning 13:00, 13:00, 14:00").
type QueueClock struct {
	values []uint64
	pos    int
}

// NewQueueClock builds a QueueClock over values. Passing no values makes
// every call return 0.
func NewQueueClock(values ...uint64) *QueueClock {
	return &QueueClock{values: values}
}

func (q *QueueClock) Now() uint64 {
	if len(q.values) == 0 {
		return 0
	}
	if q.pos >= len(q.values) {
		return q.values[len(q.values)-1]
	}
	v := q.values[q.pos]
	q.pos++
	return v
}
