package production

import (
	"errors"
	"sync"
	"time"

	"github.com/comalice/pimulator/realtime"
)

// DefaultCapacity is the number of unread snapshots a StateBuffer holds.
const DefaultCapacity = 5

var (
	// ErrNoData is returned by Read when nothing has ever been published.
	ErrNoData = errors.New("no snapshot published")
	// ErrTimeout is returned by Read, together with the last published
	// snapshot, when nothing new arrived in time.
	ErrTimeout = errors.New("no new snapshot within timeout")
)

// StateBuffer hands snapshots from the tick goroutine to readers. Publish
// never blocks: when the buffer is full the oldest unread snapshot is dropped.
type StateBuffer struct {
	ch chan realtime.Snapshot

	mu      sync.Mutex // serializes publishers, guards the fields below
	last    realtime.Snapshot
	has     bool
	evicted uint64
	onEvict func()
}

// BufferOption configures a StateBuffer.
type BufferOption func(*StateBuffer)

// WithEvictHook registers fn to be called, under the buffer lock, for every
// dropped snapshot.
func WithEvictHook(fn func()) BufferOption {
	return func(b *StateBuffer) {
		b.onEvict = fn
	}
}

// NewStateBuffer creates a buffer holding up to capacity unread snapshots.
// A capacity below 1 selects DefaultCapacity.
func NewStateBuffer(capacity int, opts ...BufferOption) *StateBuffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	b := &StateBuffer{ch: make(chan realtime.Snapshot, capacity)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish implements realtime.Publisher.
func (b *StateBuffer) Publish(s realtime.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = s
	b.has = true
	for {
		select {
		case b.ch <- s:
			return
		default:
		}
		select {
		case <-b.ch:
			b.evicted++
			if b.onEvict != nil {
				b.onEvict()
			}
		default:
		}
	}
}

// Read returns the newest snapshot, draining older unread ones. If none is
// buffered it waits up to timeout for one. On timeout it returns the last
// published snapshot with ErrTimeout, or ErrNoData if there never was one.
func (b *StateBuffer) Read(timeout time.Duration) (realtime.Snapshot, error) {
	var s realtime.Snapshot
	select {
	case s = <-b.ch:
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case s = <-b.ch:
		case <-timer.C:
			if last, ok := b.Latest(); ok {
				return last, ErrTimeout
			}
			return realtime.Snapshot{}, ErrNoData
		}
	}
	return b.drain(s), nil
}

// drain consumes everything buffered after s and returns the newest
// snapshot. A concurrent reader may have taken the newer entries, in which
// case the last published snapshot is returned instead.
func (b *StateBuffer) drain(s realtime.Snapshot) realtime.Snapshot {
	for {
		select {
		case next := <-b.ch:
			s = next
		default:
			if last, ok := b.Latest(); ok && last.Tick > s.Tick {
				return last
			}
			return s
		}
	}
}

// Latest returns the last published snapshot without consuming anything.
func (b *StateBuffer) Latest() (realtime.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.has
}

// Len returns the number of unread snapshots.
func (b *StateBuffer) Len() int { return len(b.ch) }

// Evicted returns how many snapshots were dropped unread.
func (b *StateBuffer) Evicted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}
