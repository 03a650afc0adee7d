package production

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/pimulator/kinematics"
	"github.com/comalice/pimulator/realtime"
)

func snap(tick uint64) realtime.Snapshot {
	return realtime.Snapshot{
		RunID:   "run",
		Tick:    tick,
		SimTime: time.Duration(tick) * 50 * time.Millisecond,
		Wall:    time.Date(2026, 1, 2, 3, 4, 5, int(tick), time.UTC),
		Pose:    kinematics.Pose{X: 72 + float64(tick), Y: 72, Heading: 10},
		Wheels:  kinematics.WheelState{Left: 4.5, Right: -4.5, LeftPhase: 22.5, RightPhase: 337.5},
	}
}

func TestStateBuffer_RoundTrip(t *testing.T) {
	b := NewStateBuffer(DefaultCapacity)
	s := snap(1)

	b.Publish(s)
	got, err := b.Read(10 * time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestStateBuffer_ReadBeforePublish(t *testing.T) {
	b := NewStateBuffer(DefaultCapacity)

	start := time.Now()
	_, err := b.Read(20 * time.Millisecond)

	assert.ErrorIs(t, err, ErrNoData)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestStateBuffer_ReadReturnsNewestAndDrains(t *testing.T) {
	b := NewStateBuffer(DefaultCapacity)
	for i := uint64(1); i <= 3; i++ {
		b.Publish(snap(i))
	}

	got, err := b.Read(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Tick)
	assert.Equal(t, 0, b.Len())

	// nothing new: stale but valid
	got, err = b.Read(5 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, uint64(3), got.Tick)
}

func TestStateBuffer_ConcurrentReadersGetNewest(t *testing.T) {
	b := NewStateBuffer(DefaultCapacity)
	for i := uint64(1); i <= 3; i++ {
		b.Publish(snap(i))
	}

	// One reader has taken the oldest entry when another drains the rest.
	first := <-b.ch
	got, err := b.Read(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Tick)

	assert.Equal(t, snap(3), b.drain(first))
}

func TestStateBuffer_EvictsOldest(t *testing.T) {
	evictions := 0
	b := NewStateBuffer(5, WithEvictHook(func() { evictions++ }))

	for i := uint64(1); i <= 8; i++ {
		b.Publish(snap(i))
	}

	assert.Equal(t, 5, b.Len())
	assert.Equal(t, uint64(3), b.Evicted())
	assert.Equal(t, 3, evictions)
	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(8), latest.Tick)
}

func TestStateBuffer_DefaultCapacity(t *testing.T) {
	b := NewStateBuffer(0)
	for i := uint64(1); i <= 10; i++ {
		b.Publish(snap(i))
	}
	assert.Equal(t, DefaultCapacity, b.Len())
}

func TestStateBuffer_ReadWaitsForPublish(t *testing.T) {
	b := NewStateBuffer(DefaultCapacity)
	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Publish(snap(7))
	}()

	got, err := b.Read(time.Second)

	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Tick)
}

func TestStateBuffer_MonotonicPerReader(t *testing.T) {
	b := NewStateBuffer(DefaultCapacity)
	const n = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= n; i++ {
			b.Publish(snap(i))
		}
	}()

	var prev uint64
	for prev < n {
		got, err := b.Read(time.Second)
		if err != nil && err != ErrTimeout {
			t.Fatalf("Read: %v", err)
		}
		if got.Tick < prev {
			t.Fatalf("tick went backwards: %d after %d", got.Tick, prev)
		}
		prev = got.Tick
	}
	wg.Wait()
}

func TestStateBuffer_PublishNeverBlocks(t *testing.T) {
	b := NewStateBuffer(1)
	done := make(chan struct{})
	go func() {
		for i := uint64(0); i < 1000; i++ {
			b.Publish(snap(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no reader")
	}
}
