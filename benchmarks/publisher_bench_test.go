package benchmarks

import (
	"sync"
	"testing"
	"time"

	"github.com/comalice/pimulator/internal/production"
	"github.com/comalice/pimulator/realtime"
)

func BenchmarkStateBufferPublish(b *testing.B) {
	buf := production.NewStateBuffer(production.DefaultCapacity)
	snap := realtime.Snapshot{RunID: "bench"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		snap.Tick = uint64(i)
		buf.Publish(snap)
	}
	b.ReportMetric(float64(buf.Evicted()), "evicted")
}

// BenchmarkStateBufferContended publishes from one goroutine while a reader
// drains concurrently, like the tick loop and an HTTP poller.
func BenchmarkStateBufferContended(b *testing.B) {
	buf := production.NewStateBuffer(production.DefaultCapacity)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_, _ = buf.Read(time.Millisecond)
			}
		}
	}()

	snap := realtime.Snapshot{RunID: "bench"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		snap.Tick = uint64(i)
		buf.Publish(snap)
	}
	b.StopTimer()
	close(done)
	wg.Wait()
}
