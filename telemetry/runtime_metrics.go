package telemetry

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// RuntimeSampler periodically emits Go runtime gauges (heap, GC,
// goroutines) into the metric pipeline. It is the Go-native counterpart
// of process-level resource sampling.
type RuntimeSampler struct {
	meter    *Meter
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRuntimeSampler creates a sampler emitting through meter.
func NewRuntimeSampler(meter *Meter, interval time.Duration) *RuntimeSampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &RuntimeSampler{meter: meter, interval: interval}
}

// Start launches the background collection goroutine. Starting twice is
// a no-op.
func (s *RuntimeSampler) Start() {
	s.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.collect()
				}
			}
		}()
	})
}

// Stop halts collection and waits for the goroutine to exit.
func (s *RuntimeSampler) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
}

func (s *RuntimeSampler) collect() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.meter.Gauge("runtime.heap.alloc_bytes", float64(mem.HeapAlloc))
	s.meter.Gauge("runtime.heap.sys_bytes", float64(mem.HeapSys))
	s.meter.Gauge("runtime.goroutines", float64(runtime.NumGoroutine()))
	s.meter.Gauge("runtime.cpu.count", float64(runtime.NumCPU()))
	s.meter.Counter("runtime.gc.count", float64(mem.NumGC))
	s.meter.Gauge("runtime.gc.pause_total_ms",
		float64(mem.PauseTotalNs)/float64(time.Millisecond))
}
