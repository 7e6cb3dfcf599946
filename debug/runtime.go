package debug

// Runtime metrics logger, started only when config.Debug is true. Emits
// goroutine count, stack and heap usage plus process RSS where the platform
// can report it, to tell goroutine or native growth from heap growth.

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"

	"github.com/dustin/go-humanize"
)

// Sample is one runtime reading.
type Sample struct {
	Goroutines uint64
	StackInuse uint64
	HeapAlloc  uint64
	HeapInuse  uint64
	NumGC      uint32
	RSS        uint64
	RSSKnown   bool
}

// Read takes a sample now.
func Read() Sample {
	samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
	metrics.Read(samples)
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s := Sample{
		StackInuse: ms.StackInuse,
		HeapAlloc:  ms.HeapAlloc,
		HeapInuse:  ms.HeapInuse,
		NumGC:      ms.NumGC,
	}
	if samples[0].Value.Kind() == metrics.KindUint64 {
		s.Goroutines = samples[0].Value.Uint64()
	}
	s.RSS, s.RSSKnown = processRSS()
	return s
}

// LogAttrs renders s with human-readable sizes.
func (s Sample) LogAttrs() []any {
	attrs := []any{
		slog.Uint64("goroutines", s.Goroutines),
		slog.String("stack_inuse", humanize.IBytes(s.StackInuse)),
		slog.String("heap_alloc", humanize.IBytes(s.HeapAlloc)),
		slog.String("heap_inuse", humanize.IBytes(s.HeapInuse)),
		slog.Uint64("num_gc", uint64(s.NumGC)),
	}
	if s.RSSKnown {
		attrs = append(attrs, slog.String("rss", humanize.IBytes(s.RSS)))
	}
	return attrs
}

// RunRuntimeLogger logs a Sample every interval until ctx is done.
func RunRuntimeLogger(ctx context.Context, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			logger.Info("runtime", Read().LogAttrs()...)
		}
	}
}
