package telemetry

import (
	"context"
	"log"
	"sync"
	"time"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait before shutting down OTel providers and the Kafka writer
// so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// inflight counts running async emits; idle is closed when the count drops back to zero. EmitAsync
// may run concurrently with Drain.
var inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func beginEmit() {
	inflight.mu.Lock()
	if inflight.n == 0 {
		inflight.idle = make(chan struct{})
	}
	inflight.n++
	inflight.mu.Unlock()
}

func endEmit() {
	inflight.mu.Lock()
	inflight.n--
	if inflight.n == 0 {
		close(inflight.idle)
	}
	inflight.mu.Unlock()
}

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Use for fire-and-forget, best-effort telemetry; errors are logged.
//
// emitter and event may be nil; EmitAsync returns immediately without starting a goroutine.
// The goroutine uses context.Background() with emitTimeout so caller cancellation does not abort in-flight emit.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	beginEmit()
	go func() {
		defer endEmit()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit %s failed: %v", event.Type, err)
		}
	}()
}

// Drain waits at most timeout for in-flight async emits to finish and reports whether none remain.
// Emits started while it waits extend the wait. Short-lived processes call it before shutting down
// the providers.
func Drain(timeout time.Duration) bool {
	inflight.mu.Lock()
	if inflight.n == 0 {
		inflight.mu.Unlock()
		return true
	}
	idle := inflight.idle
	inflight.mu.Unlock()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-idle:
		return true
	case <-t.C:
		return false
	}
}
