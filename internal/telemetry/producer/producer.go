// Package producer ships domain events to Kafka for downstream consumers (reporting, notifications).
package producer

import (
	"koursa/client/internal/telemetry"
)

// Producer emits events to a broker. Callers use it best-effort: log and ignore errors.
type Producer interface {
	telemetry.EventEmitter
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
