package otel

import (
	"context"
	"strconv"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"koursa/client/internal/telemetry"
)

// recordEmitter is the subset of otellog.Logger used by the emitter.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return telemetry.Nop{}
	}
	return &otelEmitter{logger: provider.Logger("koursa.events")}
}

// NewEventEmitterWithLogger returns an emitter writing to logger directly.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	}
	if len(event.Metadata) > 0 {
		rec.SetBody(otellog.BytesValue(event.Metadata))
	}
	if event.Type != "" {
		rec.AddAttributes(otellog.String("event_type", event.Type))
	}
	if event.UserID != 0 {
		rec.AddAttributes(otellog.String("user_id", strconv.FormatInt(event.UserID, 10)))
	}
	if event.FicheID != 0 {
		rec.AddAttributes(otellog.String("fiche_id", strconv.FormatInt(event.FicheID, 10)))
	}
	if event.Source != "" {
		rec.AddAttributes(otellog.String("source", event.Source))
	}
	if rec.Timestamp().IsZero() {
		rec.SetTimestamp(time.Now().UTC())
	}
	e.logger.Emit(ctx, rec)
	return nil
}
