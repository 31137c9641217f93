package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"koursa/client/internal/telemetry"
)

type memWriter struct {
	msgs   []kafka.Message
	err    error
	closed int
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.closed++
	return nil
}

func TestNewKafkaProducer_Disabled(t *testing.T) {
	if p := NewKafkaProducer(nil, "koursa-events"); p != nil {
		t.Error("no brokers should disable the producer")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, ""); p != nil {
		t.Error("empty topic should disable the producer")
	}
	var p *KafkaProducer
	if err := p.Emit(context.Background(), telemetry.NewEvent(telemetry.EventLogout, "t", 1, nil)); err != nil {
		t.Errorf("nil producer Emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil producer Close: %v", err)
	}
}

func TestKafkaProducer_Emit(t *testing.T) {
	w := &memWriter{}
	p := &KafkaProducer{writer: w, topic: "koursa-events"}

	ev := telemetry.NewEvent(telemetry.EventFicheValidated, "workflow", 9, nil).WithFiche(12)
	if err := p.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := p.Emit(context.Background(), telemetry.NewEvent(telemetry.EventLoginSuccess, "session", 3, nil)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("wrote %d messages, want 2", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "fiche-12" || string(w.msgs[1].Key) != "user-3" {
		t.Errorf("keys = %q, %q", w.msgs[0].Key, w.msgs[1].Key)
	}
	var decoded telemetry.Event
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.Type != telemetry.EventFicheValidated || decoded.FicheID != 12 {
		t.Errorf("decoded = %+v", decoded)
	}
	if err := p.Close(); err != nil || w.closed != 1 {
		t.Errorf("Close: %v (closed=%d)", err, w.closed)
	}
}

func TestKafkaProducer_WriteError(t *testing.T) {
	boom := errors.New("leader not available")
	p := &KafkaProducer{writer: &memWriter{err: boom}, topic: "koursa-events"}
	if err := p.Emit(context.Background(), telemetry.NewEvent(telemetry.EventLogout, "t", 1, nil)); !errors.Is(err, boom) {
		t.Errorf("Emit err = %v, want %v", err, boom)
	}
}
