// worker consumes Koursa workflow events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, EVENTS_KAFKA_TOPIC, KAFKA_GROUP_ID and LOKI_URL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"koursa/client/internal/config"
	"koursa/client/internal/telemetry/loki"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	client, err := loki.New(cfg.LokiURL, 10*time.Second)
	if err != nil {
		log.Fatalf("worker: LOKI_URL is required: %v", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.EventsKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	log.Printf("worker: consuming from %s (group %s), pushing to %s", cfg.EventsKafkaTopic, cfg.KafkaGroupID, cfg.LokiURL)
	n := forward(ctx, reader, client)
	log.Printf("worker: stopped after forwarding %d events", n)
}

// messageReader is the part of *kafka.Reader the worker uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// eventPusher is the part of *loki.Client the worker uses.
type eventPusher interface {
	PushEventJSON(ctx context.Context, raw []byte) error
}

// forward copies messages from r to p until ctx is done and returns how many were pushed. Read and
// push failures are logged and skipped; the offset is committed either way.
func forward(ctx context.Context, r messageReader, p eventPusher) int {
	var pushed int
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return pushed
			}
			log.Printf("worker: kafka read error: %v", err)
			continue
		}

		pushCtx, pushCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := p.PushEventJSON(pushCtx, msg.Value); err != nil {
			log.Printf("worker: loki push failed for offset %d: %v", msg.Offset, err)
		} else {
			pushed++
		}
		pushCancel()
	}
}
