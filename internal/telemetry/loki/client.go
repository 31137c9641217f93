// Package loki pushes Koursa workflow events to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"koursa/client/internal/telemetry"
)

// Job is the job label on every pushed stream.
const Job = "koursa"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// Loki label values may hold anything, but event types and sources are kept to a safe alphabet.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Client pushes events to one Loki instance. It implements telemetry.EventEmitter.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for baseURL (e.g. http://localhost:3100).
func New(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("loki: base URL is empty")
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}, nil
}

// Emit pushes event as one JSON log line labelled by event type and source.
func (c *Client) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.push(ctx, event.CreatedAt, string(line), labelsFor(event))
}

// PushEventJSON pushes a JSON-encoded telemetry.Event, as produced to Kafka. A payload that does not
// decode is pushed as-is with the current time and only the job label.
func (c *Client) PushEventJSON(ctx context.Context, raw []byte) error {
	var ev telemetry.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return c.push(ctx, time.Now().UTC(), string(raw), nil)
	}
	return c.push(ctx, ev.CreatedAt, string(raw), labelsFor(&ev))
}

func labelsFor(ev *telemetry.Event) map[string]string {
	return map[string]string{"event_type": ev.Type, "source": ev.Source}
}

func (c *Client) push(ctx context.Context, ts time.Time, line string, labels map[string]string) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	streamLabels := map[string]string{"job": Job}
	for k, v := range labels {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			streamLabels[k] = s
		}
	}
	payload, err := json.Marshal(PushRequest{Streams: []Stream{{
		Stream: streamLabels,
		Values: [][]string{{strconv.FormatInt(ts.UnixNano(), 10), line}},
	}}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
