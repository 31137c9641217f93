package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"koursa/client/internal/telemetry"
)

type lokiRecorder struct {
	mu     sync.Mutex
	pushes []PushRequest
	status int
}

func (l *lokiRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/loki/api/v1/push" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	l.mu.Lock()
	l.pushes = append(l.pushes, req)
	l.mu.Unlock()
	if l.status != 0 {
		w.WriteHeader(l.status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func newTestClient(t *testing.T, rec *lokiRecorder) *Client {
	t.Helper()
	ts := httptest.NewServer(rec)
	t.Cleanup(ts.Close)
	c, err := New(ts.URL+"/", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNew_EmptyURL(t *testing.T) {
	if _, err := New("  ", time.Second); err == nil {
		t.Error("New should reject an empty base URL")
	}
}

func TestClient_Emit(t *testing.T) {
	rec := &lokiRecorder{}
	c := newTestClient(t, rec)
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	ev := telemetry.NewEvent(telemetry.EventFicheValidated, "fiche workflow", 2, nil).WithFiche(9)
	ev.CreatedAt = at

	if err := c.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(rec.pushes) != 1 || len(rec.pushes[0].Streams) != 1 {
		t.Fatalf("pushes = %+v", rec.pushes)
	}
	s := rec.pushes[0].Streams[0]
	want := map[string]string{"job": Job, "event_type": "fiche_validated", "source": "fiche_workflow"}
	for k, v := range want {
		if s.Stream[k] != v {
			t.Errorf("label %s = %q, want %q", k, s.Stream[k], v)
		}
	}
	if s.Values[0][0] != strconv.FormatInt(at.UnixNano(), 10) {
		t.Errorf("timestamp = %s", s.Values[0][0])
	}
	var line telemetry.Event
	if err := json.Unmarshal([]byte(s.Values[0][1]), &line); err != nil || line.FicheID != 9 {
		t.Errorf("line = %s (%v)", s.Values[0][1], err)
	}
}

func TestClient_PushEventJSON(t *testing.T) {
	rec := &lokiRecorder{}
	c := newTestClient(t, rec)

	if err := c.PushEventJSON(context.Background(), []byte(`{"event_type":"logout","source":"session","created_at":"2024-03-05T10:00:00Z"}`)); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if err := c.PushEventJSON(context.Background(), []byte(`not json`)); err != nil {
		t.Fatalf("PushEventJSON(raw): %v", err)
	}
	if got := rec.pushes[0].Streams[0].Stream["event_type"]; got != "logout" {
		t.Errorf("event_type = %q", got)
	}
	raw := rec.pushes[1].Streams[0]
	if len(raw.Stream) != 1 || raw.Values[0][1] != "not json" {
		t.Errorf("raw stream = %+v", raw)
	}
}

func TestClient_PushError(t *testing.T) {
	c := newTestClient(t, &lokiRecorder{status: http.StatusTooManyRequests})
	if err := c.Emit(context.Background(), telemetry.NewEvent(telemetry.EventLogout, "session", 1, nil)); err == nil {
		t.Error("Emit should fail on a non-2xx answer")
	}
}
