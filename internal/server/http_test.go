package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/logstream/gateway/internal/broadcast"
	"github.com/logstream/gateway/internal/ingest"
	"github.com/logstream/gateway/internal/metrics"
	"github.com/logstream/gateway/internal/model"
)

func newTestServer(t *testing.T) (*Server, chan *model.Record) {
	t.Helper()
	m := metrics.New()
	registry := broadcast.New(m)
	writerCh := make(chan *model.Record, 16)
	pipeline := ingest.New(registry, nil, writerCh, m)
	return New(pipeline, nil, m, zerolog.Nop()), writerCh
}

func TestHandleIngestSingleObject(t *testing.T) {
	s, writerCh := newTestServer(t)

	body := `{"project":"api","level":"info","message":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	s.HandleIngest(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ingestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Accepted != 1 || resp.Rejected != 0 {
		t.Fatalf("got %+v", resp)
	}

	select {
	case rec := <-writerCh:
		if rec.Project != "api" {
			t.Fatalf("got record %+v", rec)
		}
	default:
		t.Fatalf("expected record to reach the writer channel")
	}
}

func TestHandleIngestMixedValidityBatch(t *testing.T) {
	s, _ := newTestServer(t)

	body := `[{"level":"info","project":"p","message":"a"},{"level":"trace","project":"p","message":"b"},{"project":"p","message":"c"}]`
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	s.HandleIngest(w, req)

	var resp ingestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Accepted != 1 || resp.Rejected != 2 {
		t.Fatalf("got %+v", resp)
	}
	if len(resp.Errors) != 2 {
		t.Fatalf("expected 2 per-record errors, got %d", len(resp.Errors))
	}
	if resp.Errors[0].Reason != string(model.RejectInvalidLevel) {
		t.Fatalf("expected first error to be invalid level, got %q", resp.Errors[0].Reason)
	}
	if resp.Errors[1].Reason != string(model.RejectMissingLevel) {
		t.Fatalf("expected second error to be missing level, got %q", resp.Errors[1].Reason)
	}
}

func TestHandleIngestRejectsInvalidJSON(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()

	s.HandleIngest(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("got %+v", body)
	}
}
