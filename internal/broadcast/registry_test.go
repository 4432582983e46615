package broadcast

import (
	"testing"

	"github.com/logstream/gateway/internal/metrics"
	"github.com/logstream/gateway/internal/model"
)

func rec(project string, level model.Level, traceID string) *model.Record {
	return &model.Record{Project: project, Level: level, TraceID: traceID, Environment: "dev", Message: "m"}
}

func TestFilterMatchesEmptyMatchesEverything(t *testing.T) {
	f := Filter{}
	if !f.Matches(rec("api", model.LevelInfo, "")) {
		t.Fatalf("expected empty filter to match any record")
	}
}

func TestFilterConjunctionIsMonotone(t *testing.T) {
	r := rec("api", model.LevelError, "T1")

	broad := Filter{Projects: map[string]struct{}{"api": {}}}
	if !broad.Matches(r) {
		t.Fatalf("expected broad filter to match")
	}

	narrow := Filter{
		Projects: map[string]struct{}{"api": {}},
		Levels:   map[model.Level]struct{}{model.LevelError: {}},
		TraceID:  "T1",
	}
	if !narrow.Matches(r) {
		t.Fatalf("expected narrower filter to still match this record")
	}

	narrower := Filter{
		Projects: map[string]struct{}{"api": {}},
		Levels:   map[model.Level]struct{}{model.LevelWarn: {}},
	}
	if narrower.Matches(r) {
		t.Fatalf("expected extending the level constraint to exclude this record")
	}
}

func TestParseFilterSplitsCSV(t *testing.T) {
	f := ParseFilter("api,web", "error,warn", "T1", "prod")
	if _, ok := f.Projects["api"]; !ok {
		t.Fatalf("expected api in projects")
	}
	if _, ok := f.Projects["web"]; !ok {
		t.Fatalf("expected web in projects")
	}
	if _, ok := f.Levels[model.LevelError]; !ok {
		t.Fatalf("expected error in levels")
	}
	if f.TraceID != "T1" || f.Environment != "prod" {
		t.Fatalf("got traceId=%q environment=%q", f.TraceID, f.Environment)
	}
}

func TestRegistryPublishDeliversOnlyToMatchingSubscribers(t *testing.T) {
	reg := New(metrics.New())

	sub := reg.Register(Filter{Projects: map[string]struct{}{"api": {}}, Levels: map[model.Level]struct{}{model.LevelError: {}}})
	defer reg.Deregister(sub.ID)

	reg.Publish(rec("api", model.LevelError, ""))
	reg.Publish(rec("api", model.LevelInfo, ""))
	reg.Publish(rec("web", model.LevelError, ""))

	got, ok := sub.Next()
	if !ok {
		t.Fatalf("expected a delivered record")
	}
	if got.Project != "api" || got.Level != model.LevelError {
		t.Fatalf("got unexpected record %+v", got)
	}

	sub.mu.Lock()
	remaining := len(sub.pending)
	sub.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected exactly one matching record, %d still pending", remaining)
	}
}

func TestRegistryDeregisterClosesSubscriber(t *testing.T) {
	reg := New(metrics.New())
	sub := reg.Register(Filter{})
	reg.Deregister(sub.ID)

	if _, ok := sub.Next(); ok {
		t.Fatalf("expected Next to report closed after deregister")
	}
	if reg.Count() != 0 {
		t.Fatalf("expected registry to be empty after deregister")
	}
}

func TestSubscriberOverflowDropsOldestAndCounts(t *testing.T) {
	sub := newSubscriber(1, Filter{})
	for i := 0; i < bufferCapacity+5; i++ {
		sub.offer(rec("p", model.LevelInfo, ""))
	}
	if sub.Dropped() != 5 {
		t.Fatalf("expected 5 dropped records, got %d", sub.Dropped())
	}
	sub.mu.Lock()
	n := len(sub.pending)
	sub.mu.Unlock()
	if n != bufferCapacity {
		t.Fatalf("expected buffer to stay at capacity %d, got %d", bufferCapacity, n)
	}
}

func TestSubscriberForceClosesPastDropThreshold(t *testing.T) {
	sub := newSubscriber(1, Filter{})
	var forceClose bool
	for i := 0; i < bufferCapacity+dropThreshold+2; i++ {
		if _, fc := sub.offer(rec("p", model.LevelInfo, "")); fc {
			forceClose = true
		}
	}
	if !forceClose {
		t.Fatalf("expected force-close signal once drop threshold exceeded")
	}
}
