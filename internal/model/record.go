// Package model defines Record, the canonical unit that flows from
// ingest through broadcast and persistence. Handler -> Pipeline ->
// Broadcaster/Writer all pass the same *Record, unmodified, so that the
// copy a subscriber sees and the copy the search engine stores never
// diverge.
package model

import (
	"strings"
	"time"

	"github.com/logstream/gateway/internal/idgen"
)

// Level is one of the five enumerated severities. Any other value is
// rejected at normalization time.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

func validLevel(l Level) bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return true
	default:
		return false
	}
}

// Record is a single normalized log entry — the unit persisted to the
// search engine and delivered to live subscribers.
type Record struct {
	ID           string      `json:"id"`
	Timestamp    string      `json:"timestamp"`
	TimestampMs  int64       `json:"timestampMs"`
	Project      string      `json:"project"`
	Level        Level       `json:"level"`
	Message      string      `json:"message"`
	TraceID      string      `json:"traceId,omitempty"`
	RequestID    string      `json:"requestId,omitempty"`
	SpanID       string      `json:"spanId,omitempty"`
	ParentSpanID string      `json:"parentSpanId,omitempty"`
	Meta         interface{} `json:"meta,omitempty"`
	Source       string      `json:"source,omitempty"`
	Environment  string      `json:"environment,omitempty"`
}

// Raw is the wire shape accepted from emitters: every field optional,
// normalization fills in the rest. A raw object decodes directly from
// a single JSON object; a batch is just `[]Raw`.
type Raw struct {
	ID           string      `json:"id"`
	Timestamp    string      `json:"timestamp"`
	TimestampMs  int64       `json:"timestampMs"`
	Project      string      `json:"project"`
	Level        string      `json:"level"`
	Message      string      `json:"message"`
	TraceID      string      `json:"traceId"`
	RequestID    string      `json:"requestId"`
	SpanID       string      `json:"spanId"`
	ParentSpanID string      `json:"parentSpanId"`
	Meta         interface{} `json:"meta"`
	Source       string      `json:"source"`
	Environment  string      `json:"environment"`
}

// RejectReason explains why a single record in a batch was dropped.
// The containing batch is still accepted; rejects are per-record.
type RejectReason string

const (
	RejectMissingProject RejectReason = "missing project"
	RejectMissingMessage RejectReason = "missing message"
	RejectInvalidLevel   RejectReason = "invalid level"
	RejectMissingLevel   RejectReason = "missing level"
)

// Normalize validates and fills in a Raw record, producing the Record
// that is both broadcast and persisted. It never mutates r.
//
// Normalization is idempotent: normalizing an already-normalized record
// (re-fed through Raw) yields a byte-identical Record, since every
// already-present field is trusted verbatim and only absent fields are
// filled in.
func Normalize(r Raw) (Record, RejectReason, bool) {
	if strings.TrimSpace(r.Project) == "" {
		return Record{}, RejectMissingProject, false
	}
	if strings.TrimSpace(r.Message) == "" {
		return Record{}, RejectMissingMessage, false
	}

	level := Level(strings.ToLower(strings.TrimSpace(r.Level)))
	if level == "" {
		return Record{}, RejectMissingLevel, false
	}
	if !validLevel(level) {
		return Record{}, RejectInvalidLevel, false
	}

	id := r.ID
	if id == "" {
		id = idgen.New()
	}

	timestampMs := r.TimestampMs
	timestamp := r.Timestamp

	switch {
	case timestampMs != 0 && timestamp != "":
		// Both supplied: trust the emitter, no reconciliation needed.
	case timestampMs != 0 && timestamp == "":
		timestamp = time.UnixMilli(timestampMs).UTC().Format(time.RFC3339Nano)
	case timestampMs == 0 && timestamp != "":
		if t, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
			timestampMs = t.UnixMilli()
		} else if t, err := time.Parse(time.RFC3339, timestamp); err == nil {
			timestampMs = t.UnixMilli()
		} else {
			now := time.UnixMilli(idgen.NowMs()).UTC()
			timestampMs = now.UnixNano() / int64(time.Millisecond)
			timestamp = now.Format(time.RFC3339Nano)
		}
	default:
		now := time.UnixMilli(idgen.NowMs()).UTC()
		timestampMs = now.UnixNano() / int64(time.Millisecond)
		timestamp = now.Format(time.RFC3339Nano)
	}

	environment := r.Environment
	if environment == "" {
		environment = "dev"
	}

	return Record{
		ID:           id,
		Timestamp:    timestamp,
		TimestampMs:  timestampMs,
		Project:      r.Project,
		Level:        level,
		Message:      r.Message,
		TraceID:      r.TraceID,
		RequestID:    r.RequestID,
		SpanID:       r.SpanID,
		ParentSpanID: r.ParentSpanID,
		Meta:         r.Meta,
		Source:       r.Source,
		Environment:  environment,
	}, "", true
}

// ToRaw round-trips a normalized Record back into a Raw so that
// re-normalizing it is a well-defined, idempotent no-op (used by the
// normalization-idempotence property test).
func (rec Record) ToRaw() Raw {
	return Raw{
		ID:           rec.ID,
		Timestamp:    rec.Timestamp,
		TimestampMs:  rec.TimestampMs,
		Project:      rec.Project,
		Level:        string(rec.Level),
		Message:      rec.Message,
		TraceID:      rec.TraceID,
		RequestID:    rec.RequestID,
		SpanID:       rec.SpanID,
		ParentSpanID: rec.ParentSpanID,
		Meta:         rec.Meta,
		Source:       rec.Source,
		Environment:  rec.Environment,
	}
}
