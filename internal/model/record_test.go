package model

import "testing"

func TestNormalizeRejectsMissingProject(t *testing.T) {
	_, reason, ok := Normalize(Raw{Level: "info", Message: "hi"})
	if ok {
		t.Fatalf("expected rejection")
	}
	if reason != RejectMissingProject {
		t.Fatalf("got reason %q", reason)
	}
}

func TestNormalizeRejectsMissingMessage(t *testing.T) {
	_, reason, ok := Normalize(Raw{Project: "p", Level: "info"})
	if ok {
		t.Fatalf("expected rejection")
	}
	if reason != RejectMissingMessage {
		t.Fatalf("got reason %q", reason)
	}
}

func TestNormalizeRejectsMissingLevel(t *testing.T) {
	_, reason, ok := Normalize(Raw{Project: "p", Message: "c"})
	if ok {
		t.Fatalf("expected rejection")
	}
	if reason != RejectMissingLevel {
		t.Fatalf("got reason %q", reason)
	}
}

func TestNormalizeRejectsInvalidLevel(t *testing.T) {
	_, reason, ok := Normalize(Raw{Project: "p", Message: "b", Level: "trace"})
	if ok {
		t.Fatalf("expected rejection")
	}
	if reason != RejectInvalidLevel {
		t.Fatalf("got reason %q", reason)
	}
}

func TestNormalizeLowercasesLevel(t *testing.T) {
	rec, _, ok := Normalize(Raw{Project: "p", Message: "m", Level: "INFO"})
	if !ok {
		t.Fatalf("expected acceptance")
	}
	if rec.Level != LevelInfo {
		t.Fatalf("got level %q", rec.Level)
	}
}

func TestNormalizeAssignsIDAndTimestamps(t *testing.T) {
	rec, _, ok := Normalize(Raw{Project: "api", Message: "hi", Level: "info"})
	if !ok {
		t.Fatalf("expected acceptance")
	}
	if len(rec.ID) != 26 {
		t.Fatalf("expected 26-char id, got %q (%d chars)", rec.ID, len(rec.ID))
	}
	if rec.TimestampMs == 0 {
		t.Fatalf("expected timestampMs to be set")
	}
	if rec.Timestamp == "" {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestNormalizeTrustsSuppliedID(t *testing.T) {
	rec, _, ok := Normalize(Raw{ID: "client-supplied-id", Project: "p", Message: "m", Level: "warn"})
	if !ok {
		t.Fatalf("expected acceptance")
	}
	if rec.ID != "client-supplied-id" {
		t.Fatalf("expected client id to be trusted, got %q", rec.ID)
	}
}

func TestNormalizeDefaultsEnvironment(t *testing.T) {
	rec, _, ok := Normalize(Raw{Project: "p", Message: "m", Level: "info"})
	if !ok {
		t.Fatalf("expected acceptance")
	}
	if rec.Environment != "dev" {
		t.Fatalf("expected default environment dev, got %q", rec.Environment)
	}
}

func TestNormalizeReconcilesTimestampFromMs(t *testing.T) {
	rec, _, ok := Normalize(Raw{Project: "p", Message: "m", Level: "info", TimestampMs: 1_700_000_000_000})
	if !ok {
		t.Fatalf("expected acceptance")
	}
	if rec.TimestampMs != 1_700_000_000_000 {
		t.Fatalf("timestampMs mismatch: %d", rec.TimestampMs)
	}
	if rec.Timestamp == "" {
		t.Fatalf("expected derived timestamp string")
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	rec, _, ok := Normalize(Raw{Project: "p", Message: "m", Level: "info", Environment: "prod"})
	if !ok {
		t.Fatalf("expected acceptance")
	}
	again, _, ok := Normalize(rec.ToRaw())
	if !ok {
		t.Fatalf("expected second normalization to succeed")
	}
	if again != rec {
		t.Fatalf("normalization not idempotent:\n  first=%+v\n second=%+v", rec, again)
	}
}

func TestNormalizeBadTimestampOverwritesBoth(t *testing.T) {
	rec, _, ok := Normalize(Raw{Project: "p", Message: "m", Level: "info", Timestamp: "not-a-timestamp"})
	if !ok {
		t.Fatalf("expected acceptance")
	}
	if rec.TimestampMs == 0 {
		t.Fatalf("expected timestampMs to be derived from wall clock")
	}
	if rec.Timestamp == "not-a-timestamp" {
		t.Fatalf("expected unparseable timestamp to be overwritten from wall clock")
	}
}
