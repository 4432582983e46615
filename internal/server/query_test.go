package server

import (
	"strings"
	"testing"
	"time"
)

func TestParseSinceAcceptsGrammar(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"5m":  5 * time.Minute,
		"2h":  2 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for in, want := range cases {
		if got := parseSince(in); got != want {
			t.Errorf("parseSince(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseSinceFallsBackOnInvalid(t *testing.T) {
	for _, in := range []string{"", "bogus", "5x", "-3h"} {
		if got := parseSince(in); got != defaultSince {
			t.Errorf("parseSince(%q) = %v, want default %v", in, got, defaultSince)
		}
	}
}

func TestValidSinceRejectsGarbage(t *testing.T) {
	if !validSince("") {
		t.Errorf("expected empty since to be valid (optional)")
	}
	if !validSince("5m") {
		t.Errorf("expected 5m to be valid")
	}
	if validSince("banana") {
		t.Errorf("expected banana to be invalid")
	}
}

func TestEscapeFilterValuePreventsInjection(t *testing.T) {
	clause := eq("project", `bob" OR level = "fatal`)
	if !strings.Contains(clause, `\"`) {
		t.Fatalf("expected embedded quote to be escaped in clause: %s", clause)
	}
	if !strings.HasPrefix(clause, `project = "`) || !strings.HasSuffix(clause, `"`) {
		t.Fatalf("expected clause to stay delimited by exactly one pair of quotes: %s", clause)
	}
}

func TestSearchFilterANDsClauses(t *testing.T) {
	f := searchFilter("api", "error", "", "", "", "")
	if !strings.Contains(f, `project = "api"`) || !strings.Contains(f, `level = "error"`) {
		t.Fatalf("got %q", f)
	}
	if !strings.Contains(f, " AND ") {
		t.Fatalf("expected clauses AND-ed, got %q", f)
	}
}

func TestErrorsFilterParenthesizesDisjunction(t *testing.T) {
	f := errorsFilter("", "")
	if !strings.HasPrefix(f, "(level = \"error\" OR level = \"fatal\")") {
		t.Fatalf("expected parenthesized OR clause first, got %q", f)
	}
	if !strings.Contains(f, "timestampMs >") {
		t.Fatalf("expected a default since cutoff, got %q", f)
	}
}

func TestClampLimit(t *testing.T) {
	if got := clampLimit(0, 20, 1, 100); got != 20 {
		t.Fatalf("expected default 20, got %d", got)
	}
	if got := clampLimit(500, 20, 1, 100); got != 100 {
		t.Fatalf("expected clamp to max 100, got %d", got)
	}
	if got := clampLimit(-5, 20, 1, 100); got != 1 {
		t.Fatalf("expected clamp to min 1, got %d", got)
	}
}
