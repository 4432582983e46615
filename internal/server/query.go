// Package server exposes the HTTP/WS surface: parse requests, dispatch
// to the ingest pipeline or the query-shaping layer, stream responses.
package server

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/logstream/gateway/internal/idgen"
)

var sinceRe = regexp.MustCompile(`^(\d+)(s|m|h|d)$`)

const defaultSince = time.Hour

// parseSince parses a `\d+(s|m|h|d)` duration specifier; an empty or
// invalid specifier falls back to the 1-hour default rather than
// erroring. Endpoints that must reject a bad `since` (/search) check it
// with validSince first.
func parseSince(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultSince
	}
	m := sinceRe.FindStringSubmatch(s)
	if m == nil {
		return defaultSince
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return defaultSince
	}
	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second
	case "m":
		return time.Duration(n) * time.Minute
	case "h":
		return time.Duration(n) * time.Hour
	case "d":
		return time.Duration(n) * 24 * time.Hour
	default:
		return defaultSince
	}
}

// validSince reports whether s, if non-empty, matches the accepted
// duration grammar — used where an explicitly bad `since` must 400
// rather than silently fall back (the /search contract in §6).
func validSince(s string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	return sinceRe.MatchString(strings.TrimSpace(s))
}

// escapeFilterValue quotes a value for embedding in a Meilisearch filter
// expression such that an embedded double quote can never terminate the
// string early. Meilisearch filter strings use backslash-escaping for
// embedded quotes, the same convention the engine's own filter parser
// expects.
func escapeFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return v
}

func eq(field, value string) string {
	return fmt.Sprintf(`%s = "%s"`, field, escapeFilterValue(value))
}

// filterBuilder accumulates AND-ed clauses for a Meilisearch filter
// string.
type filterBuilder struct {
	clauses []string
}

func (b *filterBuilder) addEq(field, value string) {
	if value == "" {
		return
	}
	b.clauses = append(b.clauses, eq(field, value))
}

func (b *filterBuilder) addRaw(clause string) {
	if clause == "" {
		return
	}
	b.clauses = append(b.clauses, clause)
}

// addSinceCutoff adds a `timestampMs > cutoff` clause computed from a
// since specifier, relative to the cached current time.
func (b *filterBuilder) addSinceCutoff(since string) {
	d := parseSince(since)
	cutoff := idgen.NowMs() - d.Milliseconds()
	b.clauses = append(b.clauses, fmt.Sprintf("timestampMs > %d", cutoff))
}

func (b *filterBuilder) build() string {
	return strings.Join(b.clauses, " AND ")
}

// searchFilter builds the /search filter: equalities AND-ed with an
// optional since cutoff.
func searchFilter(project, level, traceID, requestID, environment, since string) string {
	b := &filterBuilder{}
	b.addEq("project", project)
	b.addEq("level", level)
	b.addEq("traceId", traceID)
	b.addEq("requestId", requestID)
	b.addEq("environment", environment)
	if since != "" {
		b.addSinceCutoff(since)
	}
	return b.build()
}

// errorsFilter builds the /errors filter: the error/fatal disjunction,
// parenthesized so it ANDs correctly with any further clauses.
func errorsFilter(project, since string) string {
	b := &filterBuilder{}
	b.addRaw(fmt.Sprintf(`(%s OR %s)`, eq("level", "error"), eq("level", "fatal")))
	b.addEq("project", project)
	if since == "" {
		since = "1h"
	}
	b.addSinceCutoff(since)
	return b.build()
}

func traceFilter(field, id string) string {
	return eq(field, id)
}

// clampLimit bounds limit to [min,max], substituting def when the
// caller passed 0 (unset).
func clampLimit(limit, def, min, max int) int {
	if limit == 0 {
		limit = def
	}
	if limit < min {
		limit = min
	}
	if limit > max {
		limit = max
	}
	return limit
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", s)
	}
	return n, nil
}
