package broadcast

import "github.com/logstream/gateway/internal/model"

// Filter is a conjunction of optional membership/equality constraints.
// A zero-value Filter matches every record. This is deliberately a
// small tagged-variant struct rather than a list of predicate
// closures or an interface-dispatch table — the hot path is
// publish(), called once per record per subscriber, and a struct
// comparison beats a dynamic dispatch per constraint.
type Filter struct {
	Projects    map[string]struct{}
	Levels      map[model.Level]struct{}
	TraceID     string
	Environment string
}

// Matches reports whether rec satisfies every constraint set on f.
// Extending f (adding a constraint, narrowing a set) can only shrink
// the set of records that match — filters are monotone.
func (f Filter) Matches(rec *model.Record) bool {
	if len(f.Projects) > 0 {
		if _, ok := f.Projects[rec.Project]; !ok {
			return false
		}
	}
	if len(f.Levels) > 0 {
		if _, ok := f.Levels[rec.Level]; !ok {
			return false
		}
	}
	if f.TraceID != "" && rec.TraceID != f.TraceID {
		return false
	}
	if f.Environment != "" && rec.Environment != f.Environment {
		return false
	}
	return true
}

// ParseFilter builds a Filter from the WebSocket subscribe query
// string's already-split values (comma-separated sets for projects and
// levels, bare values for traceId/environment).
func ParseFilter(projectsCSV, levelsCSV, traceID, environment string) Filter {
	f := Filter{TraceID: traceID, Environment: environment}
	if projectsCSV != "" {
		f.Projects = splitSet(projectsCSV)
	}
	if levelsCSV != "" {
		levels := splitSet(levelsCSV)
		f.Levels = make(map[model.Level]struct{}, len(levels))
		for l := range levels {
			f.Levels[model.Level(l)] = struct{}{}
		}
	}
	return f
}

func splitSet(csv string) map[string]struct{} {
	set := make(map[string]struct{})
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				set[csv[start:i]] = struct{}{}
			}
			start = i + 1
		}
	}
	return set
}
