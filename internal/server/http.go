package server

import (
	"bytes"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/logstream/gateway/internal/engine"
	"github.com/logstream/gateway/internal/ingest"
	"github.com/logstream/gateway/internal/metrics"
	"github.com/logstream/gateway/internal/model"
	"github.com/logstream/gateway/internal/pool"
)

// maxIngestBodyBytes bounds a single /ingest POST body. Oversized
// bodies are rejected outright rather than partially read.
const maxIngestBodyBytes = 8 * 1024 * 1024

// Server holds every dependency the HTTP/WS surface needs: the ingest
// pipeline, the engine client for queries, and metrics/logging.
type Server struct {
	pipeline *ingest.Pipeline
	eng      *engine.Client
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// New constructs a Server. Routes are registered by Routes().
func New(pipeline *ingest.Pipeline, eng *engine.Client, m *metrics.Metrics, log zerolog.Logger) *Server {
	return &Server{pipeline: pipeline, eng: eng, metrics: m, log: log.With().Str("component", "http").Logger()}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeIngestBody accepts either a single record object or a JSON
// array of records, matching the wire contract in §6.
func decodeIngestBody(body []byte) ([]model.Raw, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var batch []model.Raw
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}
	var single model.Raw
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}
	return []model.Raw{single}, nil
}

type ingestError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type ingestResponse struct {
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Errors   []ingestError `json:"errors,omitempty"`
}

// HandleIngest implements POST /ingest.
func (s *Server) HandleIngest(w http.ResponseWriter, r *http.Request) {
	s.metrics.HTTPRequestsTotal.WithLabelValues("/ingest").Inc()

	buf := pool.BodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer pool.PutBody(buf)

	if _, err := io.Copy(buf, io.LimitReader(r.Body, maxIngestBodyBytes+1)); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}
	if buf.Len() > maxIngestBodyBytes {
		s.metrics.HTTPRequestsRejectedTooLarge.Inc()
		s.log.Warn().Str("client_ip", clientIP(r)).Int("size", buf.Len()).Msg("ingest body too large")
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body too large"})
		return
	}

	raws, err := decodeIngestBody(buf.Bytes())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	resp := ingestResponse{}
	ctx := r.Context()
	for i, raw := range raws {
		rec, reason, ok := s.pipeline.Normalize(raw)
		if !ok {
			resp.Rejected++
			resp.Errors = append(resp.Errors, ingestError{Index: i, Reason: string(reason)})
			continue
		}
		if err := s.pipeline.Publish(ctx, &rec); err != nil {
			resp.Rejected++
			resp.Errors = append(resp.Errors, ingestError{Index: i, Reason: "pipeline closed"})
			continue
		}
		resp.Accepted++
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleSearch implements GET /search.
func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	s.metrics.HTTPRequestsTotal.WithLabelValues("/search").Inc()
	q := r.URL.Query()

	since := q.Get("since")
	if !validSince(since) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid since"})
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	limit = clampLimit(limit, 20, 1, 100)

	filter := searchFilter(q.Get("project"), q.Get("level"), q.Get("traceId"), q.Get("requestId"), q.Get("environment"), since)

	res, err := s.eng.Search(r.Context(), engine.SearchQuery{
		Query:  q.Get("q"),
		Filter: filter,
		Sort:   []string{"timestamp:desc"},
		Limit:  int64(limit),
		Facets: []string{"project", "level"},
	})
	if err != nil {
		s.log.Error().Err(err).Msg("search failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "search failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalHits": res.TotalHits,
		"facets":    res.FacetDistribution,
		"hits":      res.Hits,
	})
}

// HandleProjects implements GET /projects.
func (s *Server) HandleProjects(w http.ResponseWriter, r *http.Request) {
	s.metrics.HTTPRequestsTotal.WithLabelValues("/projects").Inc()

	res, err := s.eng.Search(r.Context(), engine.SearchQuery{
		Limit:  0,
		Facets: []string{"project", "level", "environment"},
	})
	if err != nil {
		s.log.Error().Err(err).Msg("projects query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalLogs":     res.TotalHits,
		"byProject":     res.FacetDistribution["project"],
		"byLevel":       res.FacetDistribution["level"],
		"byEnvironment": res.FacetDistribution["environment"],
	})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request, field, idKey, id string) {
	res, err := s.eng.Search(r.Context(), engine.SearchQuery{
		Filter: traceFilter(field, id),
		Sort:   []string{"timestamp:asc"},
		Limit:  500,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("timeline query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	seen := make(map[string]struct{})
	projects := make([]string, 0, 4)
	for _, hit := range res.Hits {
		if p, ok := hit["project"].(string); ok {
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				projects = append(projects, p)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		idKey:        id,
		"eventCount": len(res.Hits),
		"projects":   projects,
		"timeline":   res.Hits,
	})
}

// HandleTrace implements GET /trace/:id.
func (s *Server) HandleTrace(w http.ResponseWriter, r *http.Request, traceID string) {
	s.metrics.HTTPRequestsTotal.WithLabelValues("/trace").Inc()
	s.handleTimeline(w, r, "traceId", "traceId", traceID)
}

// HandleRequest implements GET /request/:id.
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	s.metrics.HTTPRequestsTotal.WithLabelValues("/request").Inc()
	s.handleTimeline(w, r, "requestId", "requestId", requestID)
}

// HandleErrors implements GET /errors.
func (s *Server) HandleErrors(w http.ResponseWriter, r *http.Request) {
	s.metrics.HTTPRequestsTotal.WithLabelValues("/errors").Inc()
	q := r.URL.Query()

	filter := errorsFilter(q.Get("project"), q.Get("since"))
	res, err := s.eng.Search(r.Context(), engine.SearchQuery{
		Query:  q.Get("q"),
		Filter: filter,
		Sort:   []string{"timestamp:desc"},
		Limit:  30,
		Facets: []string{"project"},
	})
	if err != nil {
		s.log.Error().Err(err).Msg("errors query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalErrors":  res.TotalHits,
		"byProject":    res.FacetDistribution["project"],
		"recentErrors": res.Hits,
	})
}

// HandleHealth implements GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
