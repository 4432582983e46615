package server

import "net/http"

// Routes builds the ServeMux for the HTTP/WS surface. Go 1.22's
// pattern-based mux (method prefixes, {wildcard} segments) covers the
// path-parameter endpoints without pulling in a separate router
// dependency, the same plain http.NewServeMux() approach the teacher
// ingest server used for its single /collect route.
func (s *Server) Routes(ws *WSServer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ingest", s.HandleIngest)
	mux.HandleFunc("GET /search", s.HandleSearch)
	mux.HandleFunc("GET /projects", s.HandleProjects)
	mux.HandleFunc("GET /errors", s.HandleErrors)
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.HandleFunc("GET /trace/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.HandleTrace(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /request/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.HandleRequest(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	mux.HandleFunc("/ws", ws.Handle)

	return mux
}
