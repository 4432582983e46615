package server

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/logstream/gateway/internal/broadcast"
	"github.com/logstream/gateway/internal/ingest"
	"github.com/logstream/gateway/internal/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Log ingestion/subscription is meant to be embedded in arbitrary
	// first-party dashboards and emitter SDKs; there's no session
	// cookie to protect, so any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSServer handles the dual-mode /ws endpoint: default mode accepts
// inbound log frames exactly like POST /ingest; mode=subscribe opens a
// live, filtered tail of accepted records.
type WSServer struct {
	pipeline *ingest.Pipeline
	registry *broadcast.Registry
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewWSServer(pipeline *ingest.Pipeline, registry *broadcast.Registry, m *metrics.Metrics, log zerolog.Logger) *WSServer {
	return &WSServer{pipeline: pipeline, registry: registry, metrics: m, log: log.With().Str("component", "ws").Logger()}
}

// Handle upgrades the connection and dispatches by the `mode` query
// parameter.
func (s *WSServer) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	mode := r.URL.Query().Get("mode")
	if mode == "subscribe" {
		s.handleSubscribe(conn, r)
		return
	}
	s.handleIngest(r.Context(), conn)
}

// handleIngest treats every inbound text frame like a POST /ingest
// body: a single record object or an array. An invalid frame is logged
// and the session stays open — a malformed line from one emitter
// should never tear down its whole connection.
func (s *WSServer) handleIngest(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		raws, err := decodeIngestBody(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("invalid ws ingest frame, dropping")
			continue
		}
		for _, raw := range raws {
			rec, _, ok := s.pipeline.Normalize(raw)
			if !ok {
				continue
			}
			// A full writer channel blocks this goroutine, so no further
			// frames are read and the backlog builds up in the socket's
			// receive window instead of records being dropped.
			if err := s.pipeline.Publish(ctx, &rec); err != nil {
				return
			}
		}
	}
}

// handleSubscribe registers a Subscriber from the query string's
// filter parameters, sends a `connected` envelope, then drains the
// subscriber's buffer to the socket until it closes or a send fails.
func (s *WSServer) handleSubscribe(conn *websocket.Conn, r *http.Request) {
	q := r.URL.Query()
	filter := broadcast.ParseFilter(q.Get("projects"), q.Get("levels"), q.Get("traceId"), q.Get("environment"))
	sub := s.registry.Register(filter)

	defer func() {
		s.registry.Deregister(sub.ID)
		conn.Close()
	}()

	connected := map[string]interface{}{
		"type":         "connected",
		"subscriberId": sub.ID,
		"filters": map[string]interface{}{
			"projects":    q.Get("projects"),
			"levels":      q.Get("levels"),
			"traceId":     q.Get("traceId"),
			"environment": q.Get("environment"),
		},
	}
	if err := s.writeJSONFrame(conn, connected); err != nil {
		return
	}

	// A subscribe session never reads records from the client — only
	// pings/pongs and the close handshake — so the read loop here
	// exists purely to detect disconnection.
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	go s.readPumpDiscard(conn)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			rec, ok := sub.Next()
			if !ok {
				return
			}
			frame := map[string]interface{}{"type": "log", "data": rec}
			if err := s.writeJSONFrame(conn, frame); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WSServer) readPumpDiscard(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			conn.Close()
			return
		}
	}
}

func (s *WSServer) writeJSONFrame(conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
