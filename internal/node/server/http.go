package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"
	"MovieDHT/internal/node/overlay"
)

const defaultHotKeys = 10

// HTTPServer exposes a read-only view of an in-process overlay: key
// queries, health, routing snapshots and Prometheus metrics.
type HTTPServer struct {
	dht    *overlay.DHT
	port   int
	lgr    logger.Logger
	server *http.Server
}

// NewHTTPServer creates a server for d listening on port.
func NewHTTPServer(d *overlay.DHT, port int, lgr logger.Logger) *HTTPServer {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &HTTPServer{
		dht:  d,
		port: port,
		lgr:  lgr,
	}
}

// Handler returns the request multiplexer.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Key lookup
	mux.HandleFunc("GET /get", s.handleGet)

	// Metrics endpoint
	mux.Handle("GET /metrics", s.dht.Metrics().Handler())

	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Debug endpoints (routing state)
	mux.HandleFunc("GET /debug", s.handleDebug)
	mux.HandleFunc("GET /debug/node", s.handleDebugNode)
	return mux
}

// Start launches the HTTP server and blocks until stopped.
func (s *HTTPServer) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.lgr.Info("HTTP debug server starting", logger.F("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleGet resolves ?key= through the overlay. With parallel=true the
// lookup fans out over several entry members.
func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing 'key' query parameter", http.StatusBadRequest)
		return
	}
	parallel, _ := strconv.ParseBool(r.URL.Query().Get("parallel"))

	var (
		res overlay.Result
		err error
	)
	if parallel {
		res, err = s.dht.GetParallel(r.Context(), key)
	} else {
		res, err = s.dht.Get(r.Context(), key)
	}
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrInvalidKey):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrEmptyOverlay):
			status = http.StatusServiceUnavailable
		}
		s.lgr.Warn("lookup failed", logger.F("key", key), logger.FErr(err))
		http.Error(w, err.Error(), status)
		return
	}

	s.lgr.Debug("lookup complete",
		logger.F("key", res.Key),
		logger.F("records", len(res.Records)),
		logger.F("hops", res.Hops),
		logger.FNode("owner", res.Owner),
		logger.F("from_replica", res.FromReplica),
		logger.F("latency_ms", time.Since(start).Milliseconds()))

	w.Header().Set("X-Hops", strconv.Itoa(res.Hops))
	w.Header().Set("X-Owner-ID", res.Owner.ID.ToHexString())
	w.Header().Set("X-Hot-Key", strconv.FormatBool(s.dht.IsHot(key)))
	if !res.Found() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(res)
		return
	}
	writeJSON(w, res)
}

// handleHealth reports healthy while the overlay has at least one member.
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	members := s.dht.Len()
	healthy := members > 0
	status := "ok"
	if !healthy {
		status = "empty overlay"
	}

	response := map[string]any{
		"healthy":  healthy,
		"status":   status,
		"protocol": s.dht.Protocol(),
		"members":  members,
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}

// handleDebug returns the overlay snapshot. Per-node routing state is
// included with ?nodes=true; ?hot=N bounds the hot key report.
func (s *HTTPServer) handleDebug(w http.ResponseWriter, r *http.Request) {
	withNodes, _ := strconv.ParseBool(r.URL.Query().Get("nodes"))
	hot := defaultHotKeys
	if v := r.URL.Query().Get("hot"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("invalid 'hot' parameter %q", v), http.StatusBadRequest)
			return
		}
		hot = n
	}
	writeJSON(w, s.dht.Snapshot(withNodes, hot))
}

// handleDebugNode returns one member's routing state, addressed by
// ?name= or by ?id= in hex.
func (s *HTTPServer) handleDebugNode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var id domain.ID
	switch {
	case q.Get("name") != "":
		id = s.dht.Space().NewIdFromString(q.Get("name"))
	case q.Get("id") != "":
		parsed, err := s.dht.Space().FromHexString(q.Get("id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id = parsed
	default:
		http.Error(w, "missing 'name' or 'id' query parameter", http.StatusBadRequest)
		return
	}

	view, ok := s.dht.ViewID(id)
	if !ok {
		http.Error(w, fmt.Sprintf("no member %s", id.ToHexString()), http.StatusNotFound)
		return
	}
	writeJSON(w, view)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
