package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/you/kick-relay/internal/core"
)

// Server exposes the REST/SSE side of the relay and mounts the overlay
// WebSocket endpoint behind the shared middleware stack.
type Server struct {
	opts       Options
	httpServer *http.Server
	history    *History
	ws         http.Handler
	metrics    *Metrics
	limiter    *ipRateLimiter
	cors       *corsPolicy

	mu      sync.Mutex
	clients map[chan core.ChatMessage]Filters
	closed  bool
}

type Options struct {
	Addr           string
	RateLimitRPS   int
	RateLimitBurst int
	AllowedOrigins []string
	// WSClientCount, when set, is sampled for the overlay client gauge.
	WSClientCount func() int64
	Build         BuildInfo
}

// New builds the server. ws handles the overlay WebSocket endpoint and may
// be nil when only the REST surface is wanted.
func New(history *History, ws http.Handler, opts Options) *Server {
	srv := &Server{
		opts:    opts,
		history: history,
		ws:      ws,
		metrics: newMetrics(opts.WSClientCount),
		limiter: newIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		cors:    newCORSPolicy(opts.AllowedOrigins),
		clients: make(map[chan core.ChatMessage]Filters),
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", srv.withMiddleware("/healthz", srv.handleHealthz))
	mux.Handle("/info", srv.withMiddleware("/info", srv.handleInfo))
	mux.Handle("/count", srv.withMiddleware("/count", srv.handleCount))
	mux.Handle("/messages", srv.withMiddleware("/messages", srv.handleMessages))
	mux.Handle("/stream", srv.withMiddleware("/stream", srv.handleStream))
	mux.Handle("/metrics", srv.metrics.Handler())
	if ws != nil {
		mux.Handle("/ws", srv.withMiddleware("/ws", srv.handleWS))
	}

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

// withMiddleware layers CORS, rate limiting, gzip, the access recorder,
// and request metrics around a route handler.
func (s *Server) withMiddleware(route string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handled, _ := s.cors.handlePreflight(w, r); handled {
			return
		}
		if !s.cors.applyHeaders(w, r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		if !s.limiter.Allow(remoteIP(r)) {
			s.metrics.IncRateLimited()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		start := time.Now()
		rec := newResponseRecorder(w)

		if gz, ok := maybeGzip(rec, r); ok {
			defer gz.Close()
		}

		handler(rec, r)

		dur := time.Since(start)
		s.metrics.ObserveRequest(route, r.Method, rec.Status(), dur)
		log.Printf("httpapi: %s %s %d %dB %s", r.Method, route, rec.Status(), rec.Bytes(), dur.Round(time.Millisecond))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleCount(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{"count": s.history.Count()})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows := make([]core.ChatMessage, 0, filters.Limit)
	for _, msg := range s.history.Recent(0) {
		if !filters.Matches(msg) {
			continue
		}
		rows = append(rows, msg)
		if len(rows) >= filters.Limit {
			break
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(rows)
}

// handleWS hands the request to the overlay gateway. The upgrade needs the
// base writer so the hijacker interface survives the middleware stack.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.ws.ServeHTTP(baseWriter(w), r)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	clientCh := make(chan core.ChatMessage, 256)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.clients[clientCh] = filters.CloneForStream()
	s.mu.Unlock()
	s.metrics.IncSSEClients(1)

	defer func() {
		s.mu.Lock()
		delete(s.clients, clientCh)
		s.mu.Unlock()
		s.metrics.IncSSEClients(-1)
	}()

	fmt.Fprintf(w, ":ok\n\n")
	flusher.Flush()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ":ping\n\n")
			flusher.Flush()
		case msg, ok := <-clientCh:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
			s.metrics.IncMessagesSent("sse")
		}
	}
}

// Append records a relayed message and fans it out to SSE watchers. It is
// the gateway hub's Recorder.
func (s *Server) Append(msg core.ChatMessage) {
	s.history.Append(msg)
	s.Broadcast(msg)
}

func (s *Server) Broadcast(msg core.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch, filters := range s.clients {
		if !filters.Matches(msg) {
			continue
		}
		select {
		case ch <- msg:
		default:
			s.metrics.IncBroadcastDrops("sse")
		}
	}
}

func (s *Server) Start() error {
	log.Printf("httpapi: listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for ch := range s.clients {
		close(ch)
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}
