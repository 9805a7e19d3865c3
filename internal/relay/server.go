package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"charognard/internal/logging"
	"charognard/internal/message"
	"charognard/internal/metrics"
)

const maxMessageBytes = 64 << 10

// Server exposes the relay over HTTP.
type Server struct {
	relay   *Relay
	limiter *rate.Limiter
	router  *mux.Router
	http    *http.Server
}

// NewServer builds the router. Inbound messages are limited to rps with the
// given burst across all clients.
func NewServer(addr string, r *Relay, rps float64, burst int) *Server {
	s := &Server{
		relay:   r,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		router:  mux.NewRouter(),
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.rateLimit)
	v1.HandleFunc("/messages", s.handleMessage).Methods(http.MethodPost)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.http.ListenAndServe() }()
	logging.Info("relay_listening", map[string]any{"addr": s.http.Addr})
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			metrics.IncMessage("unknown", "rate_limited")
			respondJSON(w, http.StatusTooManyRequests, message.Failf("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		metrics.IncMessage("unknown", "bad_request")
		respondJSON(w, http.StatusRequestEntityTooLarge, message.Fail(err))
		return
	}
	m, err := message.Decode(body)
	if err != nil {
		metrics.IncMessage("unknown", "bad_request")
		respondJSON(w, http.StatusBadRequest, message.Fail(err))
		return
	}
	resp := s.relay.Handle(r.Context(), m)
	outcome := "ok"
	if !resp.Success {
		outcome = "error"
		logging.Warn("message_failed", map[string]any{"type": string(m.Type()), "error": resp.Error})
	}
	metrics.IncMessage(string(m.Type()), outcome)
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
