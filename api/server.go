// Package api exposes the orchestrator over HTTP and websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/agents/orchestrator"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
	"github.com/tanpawarit/Chative-Support-Orchestrator/pkg/metrics"
)

// Conversations is the orchestrator surface the server needs.
type Conversations interface {
	Handle(ctx context.Context, req orchestrator.Request) (orchestrator.Reply, error)
	Session(ctx context.Context, sessionID string) (*statex.Session, error)
	Reset(ctx context.Context, sessionID string) error
}

type Config struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"15s"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" split_words:"true" default:"*"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" split_words:"true" default:"65536"`
}

type Server struct {
	router  *chi.Mux
	convs   Conversations
	metrics *metrics.Recorder
	cfg     Config
}

func NewServer(convs Conversations, m *metrics.Recorder, cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:  router,
		convs:   convs,
		metrics: m,
		cfg:     cfg,
	}

	router.Get("/healthz", s.health)
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}
	router.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.chat)
		r.Get("/sessions/{sessionID}", s.getSession)
		r.Delete("/sessions/{sessionID}", s.deleteSession)
		r.Get("/ws", s.serveWS)
	})

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("api server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	log.Info().Msg("api server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	return nil
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Message   string `json:"message"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}

	reply, err := s.convs.Handle(r.Context(), orchestrator.Request{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Text:      req.Message,
	})
	if err != nil && reply.Text == "" {
		writeError(w, r, err)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", reply.SessionID).Msg("turn replied but was not persisted")
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.convs.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.convs.Reset(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidMessage),
		errors.Is(err, orchestrator.ErrInvalidSession),
		errors.Is(err, statex.ErrInvalidSession):
		return http.StatusBadRequest
	case errors.Is(err, statex.ErrStateNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		msg = "service temporarily unavailable"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response body")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if strings.HasPrefix(r.URL.Path, "/healthz") || r.URL.Path == "/metrics" {
			return
		}
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
