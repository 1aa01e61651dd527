// Package api serves the supervisor over a local HTTP JSON API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"n2nmaid"
	"n2nmaid/config"
	"n2nmaid/internal/supervisor"
)

const DefaultAddr = "127.0.0.1:5645"

// Error codes returned in the "error" field of failed requests.
const (
	CodeAlreadyRunning = "already_running"
	CodeInvalidConfig  = "invalid_config"
	CodeSpawnFailed    = "spawn_failed"
	CodeBadRequest     = "bad_request"
	CodeInternal       = "internal"
)

const maxBodyBytes = 64 << 10

// Supervisor is what the server needs from the edge supervisor.
// Production: *supervisor.Supervisor
// Testing: fake with recorded calls
type Supervisor interface {
	Start(ctx context.Context, cfg config.Config) error
	Stop(ctx context.Context) error
	StopForce(ctx context.Context) error
	Status() n2nmaid.StatusReport
	Logs(consumer string) []n2nmaid.LogRecord
	Peers() []n2nmaid.PeerInfo
}

type Server struct {
	sup        Supervisor
	loadConfig func() (config.Config, error)
	mux        *http.ServeMux
	log        *slog.Logger
}

type Option func(*Server)

// WithConfigLoader sets where POST /v1/connect reads the config from when
// the request has no body. Defaults to config.Load.
func WithConfigLoader(fn func() (config.Config, error)) Option {
	return func(s *Server) { s.loadConfig = fn }
}

// WithMetrics exposes h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.mux.Handle("GET /metrics", h) }
}

func New(sup Supervisor, opts ...Option) *Server {
	s := &Server{
		sup:        sup,
		loadConfig: config.Load,
		mux:        http.NewServeMux(),
		log:        slog.With("component", "api"),
	}
	s.mux.HandleFunc("GET /v1/status", s.handleStatus)
	s.mux.HandleFunc("GET /v1/logs", s.handleLogs)
	s.mux.HandleFunc("GET /v1/peers", s.handlePeers)
	s.mux.HandleFunc("POST /v1/connect", s.handleConnect)
	s.mux.HandleFunc("POST /v1/disconnect", s.handleDisconnect)
	for _, o := range opts {
		o(s)
	}
	return s
}

// DefaultMetrics serves the default prometheus registry.
func DefaultMetrics() Option {
	return WithMetrics(promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.Debug("Request served.",
		"method", r.Method,
		"path", r.URL.Path,
		"code", rec.code,
		"duration_ms", time.Since(start).Milliseconds())
}

// ListenAndServe serves on addr and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		// Connect and disconnect wait for the edge.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("API listening.", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sup.Status())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	consumer := r.URL.Query().Get("consumer")
	if consumer == "" {
		consumer = "api"
	}
	logs := s.sup.Logs(consumer)
	if logs == nil {
		logs = []n2nmaid.LogRecord{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handlePeers(w http.ResponseWriter, _ *http.Request) {
	list := s.sup.Peers()
	if list == nil {
		list = []n2nmaid.PeerInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "read body: "+err.Error())
		return
	}

	var cfg config.Config
	if len(body) == 0 {
		if cfg, err = s.loadConfig(); err != nil {
			writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
			return
		}
	} else {
		cfg = config.Default()
		if err := json.Unmarshal(body, &cfg); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "decode config: "+err.Error())
			return
		}
	}

	if err := s.sup.Start(r.Context(), cfg); err != nil {
		s.writeStartError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.sup.Status())
}

func (s *Server) writeStartError(w http.ResponseWriter, err error) {
	var spawnErr *supervisor.SpawnError
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, CodeAlreadyRunning, err.Error())
	case errors.Is(err, supervisor.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, CodeInvalidConfig, err.Error())
	case errors.As(err, &spawnErr):
		writeError(w, http.StatusInternalServerError, CodeSpawnFailed, err.Error())
	default:
		s.log.Warn("Start failed.", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid force value %q", v))
			return
		}
		force = b
	}

	stop := s.sup.Stop
	if force {
		stop = s.sup.StopForce
	}
	if err := stop(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.sup.Status())
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, errorBody{Error: errCode, Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
