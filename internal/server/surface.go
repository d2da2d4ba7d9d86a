package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/alerts"
	"github.com/msaudio/audioserver-go/internal/api"
	"github.com/msaudio/audioserver-go/internal/apperrors"
	"github.com/msaudio/audioserver-go/internal/broadcast"
	"github.com/msaudio/audioserver-go/internal/command"
	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/zone"
)

// maxPayloadBytes bounds a POSTed command payload.
const maxPayloadBytes = 1 << 20

// appRequestsPerMinute is the per-IP budget on the app listener. The
// miniserver listener is never rate limited.
const appRequestsPerMinute = 300

// surface serves the command grammar over HTTP and websocket, plus the
// alert media routes. Both listeners share one instance.
type surface struct {
	router *command.Router
	hub    *broadcast.Hub
	zones  *zone.Manager
	alerts *alerts.Resolver
	logger zerolog.Logger
}

// routes builds one listener's chi router. The app surface carries /metrics
// and rate limiting on top of the shared paths.
func (s *surface) routes(app bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(requestLoggerMiddleware)
	r.Use(api.WithRequestID)
	r.Use(api.RecovererMiddleware)
	if app {
		r.Use(httprate.LimitByIP(appRequestsPerMinute, time.Minute))
		r.Handle("/metrics", promhttp.Handler())
	}

	s.registerHealthRoutes(r)
	r.Method(http.MethodGet, "/alerts/*", api.Handler(s.serveAlert))
	r.HandleFunc("/*", s.handleAny)
	return r
}

// handleAny is the catch-all: websocket upgrades become push/command
// sessions, everything else is parsed as a command path.
func (s *surface) handleAny(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWS(w, r)
		return
	}
	s.serveCommand(w, r)
}

// serveCommand treats the request path as one command in the miniserver
// grammar. The raw escaped path goes to the router untouched; percent
// decoding belongs to argument handling, not transport.
func (s *surface) serveCommand(w http.ResponseWriter, r *http.Request) {
	var payload []byte
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			api.WriteError(w, apperrors.NewValidationError("command payload too large"))
			return
		}
		payload = body
	}

	res := s.router.Execute(r.Context(), r.URL.EscapedPath(), payload, command.Origin{
		Surface:   command.SurfaceHTTP,
		RequestID: api.RequestID(r),
	})
	_ = api.WriteJSON(w, res.Status, res.Body)
}

// serveAlert hands out alert and TTS media below the alerts root.
func (s *surface) serveAlert(w http.ResponseWriter, r *http.Request) error {
	rel, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		return apperrors.NewValidationError("bad alert path")
	}
	path, err := s.alerts.ServePath(rel)
	if err != nil {
		return err
	}
	http.ServeFile(w, r, path)
	return nil
}

func (s *surface) registerHealthRoutes(r chi.Router) {
	r.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, _ *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"status":      "healthy",
			"service":     "audioserver",
			"zones":       s.zones.Count(),
			"subscribers": s.hub.SubscriberCount(),
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		})
	}))
	r.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, _ *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	r.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, _ *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// requestLoggerMiddleware logs every request with its status and duration.
func requestLoggerMiddleware(next http.Handler) http.Handler {
	logger := log.WithComponent("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("elapsed", time.Since(start).Round(time.Millisecond)).
			Msg("request")
	})
}
