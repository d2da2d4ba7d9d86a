package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/msaudio/audioserver-go/internal/apperrors"
	"github.com/msaudio/audioserver-go/internal/log"
)

// Handler adapts handlers that return errors into http.Handler.
type Handler func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP implements http.Handler.
func (handler Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := handler(w, r); err != nil {
		WriteError(w, err)
	}
}

// headerRequestID carries the correlation id in both directions.
const headerRequestID = "x-request-id"

type ctxKey int

const ctxRequestID ctxKey = iota

// WithRequestID tags each request with a correlation id, honouring one the
// caller already sent, and echoes it on the response. Command responses and
// log lines quote the id so a miniserver request can be traced end to end.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID, id)))
	})
}

// RequestID reads the correlation id placed by WithRequestID, or "".
func RequestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	id, _ := r.Context().Value(ctxRequestID).(string)
	return id
}

// RecovererMiddleware converts panics into 500 responses.
func RecovererMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger := log.WithComponent("http")
				logger.Error().
					Interface("panic", recovered).
					Str("path", r.URL.Path).
					Msg("panic recovered")
				WriteError(w, apperrors.NewInternalError("internal server error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
