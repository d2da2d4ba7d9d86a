package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/msaudio/audioserver-go/internal/apperrors"
)

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	errField, ok := body["error"].(map[string]any)
	require.True(t, ok, "response %s has no error object", rec.Body.String())
	return errField
}

func TestHandler_WritesTaggedError(t *testing.T) {
	h := Handler(func(w http.ResponseWriter, r *http.Request) error {
		return apperrors.NewValidationError("bad argument")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := errorBody(t, rec)
	require.Equal(t, "validation", body["kind"])
	require.Equal(t, "bad argument", body["message"])
}

func TestHandler_UntaggedErrorBecomesInternal(t *testing.T) {
	h := Handler(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("boom")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal", errorBody(t, rec)["kind"])
}

func TestHandler_NoErrorWritesNothingExtra(t *testing.T) {
	h := Handler(func(w http.ResponseWriter, r *http.Request) error {
		return WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok": true}`, rec.Body.String())
}

func TestRecovererMiddleware_ConvertsPanic(t *testing.T) {
	h := RecovererMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("unexpected")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal", errorBody(t, rec)["kind"])
}

func TestWithRequestID_GeneratesWhenAbsent(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get(headerRequestID))
}

func TestWithRequestID_KeepsCallerID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "req-42", seen)
	require.Equal(t, "req-42", rec.Header().Get(headerRequestID))
}

func TestRequestID_MissingContext(t *testing.T) {
	require.Empty(t, RequestID(nil))
	require.Empty(t, RequestID(httptest.NewRequest(http.MethodGet, "/x", nil)))
}
