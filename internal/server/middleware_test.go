package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecurityHeadersMiddleware_MasksServerAndStripsPoweredBy(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "Go/1.25")
		w.Header().Set("X-Powered-By", "net/http")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	handler := SecurityHeadersMiddleware(inner)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, "tutord", rec.Header().Get("Server"))
	require.Empty(t, rec.Header().Get("X-Powered-By"))
	require.Equal(t, "ok", rec.Body.String())
}

func TestSecurityHeadersMiddleware_SetsServerWhenAbsent(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	handler := SecurityHeadersMiddleware(inner)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, "tutord", rec.Header().Get("Server"))
}
