package httpserver

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	obsctx "github.com/fairyhunter13/interview-prep/internal/observability"
)

func TestRecovererRendersEnvelope(t *testing.T) {
	h := Recoverer()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"INTERNAL"`)
}

func TestRequestIDPropagates(t *testing.T) {
	var rid string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid = obsctx.RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "client-id")
	h.ServeHTTP(w, r)
	assert.Equal(t, "client-id", rid)
	assert.Equal(t, "client-id", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", string(bytes.Repeat([]byte("x"), 100)))
	h.ServeHTTP(w, r)
	assert.Len(t, rid, 26)
}

func TestAccessLogLevels(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := AccessLog()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	r := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	r = r.WithContext(obsctx.ContextWithLogger(r.Context(), lg))
	h.ServeHTTP(httptest.NewRecorder(), r)
	out := buf.String()
	require.Contains(t, out, `"msg":"http_access"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"route":"/api/x"`)
}

func TestTimeoutMiddleware(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	w := httptest.NewRecorder()
	TimeoutMiddleware(10*time.Millisecond)(slow).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "TIMEOUT")

	assert.NotNil(t, TimeoutMiddleware(0)(slow))
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
