package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// TestTimeoutMiddlewarePassthrough tests that fast handlers are unaffected
func TestTimeoutMiddlewarePassthrough(t *testing.T) {
	handler := TimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pages", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

// TestTimeoutMiddlewareExpiry tests that a slow handler gets a timeout
// response and that its late write never reaches the client
func TestTimeoutMiddlewareExpiry(t *testing.T) {
	done := make(chan error, 1)
	handler := TimeoutMiddleware(20*time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, err := w.Write([]byte("late body"))
		done <- err
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pages", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "request timeout")
	assert.NotContains(t, rec.Body.String(), "late body")

	// The handler's write after the deadline is rejected, not interleaved.
	select {
	case err := <-done:
		assert.ErrorIs(t, err, http.ErrHandlerTimeout)
	case <-time.After(time.Second):
		t.Fatal("handler did not finish")
	}
}

// TestTimeoutMiddlewareContextDeadline tests that the request context carries
// the configured deadline so store calls can bail out early
func TestTimeoutMiddlewareContextDeadline(t *testing.T) {
	var hasDeadline bool
	handler := TimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pages", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, hasDeadline)
}

// TestLoggingMiddlewareRequestID tests that a request ID is generated, echoed
// in the response header, and visible to the handler via the context
func TestLoggingMiddlewareRequestID(t *testing.T) {
	var seen string
	handler := LoggingMiddleware(zaptest.NewLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/elements", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	// A caller-supplied ID is kept as is.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/elements", nil)
	req.Header.Set("X-Request-ID", "req-123")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
