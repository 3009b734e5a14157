package dummy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func serve(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	h := Handler(ServerConfig{Sleep: func(time.Duration) {}})
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestEndpoints(t *testing.T) {
	tests := []struct {
		path string
		code int
	}{
		{"/ok", http.StatusOK},
		{"/created", http.StatusCreated},
		{"/fast", http.StatusOK},
		{"/slow", http.StatusOK},
		{"/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.code, serve(t, http.MethodGet, tt.path, "").Code)
		})
	}
}

func TestErrorEndpointMix(t *testing.T) {
	for i := 0; i < 50; i++ {
		code := serve(t, http.MethodGet, "/error", "").Code
		assert.Contains(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusInternalServerError}, code)
	}
}

func TestEcho(t *testing.T) {
	w := serve(t, http.MethodPost, "/echo", `{"a":1}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"a":1}`, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "POST", w.Header().Get("X-Echo-Method"))
}
