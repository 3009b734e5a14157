package runner

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		URL:             "https://example.com/api",
		Method:          "GET",
		ConcurrentUsers: 1,
		TotalRequests:   3,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing url", func(c *Config) { c.URL = "" }, "url is required"},
		{"relative url", func(c *Config) { c.URL = "/just/a/path" }, "url must be an absolute URL"},
		{"bare host", func(c *Config) { c.URL = "example.com" }, "url must be an absolute URL"},
		{"ftp scheme", func(c *Config) { c.URL = "ftp://example.com/file" }, "not supported"},
		{"zero users", func(c *Config) { c.ConcurrentUsers = 0 }, "concurrentUsers must be at least 1"},
		{"too many users", func(c *Config) { c.ConcurrentUsers = 1001 }, "concurrentUsers must be at most 1000"},
		{"max users", func(c *Config) { c.ConcurrentUsers = 1000 }, ""},
		{"zero requests", func(c *Config) { c.TotalRequests = 0 }, "totalRequests must be at least 1"},
		{"too many requests", func(c *Config) { c.TotalRequests = 50001 }, "totalRequests must be at most 50000"},
		{"negative delay", func(c *Config) { c.DelayBetweenRequests = -1 }, "delayBetweenRequests must be at least 0"},
		{"max delay", func(c *Config) { c.DelayBetweenRequests = 10000 }, ""},
		{"too long delay", func(c *Config) { c.DelayBetweenRequests = 10001 }, "delayBetweenRequests must be at most 10000"},
		{"extension method", func(c *Config) { c.Method = "PROPFIND" }, ""},
		{"custom method", func(c *Config) { c.Method = "PURGE" }, ""},
		{"method with space", func(c *Config) { c.Method = "GET X" }, "method must be an HTTP method token"},
		{"method with separator", func(c *Config) { c.Method = "GET/1" }, "method must be an HTTP method token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{URL: "  http://localhost:8080/x ", Method: " post "}
	cfg.Normalize()
	assert.Equal(t, "http://localhost:8080/x", cfg.URL)
	assert.Equal(t, "POST", cfg.Method)

	cfg = Config{}
	cfg.Normalize()
	assert.Equal(t, "GET", cfg.Method)
}

func TestConfigUnmarshalJSON(t *testing.T) {
	raw := `{
		"url": "http://localhost:3000",
		"method": "POST",
		"headers": "{\"X-Token\": \"abc\"}",
		"body": {"name": "volley", "n": 1},
		"concurrentUsers": 4,
		"totalRequests": 20,
		"delayBetweenRequests": 50
	}`

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))

	assert.Equal(t, Headers{"X-Token": "abc"}, cfg.Headers)
	assert.Equal(t, Body(`{"name":"volley","n":1}`), cfg.Body)
	assert.Equal(t, 4, cfg.ConcurrentUsers)
	assert.Equal(t, 20, cfg.TotalRequests)
	assert.Equal(t, 50, cfg.DelayBetweenRequests)
	assert.NoError(t, cfg.Validate())
}

func TestHeadersUnmarshal(t *testing.T) {
	var h Headers
	require.NoError(t, json.Unmarshal([]byte(`{"A":"1"}`), &h))
	assert.Equal(t, Headers{"A": "1"}, h)

	require.NoError(t, json.Unmarshal([]byte(`""`), &h))
	assert.Nil(t, h)

	err := json.Unmarshal([]byte(`"{not json"`), &h)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = json.Unmarshal([]byte(`{"A":1}`), &h)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBodyUnmarshal(t *testing.T) {
	var b Body
	require.NoError(t, json.Unmarshal([]byte(`"plain text"`), &b))
	assert.Equal(t, Body("plain text"), b)
	assert.False(t, b.IsJSON())

	require.NoError(t, json.Unmarshal([]byte(`"{\"a\":1}"`), &b))
	assert.Equal(t, Body(`{"a":1}`), b)
	assert.True(t, b.IsJSON())

	require.NoError(t, json.Unmarshal([]byte(`[1, 2]`), &b))
	assert.Equal(t, Body(`[1,2]`), b)

	require.NoError(t, json.Unmarshal([]byte(`null`), &b))
	assert.Equal(t, Body(""), b)
}

func TestHeadersGet(t *testing.T) {
	h := Headers{"content-type": "text/plain", "B": "2", "A": "1"}

	v, ok := h.Get("Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", v)

	_, ok = h.Get("Accept")
	assert.False(t, ok)

	assert.Equal(t, []string{"A", "B", "content-type"}, h.Keys())
}

func TestBuildRequest(t *testing.T) {
	t.Run("post gets default content type", func(t *testing.T) {
		req := buildRequest(Config{Method: "POST", URL: "http://x", Body: `{"a":1}`})
		assert.Equal(t, `{"a":1}`, req.Body)
		assert.Equal(t, "application/json", req.Headers["Content-Type"])
	})

	t.Run("supplied content type is kept case-insensitively", func(t *testing.T) {
		req := buildRequest(Config{
			Method:  "PUT",
			URL:     "http://x",
			Headers: Headers{"content-type": "text/plain"},
			Body:    "hello",
		})
		assert.Equal(t, "hello", req.Body)
		assert.Equal(t, Headers{"content-type": "text/plain"}, req.Headers)
	})

	t.Run("get drops body", func(t *testing.T) {
		req := buildRequest(Config{Method: "GET", URL: "http://x", Body: "ignored"})
		assert.Empty(t, req.Body)
		assert.Empty(t, req.Headers)
	})

	t.Run("empty body adds no header", func(t *testing.T) {
		req := buildRequest(Config{Method: "PATCH", URL: "http://x"})
		assert.Empty(t, req.Headers)
	})

	t.Run("caller headers are copied", func(t *testing.T) {
		h := Headers{"X": "1"}
		req := buildRequest(Config{Method: "POST", URL: "http://x", Headers: h, Body: "b"})
		req.Headers["X"] = "2"
		assert.Equal(t, "1", h["X"])
	})
}

func TestResponsePreview(t *testing.T) {
	var nilResp *Response
	assert.Empty(t, nilResp.Preview())

	long := &Response{Body: []byte(strings.Repeat("é", PreviewLimit+50))}
	assert.Len(t, []rune(long.Preview()), PreviewLimit)

	short := &Response{Body: []byte("ok")}
	assert.Equal(t, "ok", short.Preview())
}
