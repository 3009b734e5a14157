package runner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/http/httpguts"
)

const (
	// RequestTimeout bounds every individual request.
	RequestTimeout = 30 * time.Second

	// PreviewLimit is the number of response body characters carried in update events.
	PreviewLimit = 200
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrUnknownRun    = errors.New("unknown run")
	ErrRunNotRunning = errors.New("run is not running")
)

// Config describes one load test. It is not modified once a run starts.
type Config struct {
	URL                  string  `json:"url" mapstructure:"url" validate:"required,url"`
	Method               string  `json:"method" mapstructure:"method" validate:"required,httpmethod"`
	Headers              Headers `json:"headers,omitempty" mapstructure:"headers"`
	Body                 Body    `json:"body,omitempty" mapstructure:"body"`
	ConcurrentUsers      int     `json:"concurrentUsers" mapstructure:"concurrent_users" validate:"min=1,max=1000"`
	TotalRequests        int     `json:"totalRequests" mapstructure:"total_requests" validate:"min=1,max=50000"`
	DelayBetweenRequests int     `json:"delayBetweenRequests" mapstructure:"delay_between_requests" validate:"min=0,max=10000"`
}

// Delay returns the pause a worker takes between two requests.
func (c Config) Delay() time.Duration {
	return time.Duration(c.DelayBetweenRequests) * time.Millisecond
}

// Normalize fills defaults that do not affect validation semantics.
func (c *Config) Normalize() {
	c.URL = strings.TrimSpace(c.URL)
	c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
	if c.Method == "" {
		c.Method = "GET"
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		validate.RegisterValidation("httpmethod", func(fl validator.FieldLevel) bool {
			return validMethod(fl.Field().String())
		})
	})
	return validate
}

// validMethod accepts any RFC 9110 token, so extension methods such as
// PROPFIND pass through to the target.
func validMethod(m string) bool {
	return m != "" && strings.IndexFunc(m, func(r rune) bool { return !httpguts.IsTokenRune(r) }) == -1
}

// Validate reports the first problems found, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if err := configValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}

		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
	}

	u, err := url.Parse(c.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute URL", ErrInvalidConfig)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url scheme %q is not supported", ErrInvalidConfig, u.Scheme)
	}

	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "url":
		return fe.Field() + " must be an absolute URL"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "httpmethod":
		return fe.Field() + " must be an HTTP method token"
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// Headers decodes from either a JSON object of strings or a string holding
// such an object.
type Headers map[string]string

func (h *Headers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*h = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		parsed, err := ParseHeaders(text)
		if err != nil {
			return err
		}
		*h = parsed
		return nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: headers must be a JSON object of strings", ErrInvalidConfig)
	}
	*h = m
	return nil
}

// ParseHeaders decodes headers given as JSON text. Blank text means no headers.
func ParseHeaders(text string) (Headers, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var m map[string]string
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, fmt.Errorf("%w: headers are not valid JSON: %v", ErrInvalidConfig, err)
	}
	return m, nil
}

// Get looks a header up case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Keys returns the header names in a stable order.
func (h Headers) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Body is sent verbatim. JSON strings decode to their content; any other JSON
// value is kept as its compact JSON text.
type Body string

func (b *Body) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*b = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = Body(s)
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*b = Body(buf.String())
	}
	return nil
}

// IsJSON reports whether the body parses as JSON text.
func (b Body) IsJSON() bool {
	return json.Valid([]byte(b))
}

// Request is what a worker hands to an HTTPClient.
type Request struct {
	Method  string
	URL     string
	Headers Headers
	Body    string
}

// Response is what an HTTPClient returns for a received HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// Preview returns the first PreviewLimit characters of the body.
func (r *Response) Preview() string {
	if r == nil {
		return ""
	}
	s := []rune(string(r.Body))
	if len(s) > PreviewLimit {
		s = s[:PreviewLimit]
	}
	return string(s)
}

// bodyMethods carry a request body.
var bodyMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true}

// buildRequest derives the request every worker of a run issues.
func buildRequest(cfg Config) Request {
	req := Request{
		Method:  cfg.Method,
		URL:     cfg.URL,
		Headers: make(Headers, len(cfg.Headers)+1),
	}
	for k, v := range cfg.Headers {
		req.Headers[k] = v
	}

	if cfg.Body != "" && bodyMethods[cfg.Method] {
		req.Body = string(cfg.Body)
		if _, ok := req.Headers.Get("Content-Type"); !ok {
			req.Headers["Content-Type"] = "application/json"
		}
	}

	return req
}
