package runner

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodyRead caps how much of a response body is buffered; the rest is drained.
const maxBodyRead = 64 << 10

// HTTPClient sends one request. A non-nil error with a nil Response is a
// transport failure. A non-nil error together with a Response means the far
// end answered but the exchange is still considered failed.
type HTTPClient interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// NetClient is the net/http backed HTTPClient.
type NetClient struct {
	Client *http.Client
}

// NewNetClient builds a client whose connection pool fits maxConns
// concurrent users.
func NewNetClient(maxConns int, insecure bool) *NetClient {
	if maxConns <= 0 {
		maxConns = 100
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = maxConns
	t.MaxConnsPerHost = maxConns
	t.MaxIdleConnsPerHost = maxConns
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &NetClient{
		Client: &http.Client{
			Timeout:   RequestTimeout,
			Transport: t,
		},
	}
}

func (c *NetClient) Do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	io.Copy(io.Discard, resp.Body)

	out := &Response{
		StatusCode: resp.StatusCode,
		Body:       b,
		Headers:    flattenHeader(resp.Header),
	}

	if resp.StatusCode < 100 || resp.StatusCode >= 600 {
		return out, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	if readErr != nil {
		return out, fmt.Errorf("read response body: %w", readErr)
	}

	return out, nil
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}
