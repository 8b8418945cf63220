// Package backend is the HTTP client for the codeviz backend service.
//
// The backend exposes two endpoints: POST /refresh regenerates the payload
// matrix, GET /get_graphs returns the whole matrix in one response.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vanderheijden86/codeviz/pkg/debug"
	"github.com/vanderheijden86/codeviz/pkg/payload"
	"github.com/vanderheijden86/codeviz/pkg/version"
)

const (
	// DefaultURL is where the backend listens out of the box.
	DefaultURL = "http://localhost:3001"
	// DefaultTimeout bounds a single request. Recompute on a large tree can
	// take a while, so this is generous.
	DefaultTimeout = 2 * time.Minute

	PathGraphs  = "/get_graphs"
	PathRefresh = "/refresh"

	// maxBodyBytes caps the /get_graphs body.
	maxBodyBytes = 256 << 20
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// Client talks to one backend instance.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout. The client's *http.Client is
// copied first, so one passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// NewClient returns a client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpoint(path string) string {
	return c.base.JoinPath(path).String()
}

// TriggerRecompute asks the backend to regenerate the matrix and waits for
// the response. The body is not consumed beyond draining it.
func (c *Client) TriggerRecompute(ctx context.Context) error {
	defer debug.LogEnterExit("backend.TriggerRecompute")()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(PathRefresh), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(req, resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// RetrieveMatrix fetches the complete matrix.
func (c *Client) RetrieveMatrix(ctx context.Context) (payload.Matrix, error) {
	defer debug.LogEnterExit("backend.RetrieveMatrix")()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(PathGraphs), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(req, resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading matrix: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, errors.New("reading matrix: response too large")
	}
	debug.Log("backend: received %d bytes", len(body))
	return payload.DecodeMatrix(body)
}

func checkStatus(req *http.Request, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		Method: req.Method,
		URL:    req.URL.String(),
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(snippet)),
	}
}
