package gradio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL   = "http://localhost:7862"
	DefaultRoute     = "generate_music_simple"
	defaultAPIPrefix = "/gradio_api"
)

var (
	ErrConfigUnavailable        = errors.New("gradio: config unavailable")
	ErrRequestFailed            = errors.New("gradio: request failed")
	ErrUnexpectedResponseFormat = errors.New("gradio: unexpected response format")
	ErrGenerationRejected       = errors.New("gradio: generation rejected")
)

// RequestError is returned when the run endpoint answers with a non-2xx status.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("gradio: request failed with status %d (%s)", e.Status, truncate(e.Body))
}

func (e *RequestError) Is(target error) bool {
	return target == ErrRequestFailed
}

// RejectedError is returned when the backend answers 2xx without audio but
// with a status message explaining why.
type RejectedError struct {
	Status string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gradio: generation rejected: %s", e.Status)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrGenerationRejected
}

type Client struct {
	client  *http.Client
	debug   bool
	baseURL string
	route   string

	lck    sync.Mutex
	config *BackendConfig
	group  singleflight.Group
}

type Config struct {
	BaseURL string
	Route   string
	Debug   bool
	Client  *http.Client
}

func New(cfg *Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	route := cfg.Route
	if route == "" {
		route = DefaultRoute
	}
	return &Client{
		client:  client,
		debug:   cfg.Debug,
		baseURL: strings.TrimRight(baseURL, "/"),
		route:   strings.Trim(route, "/"),
	}
}

// BaseURL returns the backend base URL without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Absolute converts a server-relative URL returned by the backend into an
// absolute one. Absolute URLs are returned unchanged.
func (c *Client) Absolute(u string) string {
	if strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//") {
		return c.baseURL + u
	}
	return u
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

func (c *Client) do(ctx context.Context, method, path string, in any) (int, []byte, error) {
	var body []byte
	var reqBody io.Reader
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("gradio: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	c.log("gradio: do %s %s %s", method, path, string(body))

	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("gradio: couldn't create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	if in != nil {
		req.Header.Set("content-type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("gradio: couldn't %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("gradio: couldn't read response body: %w", err)
	}
	c.log("gradio: response %s %s %d %s", method, path, resp.StatusCode, string(respBody))
	return resp.StatusCode, respBody, nil
}

func ok(status int) bool {
	return status >= 200 && status < 300
}
