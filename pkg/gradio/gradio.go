package gradio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Styles lists the styles understood by the music backend.
var Styles = []string{
	"balanced",
	"classical",
	"jazz",
	"electronic",
	"ambient",
	"rock",
	"folk",
	"world",
}

type BackendConfig struct {
	APIPrefix string
}

type configResponse struct {
	APIPrefix *string `json:"api_prefix"`
}

// Config returns the backend configuration. It is fetched once and shared by
// all the callers, including the ones arriving while the first fetch is in
// flight. A failed fetch isn't cached.
func (c *Client) Config(ctx context.Context) (*BackendConfig, error) {
	if cfg := c.cached(); cfg != nil {
		return cfg, nil
	}
	ch := c.group.DoChan("config", func() (any, error) {
		if cfg := c.cached(); cfg != nil {
			return cfg, nil
		}
		// The fetch is shared, a caller leaving early mustn't cancel it.
		cfg, err := c.fetchConfig(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.lck.Lock()
		c.config = cfg
		c.lck.Unlock()
		return cfg, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrConfigUnavailable, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*BackendConfig), nil
	}
}

func (c *Client) cached() *BackendConfig {
	c.lck.Lock()
	defer c.lck.Unlock()
	return c.config
}

func (c *Client) fetchConfig(ctx context.Context) (*BackendConfig, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/config", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigUnavailable, err)
	}
	if !ok(status) {
		return nil, fmt.Errorf("%w: status %d (%s)", ErrConfigUnavailable, status, truncate(string(body)))
	}
	var resp configResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: couldn't unmarshal config: %v", ErrConfigUnavailable, err)
	}
	prefix := defaultAPIPrefix
	if resp.APIPrefix != nil {
		prefix = strings.TrimRight(*resp.APIPrefix, "/")
	}
	return &BackendConfig{APIPrefix: prefix}, nil
}

type Request struct {
	Description string
	Duration    time.Duration
	Style       string
}

type Result struct {
	URL    string
	Name   string
	Status string
}

type runRequest struct {
	Data []any `json:"data"`
}

type runResponse struct {
	Data []json.RawMessage `json:"data"`
}

// Generate submits a generation request and returns the playable result.
func (c *Client) Generate(ctx context.Context, req *Request) (*Result, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, err
	}

	// The backend takes positional arguments.
	in := &runRequest{
		Data: []any{
			req.Description,
			req.Duration.Seconds(),
			strings.ToLower(req.Style),
		},
	}
	path := fmt.Sprintf("%s/run/%s", cfg.APIPrefix, c.route)
	status, body, err := c.do(ctx, http.MethodPost, path, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if !ok(status) {
		return nil, &RequestError{Status: status, Body: string(body)}
	}

	var resp runResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: couldn't unmarshal response: %v", ErrUnexpectedResponseFormat, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrUnexpectedResponseFormat)
	}
	statusText := secondary(resp.Data)

	first := bytes.TrimSpace(resp.Data[0])
	if bytes.Equal(first, []byte("null")) && statusText != "" {
		return nil, &RejectedError{Status: statusText}
	}
	ref, err := ParseMediaRef(first)
	if err != nil {
		return nil, err
	}
	return &Result{
		URL:    Resolve(ref, c.baseURL, cfg.APIPrefix),
		Name:   displayName(ref, req.Description),
		Status: statusText,
	}, nil
}

// secondary returns the status text that follows the media reference, if any.
func secondary(data []json.RawMessage) string {
	if len(data) < 2 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data[1], &s); err != nil {
		return ""
	}
	return s
}

// Download stores the media at the given URL into the output file.
func (c *Client) Download(ctx context.Context, u, output string) error {
	u = c.Absolute(u)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("gradio: couldn't create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gradio: couldn't download %s: %w", u, err)
	}
	defer resp.Body.Close()
	if !ok(resp.StatusCode) {
		b, _ := io.ReadAll(resp.Body)
		return &RequestError{Status: resp.StatusCode, Body: string(b)}
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("gradio: couldn't create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("gradio: couldn't write file: %w", err)
	}
	c.log("gradio: downloaded %s to %s", u, output)
	return nil
}
