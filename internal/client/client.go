// Package client sends bus messages to a running daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"focuser/internal/bus"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the daemon listening on addr, given as
// host:port or a full URL.
func New(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Send posts msg and returns the bus response. A failed response is not an
// error; only transport problems are.
func (c *Client) Send(ctx context.Context, msg bus.Message) (bus.Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return bus.Response{}, fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/message", bytes.NewReader(body))
	if err != nil {
		return bus.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return bus.Response{}, fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return bus.Response{}, fmt.Errorf("read response: %w", err)
	}

	var raw bus.RawResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return bus.Response{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return raw.Response(), nil
}

// Call sends msg and decodes the response data into out, which may be nil.
// A failed response becomes an error.
func (c *Client) Call(ctx context.Context, msg bus.Message, out any) error {
	resp, err := c.Send(ctx, msg)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s: %s", msg.Action, resp.Error)
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}
