// Package client talks to a running replay server: it creates sessions over
// REST and watches their streams over the WebSocket endpoint, feeding every
// frame through a scene.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/traffic.replay/internal/httputil"
	"github.com/banshee-data/traffic.replay/internal/monitoring"
	"github.com/banshee-data/traffic.replay/internal/protocol"
	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

var logf = monitoring.Prefixed("Client")

// ErrStreamError is wrapped around error messages sent by the server.
var ErrStreamError = errors.New("server reported an error")

// Client is a replay API client.
type Client struct {
	base   *url.URL
	http   httputil.HTTPClient
	dialer *websocket.Dialer

	// ReadTimeout bounds the wait for each WebSocket message.
	ReadTimeout time.Duration
}

// New returns a client for the server at baseURL (for example
// "http://localhost:8000"). A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient httputil.HTTPClient) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: u, http: httpClient, dialer: websocket.DefaultDialer, ReadTimeout: 30 * time.Second}, nil
}

func (c *Client) url(path string) string {
	return c.base.String() + path
}

// Initialize creates a session.
func (c *Client) Initialize(ctx context.Context, cfg trajectory.SessionConfig) (*protocol.InitResponse, error) {
	var resp protocol.InitResponse
	if err := httputil.DoJSON(ctx, c.http, http.MethodPost, c.url("/api/simulation/initialize"), cfg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Session fetches a session's map and metadata.
func (c *Client) Session(ctx context.Context, id string) (*protocol.SessionResponse, error) {
	var resp protocol.SessionResponse
	if err := httputil.DoJSON(ctx, c.http, http.MethodGet, c.url("/api/simulation/session/"+url.PathEscape(id)), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete evicts a session.
func (c *Client) Delete(ctx context.Context, id string) error {
	return httputil.DoJSON(ctx, c.http, http.MethodDelete, c.url("/api/simulation/session/"+url.PathEscape(id)), nil, nil)
}

// Status fetches the server status.
func (c *Client) Status(ctx context.Context) (*protocol.StatusResponse, error) {
	var resp protocol.StatusResponse
	if err := httputil.DoJSON(ctx, c.http, http.MethodGet, c.url("/api/status"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) wsURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/simulation"
	return u.String()
}
