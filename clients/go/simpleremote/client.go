// Package simpleremote is a client for the SimpleRemote alert API.
package simpleremote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// DefaultBasePath is the server's default route prefix.
const DefaultBasePath = "/mm-simple-remote"

// Client is a SimpleRemote API client. APIKey is only needed for Submit;
// the operator calls need Login first.
type Client struct {
	BaseURL    string
	BasePath   string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new client. The HTTP client keeps the session
// cookie between calls.
func NewClient(baseURL, apiKey string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		BasePath:   DefaultBasePath,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}
}

// Alert is a queued or showing alert.
type Alert struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"createdAt"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("simpleremote: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("simpleremote: %d %s", e.Status, e.Message)
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out any, headers map[string]string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+c.BasePath+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

type submitRequest struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

type itemResponse struct {
	Item Alert `json:"item"`
}

// Submit posts an alert through the external endpoint.
func (c *Client) Submit(ctx context.Context, title, message string) (*Alert, error) {
	var resp itemResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/external/alert",
		submitRequest{Title: title, Message: message}, &resp,
		map[string]string{"X-API-Key": c.APIKey})
	if err != nil {
		return nil, err
	}
	return &resp.Item, nil
}

// Login opens an operator session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.doRequest(ctx, http.MethodPost, "/api/login",
		map[string]string{"username": username, "password": password}, nil, nil)
}

// Logout closes the operator session.
func (c *Client) Logout(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/api/logout", nil, nil, nil)
}

// AlertsResponse is the queue and active slot.
type AlertsResponse struct {
	Queue       []Alert `json:"queue"`
	Active      *Alert  `json:"active"`
	ActiveUntil int64   `json:"activeUntil"`
}

// Alerts lists the queue and the active alert.
func (c *Client) Alerts(ctx context.Context) (*AlertsResponse, error) {
	var resp AlertsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/alerts", nil, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Clear empties the queue and the active slot.
func (c *Client) Clear(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/api/alerts/clear", nil, nil, nil)
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	QueueDepth int    `json:"queueDepth"`
	Showing    bool   `json:"showing"`
	Checks     map[string]struct {
		Status  string `json:"status"`
		Latency string `json:"latency,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"checks"`
}

// Health checks server health. A degraded server answers 503 with a body,
// which is returned together with the error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var h HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return &h, &APIError{Status: resp.StatusCode, Message: h.Status}
	}
	return &h, nil
}
