package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPClient makes REST calls to the daemon.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL
// (e.g. "http://127.0.0.1:8765").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// v1Envelope is the wrapper on every /api/v1 response.
type v1Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// v1Page is the pagination shape nested inside Data.
type v1Page struct {
	Items      json.RawMessage `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
}

// GetActiveSessions fetches up to limit active sessions.
func (c *HTTPClient) GetActiveSessions(limit int) ([]*Session, error) {
	q := url.Values{}
	q.Set("active_only", "true")
	q.Set("limit", strconv.Itoa(limit))
	var out []*Session
	if err := c.get("/api/sessions?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSessionEvents fetches up to limit events for one session, newest
// first as served by the daemon.
func (c *HTTPClient) GetSessionEvents(sessionID string, limit int) ([]*Event, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(limit))
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/events?" + q.Encode()

	var env v1Envelope
	if err := c.get(path, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("GET %s: %s", path, env.Error)
	}
	var page v1Page
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return nil, err
	}
	var events []*Event
	if err := json.Unmarshal(page.Items, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetMetrics fetches the trailing-window summary.
func (c *HTTPClient) GetMetrics(hours int) (*SummaryMetrics, error) {
	var m SummaryMetrics
	if err := c.get(fmt.Sprintf("/api/metrics/summary?hours=%d", hours), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetHealth fetches /health.
func (c *HTTPClient) GetHealth() (*Health, error) {
	var h Health
	if err := c.get("/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *HTTPClient) get(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
