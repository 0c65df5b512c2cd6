// Package nodeclient fetches status reports from per-node agents.
package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

// Client polls node agents over HTTP. It implements cluster.NodeFetcher.
type Client struct {
	port   int
	secret string
	client *http.Client
}

// New builds a client for agents listening on the given port. The shared
// secret is sent with every request; per-call deadlines come from the
// caller's context.
func New(port int, secret string) *Client {
	return &Client{port: port, secret: secret, client: &http.Client{}}
}

// FetchNodeStatus requests /get-status from the agent at addr. Any
// transport, authentication or decode failure is returned as an error and
// leaves the caller's previous report untouched.
func (c *Client) FetchNodeStatus(ctx context.Context, addr string) (*models.NodeStatus, error) {
	body, err := json.Marshal(map[string]string{"passwd": c.secret})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("http://%s:%d/get-status", addr, c.port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent %s: status %d", addr, resp.StatusCode)
	}

	var status models.NodeStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("agent %s: %w", addr, err)
	}
	if status.Hostname == "" {
		return nil, fmt.Errorf("agent %s: empty hostname in report", addr)
	}
	return &status, nil
}
