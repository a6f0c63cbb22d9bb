package controlapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is the CLI-side counterpart to Server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client talking to a daemon's control API at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

// ListDestinations fetches the current destination statuses.
func (c *Client) ListDestinations() ([]DestinationStatus, error) {
	resp, err := c.http.Get(c.baseURL + "/destinations")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("control API returned status %d", resp.StatusCode)
	}
	var out []DestinationStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetDestinationRunning starts or stops the named destination.
func (c *Client) SetDestinationRunning(name string, start bool) error {
	action := "stop"
	if start {
		action = "start"
	}
	resp, err := c.http.Post(fmt.Sprintf("%s/destinations/%s/%s", c.baseURL, name, action), "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("control API returned status %d", resp.StatusCode)
	}
	return nil
}

// Stats fetches the task store's waiting/running counts.
func (c *Client) Stats() (waiting, running int, err error) {
	resp, err := c.http.Get(c.baseURL + "/stats")
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	var out struct {
		Waiting int `json:"waiting"`
		Running int `json:"running"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, err
	}
	return out.Waiting, out.Running, nil
}
