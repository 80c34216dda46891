package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// QueueStats is the broker's view of one queue.
type QueueStats struct {
	Messages  int `json:"messages"`
	Consumers int `json:"consumers"`
}

// Client talks to the broker's admin HTTP API.
type Client struct {
	baseURL string
	queue   string
	token   string
	client  *http.Client
}

func NewClient(baseURL, queue, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		queue:   queue,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetQueueStats fetches the current depth and consumer count of the
// configured queue.
func (c *Client) GetQueueStats(ctx context.Context) (QueueStats, error) {
	endpoint := fmt.Sprintf("%s/api/queues/%s", c.baseURL, url.PathEscape(c.queue))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, http.NoBody)
	if err != nil {
		return QueueStats{}, err
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return QueueStats{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return QueueStats{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var stats QueueStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return QueueStats{}, err
	}

	if stats.Messages < 0 {
		return QueueStats{}, fmt.Errorf("broker reported negative queue depth: %d", stats.Messages)
	}

	return stats, nil
}
