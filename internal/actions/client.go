package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"job-log-relay/internal/config"
)

// Client reads job status and logs from a GitHub-Actions-style jobs API.
// Both calls are bounded by the HTTP client timeout so a hung request
// surfaces as a transient failure instead of stalling the poll loop.
type Client struct {
	base       string
	repo       string
	token      string
	httpClient *http.Client
}

// New builds a client from config. The timeout should be on the order of the
// agent's poll interval.
func New(cfg config.Config, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:       cfg.ActionsAPIBase,
		repo:       cfg.ActionsRepo,
		token:      cfg.ActionsToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type jobStatusResponse struct {
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
}

// GetStatus returns the raw status string for the job. When the API reports
// the job completed, the conclusion (succeeded/failed/cancelled) is returned
// if present so callers see the most specific terminal state.
func (c *Client) GetStatus(ctx context.Context, jobID string) (string, error) {
	var body jobStatusResponse
	if err := c.getJSON(ctx, c.jobURL(jobID), &body); err != nil {
		return "", err
	}
	if body.Status == "completed" && body.Conclusion != "" {
		return body.Conclusion, nil
	}
	return body.Status, nil
}

// GetLog returns the job's full cumulative log content to date. The bytes are
// returned exactly as served; the agent signs and pushes them unmodified.
func (c *Client) GetLog(ctx context.Context, jobID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL(jobID)+"/logs", nil)
	if err != nil {
		return nil, fmt.Errorf("build log request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch log: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch log: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read log body: %w", err)
	}
	return data, nil
}

func (c *Client) jobURL(jobID string) string {
	return fmt.Sprintf("%s/repos/%s/actions/jobs/%s", c.base, c.repo, jobID)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch status: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode status response: %w", err)
	}
	return nil
}
