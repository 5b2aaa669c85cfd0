package governor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/worknuggets/extractor/internal/extract"
)

// Client addresses a remote governor over its POST command protocol.
// All callers resolve to the same logical instance, so independent
// invocations share one serialized quota state.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient builds a Client for the governor at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) command(ctx context.Context, cmd string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", cmd, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+cmd, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", cmd, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("governor %s: %w", cmd, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("governor %s failed: %d - %s", cmd, resp.StatusCode, string(text))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", cmd, err)
	}
	return nil
}

// Acquire requests a slot from the remote governor.
func (c *Client) Acquire(ctx context.Context, reserveSeconds, maxConcurrent, maxDailySeconds int) (extract.AcquireResult, error) {
	var out extract.AcquireResult
	payload := map[string]int{
		"reserveSeconds":  reserveSeconds,
		"maxConcurrent":   maxConcurrent,
		"maxDailySeconds": maxDailySeconds,
	}
	if err := c.command(ctx, "acquire", payload, &out); err != nil {
		return extract.AcquireResult{}, err
	}
	return out, nil
}

// Release returns a slot.
func (c *Client) Release(ctx context.Context) (int, error) {
	var out struct {
		Running int `json:"running"`
	}
	if err := c.command(ctx, "release", map[string]int{}, &out); err != nil {
		return 0, err
	}
	return out.Running, nil
}

// AddSeconds reports measured usage.
func (c *Client) AddSeconds(ctx context.Context, seconds int) (int, error) {
	var out struct {
		DailySeconds int `json:"dailySeconds"`
	}
	if err := c.command(ctx, "addSeconds", map[string]int{"seconds": seconds}, &out); err != nil {
		return 0, err
	}
	return out.DailySeconds, nil
}

// Status fetches a snapshot.
func (c *Client) Status(ctx context.Context) (extract.QuotaSnapshot, error) {
	var out extract.QuotaSnapshot
	if err := c.command(ctx, "status", map[string]int{}, &out); err != nil {
		return extract.QuotaSnapshot{}, err
	}
	return out, nil
}
