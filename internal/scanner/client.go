package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the kiosk backend API on behalf of one station.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	token string
}

// NewClient creates a backend client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Register obtains a station token from the backend. Must be called
// before Submit.
func (c *Client) Register(ctx context.Context, stationID string) error {
	body, _ := json.Marshal(map[string]string{"station_id": stationID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v1/stations/register", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("station register: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("station register failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("station register returned %d: %s", resp.StatusCode, string(raw))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("station register: decode response failed: %w", err)
	}
	c.token = out.AccessToken
	return nil
}

// Submit posts one decoded payload to the scan endpoint. Rejections
// (bad format, unknown student, scan in flight) come back as errors
// carrying the backend's message; the station just logs them and keeps
// ticking.
func (c *Client) Submit(ctx context.Context, payload string) error {
	body, _ := json.Marshal(map[string]string{"payload": payload})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v1/scans", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var out struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			return fmt.Errorf("scan rejected (%d): %s", resp.StatusCode, out.Error)
		}
		return fmt.Errorf("scan rejected (%d)", resp.StatusCode)
	}
	return nil
}
