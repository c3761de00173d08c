// Package ipgeo resolves an approximate position from the caller's public IP.
package ipgeo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aviv1ron1/the-commuter-il/internal/geo"
)

const DefaultURL = "https://ipapi.co/json/"

type Client struct {
	httpClient *http.Client
	url        string
}

func NewClient(url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        url,
	}
}

type lookupResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Error     bool     `json:"error"`
	Reason    string   `json:"reason"`
}

func (c *Client) Name() string {
	return "ip"
}

// Locate looks up the position of the current public IP address.
func (c *Client) Locate(ctx context.Context) (geo.Coordinate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "commuter/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Coordinate{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return geo.Coordinate{}, fmt.Errorf("decoding response: %w", err)
	}
	if result.Error {
		return geo.Coordinate{}, fmt.Errorf("lookup failed: %s", result.Reason)
	}
	if result.Latitude == nil || result.Longitude == nil {
		return geo.Coordinate{}, errors.New("response has no coordinates")
	}

	coord := geo.Coordinate{Lat: *result.Latitude, Lon: *result.Longitude}
	if !coord.Valid() {
		return geo.Coordinate{}, fmt.Errorf("coordinate out of range: %s", coord)
	}
	return coord, nil
}
