package rail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const DefaultBaseURL = "https://rail-api.rail.co.il/rjpa/api/v1"

// Client is an Israel Railways timetable API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// NewClient creates a new rail client. Failed requests are retried up to
// maxRetries times with exponential backoff.
func NewClient(baseURL, apiKey string, timeout time.Duration, maxRetries int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		maxRetries: uint64(maxRetries),
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Search returns the travels between two station IDs starting from the time of day of t.
func (c *Client) Search(ctx context.Context, fromID, toID int, t time.Time) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("fromStation", strconv.Itoa(fromID))
	params.Set("toStation", strconv.Itoa(toID))
	params.Set("date", t.Format("2006-01-02"))
	params.Set("hour", t.Format("15:04"))
	params.Set("scheduleType", "1")
	params.Set("systemType", "2")
	params.Set("languageId", "English")

	u := fmt.Sprintf("%s/timetable/searchTrainLuzForDateTime?%s", c.baseURL, params.Encode())

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)

	return backoff.RetryWithData(func() (*SearchResponse, error) {
		return c.search(ctx, u)
	}, b)
}

func (c *Client) search(ctx context.Context, u string) (*SearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "commuter/1.0")
	if c.apiKey != "" {
		req.Header.Set("ocp-apim-subscription-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var result SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decoding response: %w", err))
	}

	return &result, nil
}
