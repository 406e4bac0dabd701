package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPFeed queries an upstream metric provider over HTTP:
// GET {baseURL}?user_id={id}&date={YYYY-MM-DD} returning
// {"metrics": {"name": value, ...}}.
type HTTPFeed struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewHTTPFeed creates a named HTTP metric feed.
func NewHTTPFeed(name, baseURL string) *HTTPFeed {
	return &HTTPFeed{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the feed name used in logs and errors.
func (f *HTTPFeed) Name() string {
	return f.name
}

type feedResponse struct {
	Metrics map[string]decimal.Decimal `json:"metrics"`
}

// Metrics fetches the user's metric values for a date.
func (f *HTTPFeed) Metrics(ctx context.Context, userID string, date time.Time) (map[string]decimal.Decimal, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("date", date.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var body feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode feed response: %w", err)
	}

	return body.Metrics, nil
}
