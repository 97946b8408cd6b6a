// Package suggest looks up canonical titles for misspelled queries
// against a TMDB-style multi-search endpoint. The upstream is treated as
// best-effort: timeouts, transport errors and non-200 responses all
// resolve to "no suggestion" rather than an error.
package suggest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"filmgate/pkg/logx"
)

const (
	defaultBaseURL = "https://api.themoviedb.org/3"
	defaultTimeout = 5 * time.Second
)

type Config struct {
	APIKey  string
	BaseURL string        // empty means the public API
	Timeout time.Duration // 0 means default
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	log     logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type multiSearchResponse struct {
	Results []struct {
		Title         string `json:"title"`
		Name          string `json:"name"`
		OriginalTitle string `json:"original_title"`
	} `json:"results"`
}

// Suggest returns the canonical title for query, or "" when the upstream
// has nothing usable. Only a missing API key short-circuits locally.
func (c *Client) Suggest(ctx context.Context, query string) (string, error) {
	if c.apiKey == "" {
		return "", nil
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("query", query)
	q.Set("page", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/search/multi?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("title suggestion request failed", logx.Err(err))
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Debug("title suggestion upstream status",
			logx.Int("status", resp.StatusCode))
		return "", nil
	}

	var body multiSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.Debug("title suggestion decode failed", logx.Err(err))
		return "", nil
	}
	if len(body.Results) == 0 {
		return "", nil
	}
	first := body.Results[0]
	for _, title := range []string{first.Title, first.Name, first.OriginalTitle} {
		if title != "" {
			return title, nil
		}
	}
	return "", nil
}
