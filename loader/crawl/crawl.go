package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultBaseURL = "https://api.firecrawl.dev/v2"

	maxAttempts    = 5
	baseRetryDelay = 800 * time.Millisecond
)

// Metadata carries the page identity from the crawl feed. SourceURL wins
// over OgURL when both are present.
type Metadata struct {
	SourceURL string `json:"sourceURL"`
	OgURL     string `json:"ogUrl"`
	Title     string `json:"title"`
}

func (m Metadata) URL() string {
	if m.SourceURL != "" {
		return m.SourceURL
	}
	return m.OgURL
}

// Page is one crawled document in a job's result feed.
type Page struct {
	Markdown string   `json:"markdown"`
	Metadata Metadata `json:"metadata"`
}

// Status is one page of the job status feed.
type Status struct {
	Data      []Page  `json:"data"`
	Status    string  `json:"status"`
	Next      *string `json:"next"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
}

// Client talks to the Firecrawl API.
type Client struct {
	baseURL   string
	apiKey    string
	hc        *http.Client
	logger    *slog.Logger
	pollDelay time.Duration
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		hc:        &http.Client{Timeout: 90 * time.Second},
		logger:    slog.Default(),
		pollDelay: 2 * time.Second,
	}
}

type startRequest struct {
	URL               string   `json:"url"`
	Limit             int      `json:"limit,omitempty"`
	MaxDiscoveryDepth int      `json:"maxDiscoveryDepth,omitempty"`
	ExcludePaths      []string `json:"excludePaths,omitempty"`
}

type startResponse struct {
	ID string `json:"id"`
}

// Start kicks off a crawl from seedURL and returns the job id.
func (c *Client) Start(ctx context.Context, seedURL string, limit, depth int, excludePaths []string) (string, error) {
	body, err := json.Marshal(startRequest{
		URL:               seedURL,
		Limit:             limit,
		MaxDiscoveryDepth: depth,
		ExcludePaths:      excludePaths,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal crawl request: %w", err)
	}

	payload, err := c.do(ctx, http.MethodPost, c.baseURL+"/crawl", body)
	if err != nil {
		return "", err
	}

	var resp startResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal crawl response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("crawl start returned no job id")
	}
	return resp.ID, nil
}

// FetchAll accumulates every result page of a crawl job. It follows the
// next cursor when present, and when the job is still running without a
// cursor it waits and re-polls the status endpoint.
func (c *Client) FetchAll(ctx context.Context, jobID string) ([]Page, error) {
	statusURL := fmt.Sprintf("%s/crawl/%s", c.baseURL, jobID)

	var all []Page
	next := statusURL
	for next != "" {
		payload, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}

		var st Status
		if err := json.Unmarshal(payload, &st); err != nil {
			return nil, fmt.Errorf("failed to unmarshal crawl status: %w", err)
		}

		all = append(all, st.Data...)
		if st.Completed > 0 && st.Total > 0 {
			log.Printf("[crawl] %d/%d • accumulated %d", st.Completed, st.Total, len(all))
		}

		if st.Next != nil && *st.Next != "" {
			next = *st.Next
			continue
		}
		if st.Status != "completed" {
			select {
			case <-time.After(c.pollDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			next = statusURL
			continue
		}
		next = ""
	}
	return all, nil
}

// do issues one request with bounded exponential retry on 429/5xx.
func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay << (attempt - 1)
			c.logger.Warn("retrying crawl request", "url", url, "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("crawl request failed: %w", err)
			continue
		}

		payload, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response: %w", readErr)
			}
			return payload, nil
		}

		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			lastErr = fmt.Errorf("crawl api error: status %d", resp.StatusCode)
		default:
			return nil, fmt.Errorf("crawl api error: status %d, body: %s", resp.StatusCode, string(payload))
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}
