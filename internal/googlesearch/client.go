// Package googlesearch implements search.Provider on top of the Google
// Programmable Search (Custom Search JSON) API.
package googlesearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"searchchat/backend/internal/config"
	"searchchat/backend/internal/search"
)

var ErrMissingCredentials = fmt.Errorf("google search api key or engine id is not configured: %w", search.ErrNotConfigured)

type Client struct {
	apiKey   string
	engineID string
	endpoint string
	limit    int
	timeout  time.Duration

	// The generated service is built on first use and shared afterwards.
	svcOnce sync.Once
	svc     *customsearch.Service
	svcErr  error
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		apiKey:   strings.TrimSpace(cfg.GoogleAPIKey),
		engineID: strings.TrimSpace(cfg.GoogleCSEID),
		endpoint: strings.TrimSpace(cfg.GoogleSearchBaseURL),
		limit:    search.ResultLimit(cfg.SearchResultLimit),
		timeout:  cfg.UpstreamTimeout,
	}
}

func (c *Client) Search(ctx context.Context, query string) ([]search.Result, error) {
	if c.apiKey == "" || c.engineID == "" {
		return nil, ErrMissingCredentials
	}

	trimmedQuery := strings.TrimSpace(query)
	if trimmedQuery == "" {
		return nil, nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	svc, err := c.service()
	if err != nil {
		return nil, err
	}

	resp, err := svc.Cse.List().
		Cx(c.engineID).
		Q(trimmedQuery).
		Num(int64(c.limit)).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("google custom search returned %d: %w", apiErr.Code, err)
		}
		return nil, fmt.Errorf("google custom search: %w", err)
	}

	results := make([]search.Result, 0, len(resp.Items))
	seen := make(map[string]struct{}, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil {
			continue
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		if _, exists := seen[link]; exists {
			continue
		}
		seen[link] = struct{}{}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = link
		}
		results = append(results, search.Result{
			Title:   title,
			Link:    link,
			Snippet: strings.TrimSpace(item.Snippet),
		})
		if len(results) >= c.limit {
			break
		}
	}
	return results, nil
}

func (c *Client) service() (*customsearch.Service, error) {
	c.svcOnce.Do(func() {
		opts := []option.ClientOption{option.WithAPIKey(c.apiKey)}
		if c.endpoint != "" {
			opts = append(opts, option.WithEndpoint(strings.TrimRight(c.endpoint, "/")+"/"))
		}
		c.svc, c.svcErr = customsearch.NewService(context.Background(), opts...)
		if c.svcErr != nil {
			c.svcErr = fmt.Errorf("create custom search service: %w", c.svcErr)
		}
	})
	return c.svc, c.svcErr
}
