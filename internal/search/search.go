// Package search holds the provider-neutral web search types shared by the
// Google and Brave clients and the decorators that wrap them.
package search

import (
	"context"
	"errors"
)

// MaxResults is the most results any provider returns for one query.
const MaxResults = 5

// ResultLimit resolves a configured result count. Unset or out-of-range
// values fall back to MaxResults.
func ResultLimit(configured int) int {
	if configured <= 0 || configured > MaxResults {
		return MaxResults
	}
	return configured
}

// ErrNotConfigured is returned when search credentials are absent.
var ErrNotConfigured = errors.New("web search is not configured")

type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Unconfigured is the provider used when no credentials are present. Every
// call fails closed with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Search(context.Context, string) ([]Result, error) {
	return nil, ErrNotConfigured
}
