package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Decision struct {
	NeedsSearch bool   `json:"needsSearch"`
	SearchQuery string `json:"searchQuery"`
	Reasoning   string `json:"reasoning"`
}

type decisionPayload struct {
	NeedsSearch *bool  `json:"needsSearch"`
	SearchQuery string `json:"searchQuery"`
	Reasoning   string `json:"reasoning"`
}

func decodeDecision(raw string) (Decision, error) {
	jsonRaw := extractJSONBlock(stripCodeFences(raw))
	if jsonRaw == "" {
		return Decision{}, ErrUnparseableDecision
	}

	var payload decisionPayload
	if err := json.Unmarshal([]byte(jsonRaw), &payload); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnparseableDecision, err)
	}
	if payload.NeedsSearch == nil {
		return Decision{}, fmt.Errorf("%w: needsSearch is missing", ErrUnparseableDecision)
	}

	return Decision{
		NeedsSearch: *payload.NeedsSearch,
		SearchQuery: strings.TrimSpace(payload.SearchQuery),
		Reasoning:   strings.TrimSpace(payload.Reasoning),
	}, nil
}

// normalize enforces that a query is present exactly when a search is needed.
// An empty query is replaced by fallbackQuery; with no fallback the decision
// becomes a no-search one.
func (d Decision) normalize(fallbackQuery string) Decision {
	if !d.NeedsSearch {
		d.SearchQuery = ""
		return d
	}
	if d.SearchQuery == "" {
		d.SearchQuery = strings.TrimSpace(fallbackQuery)
	}
	if d.SearchQuery == "" {
		d.NeedsSearch = false
	}
	return d
}

func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.Contains(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func extractJSONBlock(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(raw[start : end+1])
}
