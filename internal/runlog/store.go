// Package runlog records finished chat runs for later inspection. Nothing in
// the request path reads it back.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"searchchat/backend/internal/assistant"
)

type Run struct {
	ID           string   `json:"id"`
	Model        string   `json:"model"`
	MessageChars int      `json:"messageChars"`
	Path         string   `json:"path"`
	Queries      []string `json:"queries"`
	ResultCount  int      `json:"resultCount"`
	Outcome      string   `json:"outcome"`
	Trace        Trace    `json:"trace"`
	ElapsedMS    int64    `json:"elapsedMs"`
	CreatedAt    string   `json:"createdAt"`
}

// Store persists runs. A nil *sql.DB makes every call a no-op so the run
// log stays optional.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

func (s Store) Enabled() bool {
	return s.db != nil
}

// NewRun builds a Run from an orchestration summary.
func NewRun(req assistant.Request, summary assistant.Summary, trace Trace) Run {
	return Run{
		Model:        req.Model,
		MessageChars: len([]rune(req.Message)),
		Path:         string(summary.Path),
		Queries:      summary.Queries,
		ResultCount:  summary.ResultCount,
		Outcome:      string(summary.Outcome),
		Trace:        trace,
		ElapsedMS:    summary.Elapsed.Milliseconds(),
	}
}

func (s Store) Record(ctx context.Context, run Run) (string, error) {
	if s.db == nil {
		return "", nil
	}

	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}
	queries := run.Queries
	if queries == nil {
		queries = []string{}
	}
	encodedQueries, err := json.Marshal(queries)
	if err != nil {
		return "", fmt.Errorf("encode run queries: %w", err)
	}
	encodedTrace, err := encodeTrace(run.Trace)
	if err != nil {
		return "", fmt.Errorf("encode run trace: %w", err)
	}

	query := `
INSERT INTO runs (id, model, message_chars, path, queries, result_count, outcome, trace, elapsed_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	if _, err := s.db.ExecContext(ctx, query,
		id,
		run.Model,
		run.MessageChars,
		run.Path,
		string(encodedQueries),
		run.ResultCount,
		run.Outcome,
		encodedTrace,
		run.ElapsedMS,
	); err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id, nil
}

func (s Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, model, message_chars, path, queries, result_count, outcome, trace, elapsed_ms, created_at
FROM runs
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var (
			run     Run
			queries string
			trace   string
		)
		if err := rows.Scan(
			&run.ID,
			&run.Model,
			&run.MessageChars,
			&run.Path,
			&queries,
			&run.ResultCount,
			&run.Outcome,
			&trace,
			&run.ElapsedMS,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(queries), &run.Queries); err != nil {
			run.Queries = nil
		}
		if decoded, ok := decodeTrace(trace); ok {
			run.Trace = decoded
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
