package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"searchchat/backend/internal/search"
)

const DefaultMaxRetries = 1

type Options struct {
	// SliceSize is the rune length of each simulated streaming piece.
	SliceSize int
	// MaxRetries bounds adequacy-driven regenerations. Zero disables them.
	MaxRetries int
	Now        func() time.Time
}

func DefaultOptions() Options {
	return Options{SliceSize: DefaultSliceSize, MaxRetries: DefaultMaxRetries}
}

// Path describes which branch produced the answer.
type Path string

const (
	PathDirect   Path = "direct"
	PathSearched Path = "searched"
	PathRetried  Path = "retried"
)

type Outcome string

const (
	OutcomeCompleted       Outcome = "completed"
	OutcomeCompletionError Outcome = "completion_error"
	OutcomeStreamError     Outcome = "stream_error"
	OutcomeSinkError       Outcome = "sink_error"
)

// Summary describes one finished Run. It is informational only.
type Summary struct {
	Path        Path
	Queries     []string
	ResultCount int
	Adequate    *bool
	Outcome     Outcome
	Elapsed     time.Duration
}

type state int

const (
	stateAssessingNeed state = iota
	stateSearchingInitial
	stateGeneratingDraft
	stateAssessingAdequacy
	stateSearchingRetry
	stateAnswering
	stateEmittingDraft
	stateDone
)

type Orchestrator struct {
	completer Completer
	searcher  Searcher
	need      NeedAdvisor
	adequacy  AdequacyAdvisor
	opts      Options
	logger    *zap.Logger
}

func NewOrchestrator(completer Completer, searcher Searcher, opts Options, logger *zap.Logger) *Orchestrator {
	if searcher == nil {
		searcher = search.Unconfigured{}
	}
	if opts.SliceSize < 1 {
		opts.SliceSize = DefaultSliceSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		completer: completer,
		searcher:  searcher,
		need:      NewNeedAdvisor(completer),
		adequacy:  NewAdequacyAdvisor(completer),
		opts:      opts,
		logger:    logger,
	}
}

// Handle answers one message, writing every event to sink. It returns a
// *CompletionError without emitting done when the backend fails before any
// content was sent, and the sink's error when the sink stops accepting events.
func (o *Orchestrator) Handle(ctx context.Context, req Request, sink EventSink) error {
	_, err := o.Run(ctx, req, sink)
	return err
}

// Run is Handle plus a summary of what happened.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink EventSink) (Summary, error) {
	if err := req.Validate(); err != nil {
		return Summary{}, err
	}
	if o.completer == nil {
		return Summary{}, errors.New("orchestrator has no completer")
	}

	r := &run{
		orchestrator: o,
		req:          req,
		sink:         sink,
		dates:        NewDateContext(o.opts.Now()),
		budget:       o.opts.MaxRetries,
		startedAt:    time.Now(),
	}
	err := r.loop(ctx)
	summary := r.summary(err)

	fields := []zap.Field{
		zap.String("model", req.Model),
		zap.String("path", string(summary.Path)),
		zap.Int("searches", len(summary.Queries)),
		zap.Int("results", summary.ResultCount),
		zap.String("outcome", string(summary.Outcome)),
		zap.Int64("elapsed_ms", summary.Elapsed.Milliseconds()),
	}
	if err != nil {
		o.logger.Warn("chat orchestration failed", append(fields, zap.Error(err))...)
	} else {
		o.logger.Info("chat orchestration completed", fields...)
	}
	return summary, err
}

type run struct {
	orchestrator *Orchestrator
	req          Request
	sink         EventSink
	dates        DateContext
	budget       int
	startedAt    time.Time

	need        Decision
	retryQuery  string
	results     []search.Result
	draft       string
	retried     bool
	searched    bool
	adequate    *bool
	queries     []string
	resultCount int
	contentSent bool
	outcome     Outcome
}

func (r *run) loop(ctx context.Context) error {
	o := r.orchestrator
	current := stateAssessingNeed

	for current != stateDone {
		switch current {
		case stateAssessingNeed:
			if err := r.emit(Progress(PhaseReasoning, "Analyzing...")); err != nil {
				return err
			}
			r.need = o.need.Assess(ctx, r.req.Message, r.req.Model, r.dates)
			if r.need.NeedsSearch && r.need.SearchQuery != "" {
				current = stateSearchingInitial
			} else {
				current = stateGeneratingDraft
			}

		case stateSearchingInitial:
			if err := r.search(ctx, r.need.SearchQuery); err != nil {
				return err
			}
			r.searched = true
			current = stateAnswering

		case stateGeneratingDraft:
			if err := r.emit(Progress(PhaseThinking, "Generating...")); err != nil {
				return err
			}
			turns := buildTurns(buildAnswerSystemPrompt(r.dates, nil), r.req.History, r.req.Message)
			draft, err := o.completer.Complete(ctx, r.req.Model, turns)
			if err != nil {
				r.outcome = OutcomeCompletionError
				return &CompletionError{Stage: "draft", Err: err}
			}
			r.draft = draft
			current = stateAssessingAdequacy

		case stateAssessingAdequacy:
			if err := r.emit(Progress(PhaseReasoning, "Verifying...")); err != nil {
				return err
			}
			verdict := o.adequacy.Assess(ctx, r.req.Message, r.draft, r.req.Model, r.dates)
			adequate := !verdict.NeedsSearch
			r.adequate = &adequate
			switch {
			case adequate:
				current = stateEmittingDraft
			case r.budget > 0:
				r.budget--
				r.retryQuery = firstNonEmpty(verdict.SearchQuery, r.need.SearchQuery, r.req.Message)
				current = stateSearchingRetry
			default:
				current = stateEmittingDraft
			}

		case stateSearchingRetry:
			if err := r.search(ctx, r.retryQuery); err != nil {
				return err
			}
			r.retried = true
			current = stateAnswering

		case stateAnswering:
			if err := r.stream(ctx); err != nil {
				return err
			}
			if r.outcome == OutcomeStreamError {
				return nil
			}
			current = stateDone

		case stateEmittingDraft:
			for _, piece := range sliceRunes(r.draft, o.opts.SliceSize) {
				if err := r.emit(Content(piece)); err != nil {
					return err
				}
			}
			current = stateDone
		}
	}

	if err := r.emit(Done()); err != nil {
		return err
	}
	r.outcome = OutcomeCompleted
	return nil
}

func (r *run) search(ctx context.Context, query string) error {
	o := r.orchestrator
	if err := r.emit(Progress(PhaseSearch, "Searching for: "+query)); err != nil {
		return err
	}
	r.queries = append(r.queries, query)

	results, err := o.searcher.Search(ctx, query)
	if err != nil {
		o.logger.Warn("web search failed", zap.String("query", query), zap.Error(err))
		r.results = nil
		return r.emit(Progress(PhaseError, searchFailureMessage(err)))
	}

	r.results = results
	r.resultCount += len(results)
	switch len(results) {
	case 0:
		return r.emit(Progress(PhaseSearch, "No results found"))
	case 1:
		return r.emit(Progress(PhaseSearch, "Found 1 result"))
	default:
		return r.emit(Progress(PhaseSearch, fmt.Sprintf("Found %d results", len(results))))
	}
}

// stream forwards the evidence-backed answer fragment by fragment. A backend
// failure after content started is reported in-band and closes the stream.
func (r *run) stream(ctx context.Context) error {
	o := r.orchestrator
	turns := buildTurns(buildAnswerSystemPrompt(r.dates, r.results), r.req.History, r.req.Message)

	var sinkErr error
	err := o.completer.Stream(ctx, r.req.Model, turns, func(delta string) error {
		if delta == "" {
			return nil
		}
		if emitErr := r.emit(Content(delta)); emitErr != nil {
			sinkErr = emitErr
			return emitErr
		}
		return nil
	})
	if sinkErr != nil {
		return sinkErr
	}
	if err == nil {
		return nil
	}
	if !r.contentSent {
		r.outcome = OutcomeCompletionError
		return &CompletionError{Stage: "answer", Err: err}
	}

	o.logger.Warn("answer stream interrupted", zap.Error(err))
	r.outcome = OutcomeStreamError
	if emitErr := r.emit(Failure(UserMessage(err))); emitErr != nil {
		return emitErr
	}
	if emitErr := r.emit(Done()); emitErr != nil {
		return emitErr
	}
	return nil
}

func (r *run) emit(event Event) error {
	if err := r.sink.Emit(event); err != nil {
		r.outcome = OutcomeSinkError
		return fmt.Errorf("emit %s event: %w", event.Kind, err)
	}
	if event.Kind == KindContent {
		r.contentSent = true
	}
	return nil
}

func (r *run) summary(err error) Summary {
	path := PathDirect
	switch {
	case r.retried:
		path = PathRetried
	case r.searched:
		path = PathSearched
	}
	outcome := r.outcome
	if outcome == "" && err != nil {
		outcome = OutcomeSinkError
	}
	return Summary{
		Path:        path,
		Queries:     append([]string(nil), r.queries...),
		ResultCount: r.resultCount,
		Adequate:    r.adequate,
		Outcome:     outcome,
		Elapsed:     time.Since(r.startedAt),
	}
}

func searchFailureMessage(err error) string {
	if errors.Is(err, search.ErrNotConfigured) {
		return "Web search is not configured, answering without search results"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Web search timed out, answering without search results"
	}
	return "Web search failed, answering without search results"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
