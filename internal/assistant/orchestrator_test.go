package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"searchchat/backend/internal/search"
)

var fixedNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

func newTestOrchestrator(completer Completer, searcher Searcher, opts Options) *Orchestrator {
	if opts.SliceSize == 0 {
		opts.SliceSize = DefaultSliceSize
	}
	opts.Now = func() time.Time { return fixedNow }
	return NewOrchestrator(completer, searcher, opts, nil)
}

func assertSingleDoneLast(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events)
	for i, event := range events {
		if event.Kind == KindDone && i != len(events)-1 {
			t.Fatalf("done emitted at position %d of %d", i, len(events))
		}
	}
	require.Equal(t, KindDone, events[len(events)-1].Kind)
}

func countPhase(events []Event, phase Phase) int {
	count := 0
	for _, event := range events {
		if event.Kind == KindProgress && event.Phase == phase {
			count++
		}
	}
	return count
}

func TestHandleAnswersTimelessQuestionFromDraft(t *testing.T) {
	completer := &completerStub{
		needReply:     `{"needsSearch": false, "searchQuery": "", "reasoning": "arithmetic"}`,
		draft:         "4",
		adequacyReply: `{"needsSearch": false, "searchQuery": "", "reasoning": "complete"}`,
	}
	searcher := &searcherStub{}
	sink := &Recorder{}

	err := newTestOrchestrator(completer, searcher, DefaultOptions()).
		Handle(context.Background(), Request{Message: "What is 2+2?", Model: "llama3.2"}, sink)
	require.NoError(t, err)

	want := []Event{
		Progress(PhaseReasoning, "Analyzing..."),
		Progress(PhaseThinking, "Generating..."),
		Progress(PhaseReasoning, "Verifying..."),
		Content("4"),
		Done(),
	}
	if diff := cmp.Diff(want, sink.Events()); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, countPhase(sink.Events(), PhaseSearch))
	assert.Empty(t, searcher.queries)
	assert.Equal(t, 0, completer.streamCalls)
}

func TestHandleSearchesWhenNeedAdvisorAsks(t *testing.T) {
	completer := &completerStub{
		needReply: "```json\n{\"needsSearch\": true, \"searchQuery\": \"today's top news\", \"reasoning\": \"current events\"}\n```",
		chunks:    []string{"Top ", "story [1]", "."},
	}
	searcher := &searcherStub{results: []search.Result{
		{Title: "Morning briefing", Link: "https://news.example.com/a", Snippet: "Markets rally."},
		{Title: "Evening wrap", Link: "https://news.example.com/b", Snippet: "Storm warning."},
	}}
	sink := &Recorder{}

	err := newTestOrchestrator(completer, searcher, DefaultOptions()).
		Handle(context.Background(), Request{Message: "What's today's top news?", Model: "llama3.2"}, sink)
	require.NoError(t, err)

	want := []Event{
		Progress(PhaseReasoning, "Analyzing..."),
		Progress(PhaseSearch, "Searching for: today's top news"),
		Progress(PhaseSearch, "Found 2 results"),
		Content("Top "),
		Content("story [1]"),
		Content("."),
		Done(),
	}
	if diff := cmp.Diff(want, sink.Events()); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}

	assert.Equal(t, 0, completer.adequacyCalls)
	assert.Equal(t, 0, completer.draftCalls)
	assert.Equal(t, []string{"today's top news"}, searcher.queries)

	require.NotEmpty(t, completer.streamTurns)
	systemPrompt := completer.streamTurns[0].Content
	assert.Contains(t, systemPrompt, "[1] Morning briefing")
	assert.Contains(t, systemPrompt, "URL: https://news.example.com/b")
	assert.Contains(t, systemPrompt, "Cite the sources")
	assert.Contains(t, systemPrompt, "2026-03-14")
}

func TestHandleRetriesOnceWhenDraftIsInadequate(t *testing.T) {
	completer := &completerStub{
		needReply:     `{"needsSearch": false, "searchQuery": "", "reasoning": "looks timeless"}`,
		draft:         "As of my training data I cannot know the current price.",
		adequacyReply: `{"needsSearch": true, "searchQuery": "X", "reasoning": "hedges about currentness"}`,
		chunks:        []string{"Regenerated ", "answer"},
	}
	searcher := &searcherStub{results: []search.Result{{Title: "Price", Link: "https://example.com/price", Snippet: "42"}}}
	sink := &Recorder{}

	summary, err := newTestOrchestrator(completer, searcher, DefaultOptions()).
		Run(context.Background(), Request{Message: "What does X cost?", Model: "llama3.2"}, sink)
	require.NoError(t, err)

	want := []Event{
		Progress(PhaseReasoning, "Analyzing..."),
		Progress(PhaseThinking, "Generating..."),
		Progress(PhaseReasoning, "Verifying..."),
		Progress(PhaseSearch, "Searching for: X"),
		Progress(PhaseSearch, "Found 1 result"),
		Content("Regenerated "),
		Content("answer"),
		Done(),
	}
	if diff := cmp.Diff(want, sink.Events()); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}

	assert.Equal(t, 1, completer.adequacyCalls, "regenerated answer must not be re-checked")
	assert.Equal(t, 1, completer.streamCalls)
	assert.Equal(t, "Regenerated answer", sink.Content())
	assert.Equal(t, PathRetried, summary.Path)
	assert.Equal(t, []string{"X"}, summary.Queries)
	require.NotNil(t, summary.Adequate)
	assert.False(t, *summary.Adequate)
}

func TestHandleContinuesWhenSearchFails(t *testing.T) {
	completer := &completerStub{
		needReply: `{"needsSearch": true, "searchQuery": "weather in Oslo", "reasoning": "current"}`,
		chunks:    []string{"I could not look that up, ", "but usually it is cold."},
	}
	searcher := &searcherStub{err: errors.New("dial tcp: connection refused")}
	sink := &Recorder{}

	err := newTestOrchestrator(completer, searcher, DefaultOptions()).
		Handle(context.Background(), Request{Message: "Weather in Oslo today?", Model: "llama3.2"}, sink)
	require.NoError(t, err)

	events := sink.Events()
	assertSingleDoneLast(t, events)
	require.Equal(t, 1, countPhase(events, PhaseError))
	assert.Equal(t, Progress(PhaseError, "Web search failed, answering without search results"), events[2])
	assert.Equal(t, "I could not look that up, but usually it is cold.", sink.Content())
	assert.NotContains(t, completer.streamTurns[0].Content, "Web search results")
}

func TestHandleReportsUnconfiguredSearch(t *testing.T) {
	completer := &completerStub{
		needReply: `{"needsSearch": true, "searchQuery": "latest go release"}`,
		chunks:    []string{"ok"},
	}
	sink := &Recorder{}

	err := newTestOrchestrator(completer, nil, DefaultOptions()).
		Handle(context.Background(), Request{Message: "latest go release?", Model: "m"}, sink)
	require.NoError(t, err)
	assert.Contains(t, sink.Events(), Progress(PhaseError, "Web search is not configured, answering without search results"))
}

func TestHandleReportsZeroResults(t *testing.T) {
	completer := &completerStub{
		needReply: `{"needsSearch": true, "searchQuery": "zzqx"}`,
		chunks:    []string{"nothing"},
	}
	sink := &Recorder{}

	err := newTestOrchestrator(completer, &searcherStub{}, DefaultOptions()).
		Handle(context.Background(), Request{Message: "zzqx?", Model: "m"}, sink)
	require.NoError(t, err)
	assert.Contains(t, sink.Events(), Progress(PhaseSearch, "No results found"))
}

func TestHandleEmitsDraftWhenRetryBudgetIsExhausted(t *testing.T) {
	draft := "I am not sure about this year's results."
	completer := &completerStub{
		needReply:     `{"needsSearch": false}`,
		draft:         draft,
		adequacyReply: `{"needsSearch": true, "searchQuery": "results"}`,
	}
	searcher := &searcherStub{}
	sink := &Recorder{}

	err := newTestOrchestrator(completer, searcher, Options{SliceSize: 7, MaxRetries: 0}).
		Handle(context.Background(), Request{Message: "Who won?", Model: "m"}, sink)
	require.NoError(t, err)

	assert.Equal(t, draft, sink.Content())
	assert.Empty(t, searcher.queries)
	assert.Equal(t, 0, completer.streamCalls)
	assertSingleDoneLast(t, sink.Events())
}

func TestHandleRetryQueryFallsBackToMessage(t *testing.T) {
	completer := &completerStub{
		needReply:     `{"needsSearch": false}`,
		draft:         "unsure",
		adequacyReply: `{"needsSearch": true, "searchQuery": ""}`,
		chunks:        []string{"fresh"},
	}
	searcher := &searcherStub{}
	sink := &Recorder{}

	err := newTestOrchestrator(completer, searcher, DefaultOptions()).
		Handle(context.Background(), Request{Message: "Who leads the league?", Model: "m"}, sink)
	require.NoError(t, err)
	assert.Equal(t, []string{"Who leads the league?"}, searcher.queries)
}

func TestHandleDraftsFirstWhenNeedVerdictHasNoQuery(t *testing.T) {
	completer := &completerStub{
		needReply:     `{"needsSearch": true, "searchQuery": ""}`,
		draft:         "Nothing much.",
		adequacyReply: `{"needsSearch": false}`,
	}
	searcher := &searcherStub{}
	sink := &Recorder{}

	err := newTestOrchestrator(completer, searcher, DefaultOptions()).
		Handle(context.Background(), Request{Message: "What is new?", Model: "m"}, sink)
	require.NoError(t, err)

	want := []Event{
		Progress(PhaseReasoning, "Analyzing..."),
		Progress(PhaseThinking, "Generating..."),
		Progress(PhaseReasoning, "Verifying..."),
		Content("Nothing mu"),
		Content("ch."),
		Done(),
	}
	if diff := cmp.Diff(want, sink.Events()); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}
	assert.Empty(t, searcher.queries)
	assert.Equal(t, 1, completer.draftCalls)
	assert.Equal(t, 1, completer.adequacyCalls)
	assert.Equal(t, 0, completer.streamCalls)
}

func TestHandleSlicesDraftWithoutSplittingRunes(t *testing.T) {
	draft := "Grüße aus Köln, 東京 und überall ✓"
	completer := &completerStub{
		needReply:     `{"needsSearch": false}`,
		draft:         draft,
		adequacyReply: `{"needsSearch": false}`,
	}
	sink := &Recorder{}

	err := newTestOrchestrator(completer, &searcherStub{}, Options{SliceSize: 4, MaxRetries: 1}).
		Handle(context.Background(), Request{Message: "greet me", Model: "m"}, sink)
	require.NoError(t, err)

	assert.Equal(t, draft, sink.Content())
	for _, event := range sink.Events() {
		if event.Kind != KindContent {
			continue
		}
		assert.LessOrEqual(t, len([]rune(event.Text)), 4)
		assert.NotEmpty(t, event.Text)
	}
}

func TestHandleFailsSoftWhenNeedAdvisorFails(t *testing.T) {
	completer := &completerStub{
		needErr:       errors.New("boom"),
		draft:         "answer",
		adequacyReply: "not json at all",
	}
	sink := &Recorder{}

	err := newTestOrchestrator(completer, &searcherStub{}, DefaultOptions()).
		Handle(context.Background(), Request{Message: "q", Model: "m"}, sink)
	require.NoError(t, err)
	assert.Equal(t, "answer", sink.Content())
	assert.Equal(t, 1, completer.draftCalls)
}

func TestHandleReturnsCompletionErrorBeforeContent(t *testing.T) {
	completer := &completerStub{
		needReply: `{"needsSearch": false}`,
		draftErr:  errors.Join(ErrAuthFailure, errors.New("401 unauthorized")),
	}
	sink := &Recorder{}

	err := newTestOrchestrator(completer, &searcherStub{}, DefaultOptions()).
		Handle(context.Background(), Request{Message: "q", Model: "m"}, sink)
	require.Error(t, err)

	var completionErr *CompletionError
	require.True(t, errors.As(err, &completionErr))
	assert.Equal(t, "draft", completionErr.Stage)
	assert.True(t, errors.Is(err, ErrAuthFailure))
	for _, event := range sink.Events() {
		assert.NotEqual(t, KindDone, event.Kind)
		assert.NotEqual(t, KindContent, event.Kind)
	}
}

func TestHandleReturnsCompletionErrorWhenStreamFailsImmediately(t *testing.T) {
	completer := &completerStub{
		needReply: `{"needsSearch": true, "searchQuery": "q"}`,
		chunks:    []string{"never"},
		streamErr: ErrTransportFailure,
		failAfter: 0,
	}
	sink := &Recorder{}

	err := newTestOrchestrator(completer, &searcherStub{}, DefaultOptions()).
		Handle(context.Background(), Request{Message: "q", Model: "m"}, sink)

	var completionErr *CompletionError
	require.True(t, errors.As(err, &completionErr))
	assert.Equal(t, "answer", completionErr.Stage)
	assert.Empty(t, sink.Content())
	assert.NotEqual(t, KindDone, sink.Events()[len(sink.Events())-1].Kind)
}

func TestHandleReportsFailureAfterContentInBand(t *testing.T) {
	completer := &completerStub{
		needReply: `{"needsSearch": true, "searchQuery": "q"}`,
		chunks:    []string{"partial ", "never sent"},
		streamErr: ErrTransportFailure,
		failAfter: 1,
	}
	sink := &Recorder{}

	summary, err := newTestOrchestrator(completer, &searcherStub{}, DefaultOptions()).
		Run(context.Background(), Request{Message: "q", Model: "m"}, sink)
	require.NoError(t, err)

	events := sink.Events()
	assertSingleDoneLast(t, events)
	assert.Equal(t, Failure(genericFailureMessage), events[len(events)-2])
	assert.Equal(t, "partial ", sink.Content())
	assert.Equal(t, OutcomeStreamError, summary.Outcome)
}

func TestHandleStopsWhenSinkFails(t *testing.T) {
	errGone := errors.New("client disconnected")
	completer := &completerStub{
		needReply: `{"needsSearch": true, "searchQuery": "q"}`,
		chunks:    []string{"a", "b", "c"},
	}
	sink := &failingSink{failOn: KindContent, err: errGone}

	err := newTestOrchestrator(completer, &searcherStub{}, DefaultOptions()).
		Handle(context.Background(), Request{Message: "q", Model: "m"}, sink)
	require.ErrorIs(t, err, errGone)
	assert.Equal(t, 0, completer.delivered)
	for _, event := range sink.events {
		assert.NotEqual(t, KindDone, event.Kind)
	}
}

func TestHandleRejectsInvalidRequest(t *testing.T) {
	completer := &completerStub{}
	cases := map[string]Request{
		"missing message": {Model: "m"},
		"blank message":   {Message: "   ", Model: "m"},
		"missing model":   {Message: "hi"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			sink := &Recorder{}
			err := newTestOrchestrator(completer, &searcherStub{}, DefaultOptions()).Handle(context.Background(), req, sink)
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Empty(t, sink.Events())
		})
	}
	assert.Equal(t, 0, completer.needCalls+completer.draftCalls+completer.streamCalls)
}

func TestHandleCopiesHistoryIntoMessages(t *testing.T) {
	history := []Turn{
		{Role: RoleUser, Content: "My name is Ada."},
		{Role: "tool", Content: "ignored"},
		{Role: RoleAssistant, Content: ""},
		{Role: RoleAssistant, Content: "Hello Ada."},
	}
	original := append([]Turn(nil), history...)
	completer := &completerStub{
		needReply:     `{"needsSearch": false}`,
		draft:         "Ada",
		adequacyReply: `{"needsSearch": false}`,
	}

	err := newTestOrchestrator(completer, &searcherStub{}, DefaultOptions()).
		Handle(context.Background(), Request{Message: "What is my name?", Model: "m", History: history}, &Recorder{})
	require.NoError(t, err)

	assert.Equal(t, original, history)
	require.Len(t, completer.draftTurns, 4)
	assert.Equal(t, RoleSystem, completer.draftTurns[0].Role)
	assert.Equal(t, Turn{Role: RoleUser, Content: "My name is Ada."}, completer.draftTurns[1])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "Hello Ada."}, completer.draftTurns[2])
	assert.Equal(t, Turn{Role: RoleUser, Content: "What is my name?"}, completer.draftTurns[3])
}

func TestAdequacyAdvisorRunsAtMostOnce(t *testing.T) {
	for _, retries := range []int{0, 1, 3} {
		completer := &completerStub{
			needReply:     `{"needsSearch": false}`,
			draft:         "draft",
			adequacyReply: `{"needsSearch": true, "searchQuery": "more"}`,
			chunks:        []string{"again"},
		}
		err := newTestOrchestrator(completer, &searcherStub{}, Options{MaxRetries: retries}).
			Handle(context.Background(), Request{Message: "q", Model: "m"}, &Recorder{})
		require.NoError(t, err)
		assert.Equal(t, 1, completer.adequacyCalls, "retries=%d", retries)
		assert.LessOrEqual(t, completer.streamCalls, 1, "retries=%d", retries)
	}
}

func TestClassifierPromptsCarryDateContext(t *testing.T) {
	completer := &completerStub{
		needReply:     `{"needsSearch": false}`,
		draft:         "d",
		adequacyReply: `{"needsSearch": false}`,
	}
	err := newTestOrchestrator(completer, &searcherStub{}, DefaultOptions()).
		Handle(context.Background(), Request{Message: "what happened last week?", Model: "m"}, &Recorder{})
	require.NoError(t, err)

	require.Len(t, completer.classifierSeen, 2)
	for _, prompt := range completer.classifierSeen {
		assert.True(t, strings.Contains(prompt, "Saturday, 2026-03-14"), prompt)
		assert.Contains(t, prompt, "previous year was 2025")
	}
}
