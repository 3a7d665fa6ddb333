package assistant

import (
	"context"
	"strings"
	"sync"

	"searchchat/backend/internal/search"
)

type completerStub struct {
	mu sync.Mutex

	needReply     string
	needErr       error
	draft         string
	draftErr      error
	adequacyReply string
	adequacyErr   error

	chunks    []string
	streamErr error
	// failAfter is how many chunks are delivered before streamErr is returned.
	failAfter int

	needCalls      int
	draftCalls     int
	adequacyCalls  int
	streamCalls    int
	delivered      int
	draftTurns     []Turn
	streamTurns    []Turn
	classifierSeen []string
}

func (s *completerStub) Complete(_ context.Context, _ string, turns []Turn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(turns) > 0 && turns[0].Content == classifierSystemPrompt {
		prompt := turns[len(turns)-1].Content
		s.classifierSeen = append(s.classifierSeen, prompt)
		if strings.HasPrefix(prompt, "Judge whether") {
			s.adequacyCalls++
			return s.adequacyReply, s.adequacyErr
		}
		s.needCalls++
		return s.needReply, s.needErr
	}

	s.draftCalls++
	s.draftTurns = append([]Turn(nil), turns...)
	return s.draft, s.draftErr
}

func (s *completerStub) Stream(_ context.Context, _ string, turns []Turn, onDelta func(string) error) error {
	s.mu.Lock()
	s.streamCalls++
	s.streamTurns = append([]Turn(nil), turns...)
	chunks := s.chunks
	streamErr := s.streamErr
	failAfter := s.failAfter
	s.mu.Unlock()

	for i, chunk := range chunks {
		if streamErr != nil && i == failAfter {
			return streamErr
		}
		if err := onDelta(chunk); err != nil {
			return err
		}
		s.mu.Lock()
		s.delivered++
		s.mu.Unlock()
	}
	return streamErr
}

type searcherStub struct {
	results []search.Result
	err     error
	queries []string
}

func (s *searcherStub) Search(_ context.Context, query string) ([]search.Result, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type failingSink struct {
	failOn Kind
	err    error
	events []Event
}

func (s *failingSink) Emit(event Event) error {
	if event.Kind == s.failOn {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}
