package assistant

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("message and model are required")
	ErrAuthFailure         = errors.New("model backend rejected the credential")
	ErrTransportFailure    = errors.New("model backend request failed")
	ErrUnparseableDecision = errors.New("decision response is not a json object")
)

const (
	authFailureMessage    = "The model backend rejected the credential. Check OLLAMA_API_KEY in cloud mode, or that OLLAMA_HOST points at a running local instance."
	genericFailureMessage = "The model backend request failed"
)

// CompletionError reports a completion call that failed before any answer
// content reached the sink. No done event has been emitted when it is returned.
type CompletionError struct {
	Stage string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s completion failed: %v", e.Stage, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// UserMessage turns a completion failure into the text shown to the caller.
func UserMessage(err error) string {
	if errors.Is(err, ErrAuthFailure) {
		return authFailureMessage
	}
	return genericFailureMessage
}
