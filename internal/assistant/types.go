package assistant

import (
	"context"
	"strings"

	"searchchat/backend/internal/search"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Message string
	Model   string
	History []Turn
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Message) == "" || strings.TrimSpace(r.Model) == "" {
		return ErrInvalidRequest
	}
	return nil
}

// Completer is an OpenAI-compatible chat backend. Errors wrap ErrAuthFailure
// or ErrTransportFailure.
type Completer interface {
	Complete(ctx context.Context, model string, turns []Turn) (string, error)
	Stream(ctx context.Context, model string, turns []Turn, onDelta func(string) error) error
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

func validRole(role Role) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// buildTurns copies history into a fresh message list framed by the system
// prompt and the current message. The caller's slice is never modified.
func buildTurns(systemPrompt string, history []Turn, message string) []Turn {
	turns := make([]Turn, 0, len(history)+2)
	if strings.TrimSpace(systemPrompt) != "" {
		turns = append(turns, Turn{Role: RoleSystem, Content: systemPrompt})
	}
	for _, turn := range history {
		role := Role(strings.ToLower(strings.TrimSpace(string(turn.Role))))
		if !validRole(role) || strings.TrimSpace(turn.Content) == "" {
			continue
		}
		turns = append(turns, Turn{Role: role, Content: turn.Content})
	}
	turns = append(turns, Turn{Role: RoleUser, Content: message})
	return turns
}
