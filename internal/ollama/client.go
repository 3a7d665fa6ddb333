// Package ollama talks to a local or cloud Ollama instance through its
// OpenAI-compatible /v1 API.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"searchchat/backend/internal/assistant"
	"searchchat/backend/internal/config"
)

var ErrMissingAPIKey = fmt.Errorf("ollama api key is not configured: %w", assistant.ErrAuthFailure)

// ErrStreamStalled reports a stream that sent nothing for a full upstream
// timeout.
var ErrStreamStalled = errors.New("ollama stream stalled")

type Model struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnedBy string `json:"ownedBy"`
}

// Client applies cfg.UpstreamTimeout per call: as a deadline on blocking
// calls and as an idle limit between stream chunks.
type Client struct {
	client  *openai.Client
	mode    config.Mode
	apiKey  string
	timeout time.Duration
}

func NewClient(cfg config.Config, httpClient *http.Client) Client {
	if httpClient == nil {
		// No Client.Timeout: it would also cap the streamed body.
		httpClient = &http.Client{}
	}
	apiKey := strings.TrimSpace(cfg.OllamaAPIKey)

	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.OllamaHost, "/") + "/v1"
	clientCfg.HTTPClient = httpClient

	return Client{
		client:  openai.NewClientWithConfig(clientCfg),
		mode:    cfg.Mode,
		apiKey:  apiKey,
		timeout: cfg.UpstreamTimeout,
	}
}

func (c Client) Complete(ctx context.Context, model string, turns []assistant.Turn) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    strings.TrimSpace(model),
		Messages: toMessages(turns),
	})
	if err != nil {
		return "", classify("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices: %w", assistant.ErrTransportFailure)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream calls onDelta for every non-empty content fragment. An error from
// onDelta stops the read, closes the response body and is returned unchanged.
// The stream has no total deadline; it fails with ErrStreamStalled when the
// first chunk, or any later one, takes longer than the upstream timeout.
func (c Client) Stream(ctx context.Context, model string, turns []assistant.Turn, onDelta func(string) error) error {
	if err := c.ready(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	keepAlive := func() {}
	if c.timeout > 0 {
		idle := time.AfterFunc(c.timeout, func() { cancel(ErrStreamStalled) })
		defer idle.Stop()
		keepAlive = func() { idle.Reset(c.timeout) }
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    strings.TrimSpace(model),
		Messages: toMessages(turns),
		Stream:   true,
	})
	if err != nil {
		return classify("chat stream", stalledOr(ctx, err))
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return classify("chat stream recv", stalledOr(ctx, err))
		}
		keepAlive()

		for _, choice := range response.Choices {
			delta := choice.Delta.Content
			if delta == "" || onDelta == nil {
				continue
			}
			if err := onDelta(delta); err != nil {
				return err
			}
		}
	}
}

func (c Client) ListModels(ctx context.Context) ([]Model, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, classify("list models", err)
	}

	models := make([]Model, 0, len(list.Models))
	seen := make(map[string]struct{}, len(list.Models))
	for _, model := range list.Models {
		id := strings.TrimSpace(model.ID)
		if id == "" {
			continue
		}
		if _, exists := seen[id]; exists {
			continue
		}
		seen[id] = struct{}{}

		models = append(models, Model{
			ID:      id,
			Name:    displayName(id),
			OwnedBy: strings.TrimSpace(model.OwnedBy),
		})
	}
	return models, nil
}

func (c Client) ready() error {
	if c.mode == config.ModeCloud && c.apiKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (c Client) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func stalledOr(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrStreamStalled) {
		return fmt.Errorf("%w: %w", ErrStreamStalled, err)
	}
	return err
}

func toMessages(turns []assistant.Turn) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, len(turns))
	for i, turn := range turns {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		}
	}
	return messages
}

func displayName(id string) string {
	name := strings.TrimSuffix(id, ":latest")
	if name == "" {
		return id
	}
	return name
}

// classify maps client errors onto the assistant error taxonomy.
func classify(op string, err error) error {
	switch statusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w: %w", op, assistant.ErrAuthFailure, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, assistant.ErrTransportFailure, err)
	}
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
