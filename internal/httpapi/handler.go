package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"searchchat/backend/internal/assistant"
	"searchchat/backend/internal/config"
	"searchchat/backend/internal/ollama"
	"searchchat/backend/internal/runlog"
	"searchchat/backend/internal/service"
)

type ChatRunner interface {
	Run(ctx context.Context, req assistant.Request, sink assistant.EventSink) (assistant.Summary, error)
}

type Handler struct {
	cfg    config.Config
	chat   ChatRunner
	models service.ModelLister
	runs   runlog.Store
	logger *zap.Logger

	modelFetches *singleflight.Group
}

func NewHandler(cfg config.Config, chat ChatRunner, models service.ModelLister, runs runlog.Store, logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Handler{
		cfg:          cfg,
		chat:         chat,
		models:       models,
		runs:         runs,
		logger:       logger,
		modelFetches: &singleflight.Group{},
	}
}

func (h Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	Message string           `json:"message"`
	Model   string           `json:"model"`
	History []assistant.Turn `json:"history"`
}

func (h Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req := assistant.Request{
		Message: body.Message,
		Model:   strings.TrimSpace(body.Model),
		History: body.History,
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "message and model are required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "server does not support streaming")
		return
	}

	// The server WriteTimeout would cut long answers mid-stream. Each upstream
	// stage carries its own deadline instead.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug("clear write deadline failed", zap.Error(err))
	}

	sink := newSSESink(r.Context(), w, flusher)
	collector := runlog.NewCollector(sink)
	summary, err := h.chat.Run(r.Context(), req, collector)

	var completionErr *assistant.CompletionError
	switch {
	case err == nil:
	case errors.As(err, &completionErr):
		message := assistant.UserMessage(err)
		collector.MarkStopped(message)
		if !sink.Committed() {
			status, code := completionStatus(err)
			writeError(w, status, code, message)
			break
		}
		if emitErr := collector.Emit(assistant.Failure(message)); emitErr == nil {
			_ = collector.Emit(assistant.Done())
		}
	default:
		collector.MarkStopped("client disconnected")
		h.logger.Debug("chat stream aborted", zap.Error(err))
	}

	h.recordRun(r.Context(), req, summary, collector.Snapshot())
}

func (h Handler) recordRun(ctx context.Context, req assistant.Request, summary assistant.Summary, trace runlog.Trace) {
	if !h.runs.Enabled() {
		return
	}
	if _, err := h.runs.Record(context.WithoutCancel(ctx), runlog.NewRun(req, summary, trace)); err != nil {
		h.logger.Warn("record chat run failed", zap.Error(err))
	}
}

func completionStatus(err error) (int, string) {
	if errors.Is(err, assistant.ErrAuthFailure) {
		return http.StatusUnauthorized, "auth_failure"
	}
	return http.StatusBadGateway, "upstream_unavailable"
}

type configResponse struct {
	Mode           config.Mode           `json:"mode"`
	Host           string                `json:"host"`
	DefaultModel   *string               `json:"defaultModel"`
	SearchProvider config.SearchProvider `json:"searchProvider"`
	SearchEnabled  bool                  `json:"searchEnabled"`
	Models         []ollama.Model        `json:"models"`
}

func (h Handler) Config(w http.ResponseWriter, r *http.Request) {
	models, err := h.listModels(r.Context())
	if err != nil {
		h.logger.Warn("list models for config failed", zap.Error(err))
		models = []ollama.Model{}
	}

	resp := configResponse{
		Mode:           h.cfg.Mode,
		Host:           h.cfg.OllamaHost,
		SearchProvider: h.cfg.SearchProvider,
		SearchEnabled:  h.cfg.SearchConfigured(),
		Models:         models,
	}
	if defaultModel := strings.TrimSpace(h.cfg.DefaultModel); defaultModel != "" {
		resp.DefaultModel = &defaultModel
	} else if len(models) > 0 {
		first := models[0].ID
		resp.DefaultModel = &first
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.listModels(r.Context())
	if err != nil {
		h.logger.Warn("list models failed", zap.Error(err))
		if errors.Is(err, assistant.ErrAuthFailure) {
			writeError(w, http.StatusUnauthorized, "auth_failure", assistant.UserMessage(err))
			return
		}
		writeError(w, http.StatusBadGateway, "upstream_unavailable", "The model backend could not be reached")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// listModels collapses concurrent fetches into one upstream call. The shared
// call is detached from any single caller's cancellation.
func (h Handler) listModels(ctx context.Context) ([]ollama.Model, error) {
	if h.models == nil {
		return nil, errors.New("model listing is not configured")
	}
	value, err, _ := h.modelFetches.Do("models", func() (any, error) {
		return h.models.ListModels(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	models, _ := value.([]ollama.Model)
	if models == nil {
		models = []ollama.Model{}
	}
	return models, nil
}
