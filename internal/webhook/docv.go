package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"idv-gateway/internal/capture/store"
	"idv-gateway/internal/docauth"
	"idv-gateway/internal/docauth/tracer"
	"idv-gateway/internal/events"
	"idv-gateway/internal/sentinel"
)

// DocvResultHandler reacts to documents-uploaded events by fetching the DocV
// result and committing it to the capture session. It is the webhook-driven
// twin of the proofing job: same write-once commit, same tolerance for races.
type DocvResultHandler struct {
	verifier docauth.Verifier
	tokens   store.TokenIndex
	captures store.Store
	logger   *slog.Logger
}

// NewDocvResultHandler creates the handler.
func NewDocvResultHandler(verifier docauth.Verifier, tokens store.TokenIndex, captures store.Store, logger *slog.Logger) *DocvResultHandler {
	return &DocvResultHandler{
		verifier: verifier,
		tokens:   tokens,
		captures: captures,
		logger:   logger,
	}
}

var _ events.Handler = (*DocvResultHandler)(nil)

// Register subscribes the handler to the events that signal a finished
// vendor-side capture. Both fire for one capture; the write-once commit makes
// the second a no-op.
func (h *DocvResultHandler) Register(registry *events.Registry) {
	registry.Register(EventDocumentsUploaded, h)
	registry.Register(EventSessionComplete, h)
}

func (h *DocvResultHandler) Handle(ctx context.Context, event events.Event) error {
	token := event.Reference
	if token == "" {
		h.logger.Warn("docv event without transaction token", "event_type", event.Name)
		return nil
	}

	uuid, err := h.tokens.Lookup(ctx, token)
	if errors.Is(err, sentinel.ErrNotFound) {
		// Late or replayed delivery for a capture we no longer track.
		h.logger.Warn("docv event for unknown token", "event_type", event.Name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve docv token: %w", err)
	}

	result, err := h.verifier.Verify(ctx, docauth.CaptureInput{DocvTransactionToken: token})
	if err != nil {
		result = docauth.NetworkFailureResponse(err)
	}

	committed, err := h.captures.WriteResultOnce(ctx, uuid, result)
	if errors.Is(err, sentinel.ErrNotFound) {
		h.logger.Warn("docv result for evicted capture session",
			"session_hash", tracer.HashSessionID(uuid))
		return nil
	}
	if err != nil {
		return fmt.Errorf("write docv result: %w", err)
	}

	h.logger.Info("docv result committed",
		"event_type", event.Name,
		"session_hash", tracer.HashSessionID(uuid),
		"committed", committed,
		"success", result.Success)
	return nil
}
