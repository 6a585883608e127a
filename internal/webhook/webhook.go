// Package webhook receives vendor push events for webhook-driven captures.
// Every accepted event is signature-checked, schema-validated, and routed
// through an explicit handler registry.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"idv-gateway/internal/events"
	"idv-gateway/internal/platform/httputil"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

const maxBodyBytes = 1 << 20

// Event names pushed by the DocV vendor for a hosted capture session.
const (
	EventDocumentsUploaded = "DOCUMENTS_UPLOADED"
	EventSessionComplete   = "SESSION_COMPLETE"
	EventSessionExpired    = "SESSION_EXPIRED"
)

const eventSchema = `{
  "type": "object",
  "required": ["event"],
  "properties": {
    "event": {
      "type": "object",
      "required": ["eventType"],
      "properties": {
        "eventType": {"type": "string", "minLength": 1},
        "docvTransactionToken": {"type": "string"},
        "referenceId": {"type": "string"},
        "customerUserId": {"type": "string"}
      }
    }
  }
}`

type eventEnvelope struct {
	Event struct {
		EventType            string `json:"eventType"`
		DocvTransactionToken string `json:"docvTransactionToken"`
		ReferenceID          string `json:"referenceId"`
	} `json:"event"`
}

// Handler is the webhook ingress endpoint.
type Handler struct {
	secret   []byte
	registry *events.Registry
	schema   *jsonschema.Schema

	logger  *slog.Logger
	metrics *Metrics
}

// New creates the ingress handler. The schema is fixed at build time, so a
// compile failure is a programming error.
func New(secret string, registry *events.Registry, logger *slog.Logger, m *Metrics) *Handler {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("event.json", strings.NewReader(eventSchema)); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("event.json")
	if err != nil {
		panic(err)
	}
	return &Handler{
		secret:   []byte(secret),
		registry: registry,
		schema:   schema,
		logger:   logger,
		metrics:  m,
	}
}

var _ http.Handler = (*Handler)(nil)

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if !h.validSignature(body, r.Header.Get(SignatureHeader)) {
		h.count("", "bad_signature")
		h.logger.Warn("webhook signature rejected")
		httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		h.count("", "invalid_payload")
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := h.schema.Validate(generic); err != nil {
		h.count("", "invalid_payload")
		h.logger.Warn("webhook payload rejected", "error", err)
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "payload does not match schema"})
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.count("", "invalid_payload")
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	eventType := envelope.Event.EventType

	if !h.registry.Handles(eventType) {
		// Vendors add event types without notice; acknowledge so they stop
		// redelivering.
		h.count(eventType, "ignored")
		h.logger.Info("webhook event ignored", "event_type", eventType)
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	err = h.registry.Dispatch(r.Context(), events.Event{
		Name:      eventType,
		Payload:   body,
		Reference: envelope.Event.DocvTransactionToken,
	})
	if err != nil {
		h.count(eventType, "error")
		h.logger.Error("webhook event failed", "event_type", eventType, "error", err)
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "event processing failed"})
		return
	}

	h.count(eventType, "processed")
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) validSignature(body []byte, header string) bool {
	if len(h.secret) == 0 || header == "" {
		return false
	}
	provided, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

func (h *Handler) count(eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.Events.WithLabelValues(eventType, outcome).Inc()
	}
}

// Sign computes the signature header value for a body. Shared with tests and
// outbound tooling.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
