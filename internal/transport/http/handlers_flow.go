package httptransport

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"idv-gateway/internal/docauth"
	"idv-gateway/internal/flow"
	"idv-gateway/internal/platform/httputil"
	"idv-gateway/internal/platform/middleware"
	"idv-gateway/internal/sentinel"
)

// Handler serves the flow endpoints.
type Handler struct {
	engine *flow.Engine
	logger *slog.Logger

	// livenessEnabled is a deployment decision, never a client one.
	livenessEnabled bool
}

// NewHandler creates the flow handler.
func NewHandler(engine *flow.Engine, livenessEnabled bool, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, livenessEnabled: livenessEnabled, logger: logger}
}

type applicantPayload struct {
	FirstName           string `json:"first_name"`
	MiddleName          string `json:"middle_name,omitempty"`
	LastName            string `json:"last_name"`
	NameSuffix          string `json:"name_suffix,omitempty"`
	DOB                 string `json:"dob"`
	Address1            string `json:"address1,omitempty"`
	Address2            string `json:"address2,omitempty"`
	City                string `json:"city,omitempty"`
	State               string `json:"state,omitempty"`
	Zipcode             string `json:"zipcode,omitempty"`
	StateIDNumber       string `json:"state_id_number"`
	StateIDJurisdiction string `json:"state_id_jurisdiction"`
	IDDocType           string `json:"id_doc_type,omitempty"`
}

func (p *applicantPayload) toApplicant() *docauth.Applicant {
	if p == nil {
		return nil
	}
	return &docauth.Applicant{
		FirstName:           p.FirstName,
		MiddleName:          p.MiddleName,
		LastName:            p.LastName,
		NameSuffix:          p.NameSuffix,
		DOB:                 p.DOB,
		Address1:            p.Address1,
		Address2:            p.Address2,
		City:                p.City,
		State:               p.State,
		Zipcode:             p.Zipcode,
		StateIDNumber:       p.StateIDNumber,
		StateIDJurisdiction: p.StateIDJurisdiction,
		IDDocType:           p.IDDocType,
	}
}

type submitDocumentRequest struct {
	// Images arrive base64-encoded per encoding/json []byte convention.
	FrontImage []byte `json:"front_image,omitempty"`
	BackImage  []byte `json:"back_image,omitempty"`
	Selfie     []byte `json:"selfie,omitempty"`

	DocvTransactionToken string `json:"docv_transaction_token,omitempty"`

	Applicant *applicantPayload `json:"applicant,omitempty"`
}

type submitDocumentResponse struct {
	Step        string `json:"step"`
	Duplicate   bool   `json:"duplicate,omitempty"`
	RateLimited bool   `json:"rate_limited,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (h *Handler) handleSubmitDocument(w http.ResponseWriter, r *http.Request) {
	var req submitDocumentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	result, err := h.engine.SubmitDocument(r.Context(), middleware.ApplicantID(r.Context()), flow.SubmitInput{
		FrontImage:           req.FrontImage,
		BackImage:            req.BackImage,
		Selfie:               req.Selfie,
		DocvTransactionToken: req.DocvTransactionToken,
		Applicant:            req.Applicant.toApplicant(),
		LivenessEnabled:      h.livenessEnabled,
	})
	if errors.Is(err, sentinel.ErrInvalidInput) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_submission", err.Error())
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	status := http.StatusAccepted
	if result.RateLimited {
		status = http.StatusTooManyRequests
	}
	httputil.WriteJSON(w, status, submitDocumentResponse{
		Step:        string(result.Step),
		Duplicate:   result.Duplicate,
		RateLimited: result.RateLimited,
		Message:     result.Message,
	})
}

// waitResponse never carries extracted document PII; the client learns only
// the step, the error groups, and the review flag.
type waitResponse struct {
	Step              string         `json:"step"`
	RetryAfterSeconds int            `json:"retry_after_seconds,omitempty"`
	Errors            map[string]any `json:"errors,omitempty"`
	Message           string         `json:"message,omitempty"`
	NeedsManualReview bool           `json:"needs_manual_review,omitempty"`
}

func (h *Handler) handlePollWait(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.PollWait(r.Context(), middleware.ApplicantID(r.Context()))
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	resp := waitResponse{
		Step:              string(result.Step),
		Errors:            result.Errors,
		Message:           result.Message,
		NeedsManualReview: result.NeedsManualReview,
	}
	if result.RetryAfter > 0 {
		seconds := int(result.RetryAfter.Seconds())
		resp.RetryAfterSeconds = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type verifyInfoRequest struct {
	SSN string `json:"ssn"`
}

type verifyInfoResponse struct {
	Step                  string         `json:"step"`
	Errors                map[string]any `json:"errors,omitempty"`
	Message               string         `json:"message,omitempty"`
	RedactedStateIDNumber string         `json:"redacted_state_id_number,omitempty"`
	NeedsManualReview     bool           `json:"needs_manual_review,omitempty"`
}

func (h *Handler) handleVerifyInfo(w http.ResponseWriter, r *http.Request) {
	var req verifyInfoRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	result, err := h.engine.VerifyInfo(r.Context(), middleware.ApplicantID(r.Context()), flow.VerifyInput{SSN: req.SSN})
	if errors.Is(err, sentinel.ErrInvalidState) {
		writeError(w, http.StatusConflict, "invalid_state", "document verification has not completed")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, verifyInfoResponse{
		Step:                  string(result.Step),
		Errors:                result.Errors,
		Message:               result.Message,
		RedactedStateIDNumber: result.RedactedStateIDNumber,
		NeedsManualReview:     result.NeedsManualReview,
	})
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Abandon(r.Context(), middleware.ApplicantID(r.Context())); err != nil {
		h.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("flow request failed",
		"path", r.URL.Path,
		"request_id", middleware.GetRequestID(r.Context()),
		"error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	httputil.WriteJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
