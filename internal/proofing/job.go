// Package proofing runs the asynchronous verification job: call the document
// vendor, optionally cross-check state-ID data, and commit exactly one result
// to the capture session.
package proofing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"idv-gateway/internal/capture/store"
	"idv-gateway/internal/docauth"
	"idv-gateway/internal/docauth/aamva"
	"idv-gateway/internal/docauth/tracer"
	"idv-gateway/internal/sentinel"
)

// Args is the serializable job payload.
type Args struct {
	SessionUUID string `json:"session_uuid"`
	TraceID     string `json:"trace_id,omitempty"`

	FrontImage []byte `json:"front_image,omitempty"`
	BackImage  []byte `json:"back_image,omitempty"`
	Selfie     []byte `json:"selfie,omitempty"`

	DocvTransactionToken string `json:"docv_transaction_token,omitempty"`

	Applicant *docauth.Applicant `json:"applicant,omitempty"`

	LivenessEnabled bool `json:"liveness_enabled,omitempty"`
}

// Job performs one proofing run. Duplicate execution is safe: the capture
// store's write-once commit discards every result after the first.
type Job struct {
	verifier docauth.Verifier
	stateID  aamva.StateIDVerifier
	store    store.Store

	logger *slog.Logger
	tracer tracer.Tracer
}

// New creates a proofing job. stateID may be nil when the deployment has no
// DLDV access; the document result then stands alone.
func New(verifier docauth.Verifier, stateID aamva.StateIDVerifier, st store.Store, logger *slog.Logger, tr tracer.Tracer) *Job {
	if tr == nil {
		tr = tracer.NewNoop()
	}
	return &Job{
		verifier: verifier,
		stateID:  stateID,
		store:    st,
		logger:   logger,
		tracer:   tr,
	}
}

// Perform runs the vendor calls and commits the merged result.
//
// Vendor errors never escape as errors: they become a stored network-failure
// result so the wait step only ever sees normalized responses. The returned
// error reports store problems only, which the queue layer may retry.
func (j *Job) Perform(ctx context.Context, args Args) error {
	start := time.Now()
	ctx, span := j.tracer.Start(ctx, tracer.SpanProofingJob,
		tracer.String(tracer.AttrSessionHash, tracer.HashSessionID(args.SessionUUID)))

	response := j.runVendors(ctx, args)

	committed, err := j.writeResult(ctx, args.SessionUUID, response)
	span.SetAttributes(
		tracer.Bool(tracer.AttrSuccess, response.Success),
		tracer.Bool(tracer.AttrCommitted, committed),
	)
	span.End(err)

	logger := j.logger.With(
		"session_hash", tracer.HashSessionID(args.SessionUUID),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	switch {
	case err != nil:
		logger.Error("proofing job failed to store result", "error", err)
		return err
	case !committed:
		logger.Info("proofing job result discarded, session already has one")
	default:
		logger.Info("proofing job completed",
			"success", response.Success,
			"attention_with_barcode", response.AttentionWithBarcode,
			"exception", response.Exception != "")
	}
	return nil
}

// runVendors produces the merged vendor response for the capture.
func (j *Job) runVendors(ctx context.Context, args Args) *docauth.Response {
	input := docauth.CaptureInput{
		FrontImage:           args.FrontImage,
		BackImage:            args.BackImage,
		Selfie:               args.Selfie,
		DocvTransactionToken: args.DocvTransactionToken,
		Applicant:            args.Applicant,
		LivenessEnabled:      args.LivenessEnabled,
	}

	// The state-ID check has its own input when the applicant came with the
	// submission, so it can run alongside the document call.
	if j.stateID != nil && args.Applicant != nil {
		return j.runConcurrent(ctx, input, args.Applicant)
	}

	docResp, err := j.verifier.Verify(ctx, input)
	if err != nil {
		return docauth.NetworkFailureResponse(err)
	}
	return docResp
}

func (j *Job) runConcurrent(ctx context.Context, input docauth.CaptureInput, applicant *docauth.Applicant) *docauth.Response {
	var (
		docResp       *docauth.Response
		stateIDResult *aamva.Result
		stateIDErr    error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := j.verifier.Verify(gctx, input)
		if err != nil {
			return err
		}
		docResp = resp
		return nil
	})
	g.Go(func() error {
		// State-ID failures merge into the doc result rather than aborting
		// the group, so the document outcome is always preserved.
		stateIDResult, stateIDErr = j.stateID.VerifyStateID(gctx, applicant)
		return nil
	})

	if err := g.Wait(); err != nil {
		return docauth.NetworkFailureResponse(err)
	}
	return mergeStateID(docResp, stateIDResult, stateIDErr, j.logger)
}

// mergeStateID folds the DLDV outcome into the document response. The
// state-ID check only matters when the document itself verified.
func mergeStateID(docResp *docauth.Response, result *aamva.Result, err error, logger *slog.Logger) *docauth.Response {
	if !docResp.Success {
		return docResp
	}

	if err != nil {
		logger.Warn("state id check errored",
			"category", string(docauth.Category(err)),
			"retryable", docauth.IsRetryable(err))
		resp := docauth.NetworkFailureResponse(err)
		resp.Extra = docResp.Extra
		return resp
	}

	if docResp.Extra == nil {
		docResp.Extra = make(map[string]any)
	}
	docResp.Extra["state_id_verified_attributes"] = result.VerifiedAttributes()

	if result.Success {
		return docResp
	}

	return &docauth.Response{
		Success: false,
		Errors:  map[string]any{"state_id": result.Reasons},
		Extra:   docResp.Extra,
	}
}

// writeResult commits the response, tolerating sessions that vanished while
// the vendors were running.
func (j *Job) writeResult(ctx context.Context, uuid string, response *docauth.Response) (bool, error) {
	ctx, span := j.tracer.Start(ctx, tracer.SpanResultStore)
	committed, err := j.store.WriteResultOnce(ctx, uuid, response)
	span.End(err)

	if errors.Is(err, sentinel.ErrNotFound) {
		j.logger.Warn("capture session gone before result could be stored",
			"session_hash", tracer.HashSessionID(uuid))
		return false, nil
	}
	return committed, err
}
