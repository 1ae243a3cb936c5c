package alertapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/triaged/internal/triage"
)

type triageRequest struct {
	PatientID flexString      `json:"patient_id"`
	EHR       json.RawMessage `json:"ehr"`
	Answer    string          `json:"answer"`
}

type questionResponse struct {
	NextQuestion string `json:"next_question"`
}

func (a *API) handleTriage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.bodyError(w, r, err)
		return
	}

	var req triageRequest
	if len(bytes.TrimSpace(body)) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty payload"})
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	ehr := req.EHR
	if bytes.Equal(bytes.TrimSpace(ehr), []byte("null")) {
		ehr = nil
	}

	out := a.svc.Triage(r.Context(), &triage.Request{
		PatientID: string(req.PatientID),
		Context:   ehr,
		Answer:    req.Answer,
	})

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("triaged.patient.id", out.PatientID),
		attribute.Bool("triaged.verdict", out.Done()),
	)

	w.Header().Set(PatientIDHeader, out.PatientID)
	if out.Done() {
		writeJSON(w, http.StatusOK, out.Verdict)
		return
	}
	writeJSON(w, http.StatusOK, questionResponse{NextQuestion: out.NextQuestion})
}

func (a *API) bodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeStatus(w, http.StatusRequestEntityTooLarge, "error", "Payload too large")
		return
	}
	a.logger.Warn(r.Context(), "failed to read request body", "err", err)
	writeStatus(w, http.StatusBadRequest, "error", "Unreadable body")
}
