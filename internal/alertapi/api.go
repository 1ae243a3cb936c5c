// Package alertapi exposes the interview and alert queue over HTTP.
package alertapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/triaged/internal/alert"
	"github.com/linnemanlabs/triaged/internal/triage"
)

// PatientIDHeader carries the patient id on /triage responses so callers
// that let the server pick an id can continue the interview.
const PatientIDHeader = "X-Patient-Id"

// TriageService defines the interview operation alertapi needs.
type TriageService interface {
	Triage(ctx context.Context, req *triage.Request) *triage.Outcome
}

// AlertStore defines the alert queue operations alertapi needs.
type AlertStore interface {
	Submit(ctx context.Context, e *alert.Entry) error
	List(ctx context.Context) []alert.Entry
	Clear(ctx context.Context) error
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
	alerts AlertStore
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, alerts AlertStore) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if alerts == nil {
		panic(xerrors.New("alert store is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		alerts: alerts,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Post("/triage", a.handleTriage)
	r.Post("/alert", a.handleAlert)
	r.Get("/alerts", a.handleListAlerts)
	r.Post("/clear", a.handleClear)
}

// statusResponse is the envelope for alert mutations.
type statusResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, code int, status, msg string) {
	writeJSON(w, code, statusResponse{Status: status, Msg: msg})
}
