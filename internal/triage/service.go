package triage

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/triaged/internal/alert"
)

// DefaultAlertThreshold is the emergency index at or above which a verdict
// is queued for staff.
const DefaultAlertThreshold = 60

// AlertSink receives verdicts that crossed the alert threshold. Both the
// in-process alert.Store and the remote client satisfy it.
type AlertSink interface {
	Submit(ctx context.Context, e *alert.Entry) error
}

// Service is the business boundary for interview operations.
type Service struct {
	engine    *Engine
	sink      AlertSink
	logger    log.Logger
	threshold int
	onForward func(result string)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithThreshold sets the alert threshold.
func WithThreshold(n int) ServiceOption {
	return func(s *Service) { s.threshold = n }
}

// WithMetrics records forward outcomes on m.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.onForward = func(result string) { m.ForwardsTotal.WithLabelValues(result).Inc() }
	}
}

// NewService creates a new interview service. sink may be nil, in which
// case verdicts are never forwarded.
func NewService(engine *Engine, sink AlertSink, logger log.Logger, opts ...ServiceOption) *Service {
	if engine == nil {
		panic(xerrors.New("triage.NewService: engine is nil"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	s := &Service{
		engine:    engine,
		sink:      sink,
		logger:    logger,
		threshold: DefaultAlertThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewPatientID returns a fresh random patient id.
func NewPatientID() string {
	return ulid.Make().String()
}

// Triage advances the interview for req.PatientID, generating an id when
// none is given. A verdict at or above the threshold is forwarded to the
// alert sink once; forwarding failures are logged and never surface to
// the patient.
func (s *Service) Triage(ctx context.Context, req *Request) *Outcome {
	if strings.TrimSpace(req.PatientID) == "" {
		req.PatientID = NewPatientID()
	}

	out := s.engine.Advance(ctx, req)
	if out.Done() && out.Verdict.EmergencyIndex >= s.threshold {
		s.forward(ctx, out)
	}
	return out
}

func (s *Service) forward(ctx context.Context, out *Outcome) {
	L := s.logger.With("patient_id", out.PatientID)
	if s.sink == nil {
		L.Warn(ctx, "verdict above threshold but no alert sink configured",
			"emergency_index", out.Verdict.EmergencyIndex)
		s.forwarded("skipped")
		return
	}

	e := &alert.Entry{
		PatientID: out.PatientID,
		Name:      PatientName(out.Context),
		Score:     out.Verdict.EmergencyIndex,
		Priority:  string(out.Verdict.PriorityLabel),
		Rationale: out.Verdict.Rationale,
	}

	// the verdict is already final, a cancelled request must not drop it
	if err := s.sink.Submit(context.WithoutCancel(ctx), e); err != nil {
		L.Error(ctx, err, "forward verdict to alert store failed", "score", e.Score)
		s.forwarded("error")
		return
	}
	L.Info(ctx, "verdict forwarded to alert store", "score", e.Score, "priority", e.Priority)
	s.forwarded("ok")
}

func (s *Service) forwarded(result string) {
	if s.onForward != nil {
		s.onForward(result)
	}
}

// PatientName pulls a display name out of an EHR context object. It looks
// for a flat name field first, then FIRST/LAST style parts as produced by
// Synthea exports. Returns alert.Unknown when nothing matches.
func PatientName(ehr []byte) string {
	if len(ehr) == 0 || !gjson.ValidBytes(ehr) {
		return alert.Unknown
	}
	doc := gjson.ParseBytes(ehr)

	for _, path := range []string{"name", "patient_name", "patient.name", "NAME"} {
		if r := doc.Get(path); r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
			return strings.TrimSpace(r.Str)
		}
	}

	for _, pair := range [][2]string{
		{"FIRST", "LAST"},
		{"first_name", "last_name"},
		{"patient.FIRST", "patient.LAST"},
		{"patient.first_name", "patient.last_name"},
	} {
		first := strings.TrimSpace(doc.Get(pair[0]).String())
		last := strings.TrimSpace(doc.Get(pair[1]).String())
		if full := strings.TrimSpace(first + " " + last); full != "" {
			return full
		}
	}
	return alert.Unknown
}
