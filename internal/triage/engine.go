// internal/triage/engine.go
package triage

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

const (
	DefaultMaxTurns       = 5
	DefaultBackendTimeout = 60 * time.Second

	// fallbackQuestion is asked when the backend returns nothing usable
	// while questions remain.
	fallbackQuestion = "Can you tell me more about how you are feeling right now?"

	tracerName = "github.com/linnemanlabs/triaged/internal/triage"
)

// EngineHooks are optional callbacks fired during an interview. Nil fields
// are skipped.
type EngineHooks struct {
	OnSessionStart func()
	OnSessionEnd   func()
	OnQuestion     func()
	OnBackendCall  func(outcome string, duration float64)
	OnVerdict      func(path VerdictPath, v Verdict)
}

// Engine runs the bounded interview protocol. Each patient id maps to at
// most one live session; requests for the same id are serialized and
// requests for different ids run in parallel.
type Engine struct {
	provider Provider
	sessions *sessionStore
	logger   log.Logger
	hooks    EngineHooks

	maxTurns int
	timeout  time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxTurns caps the number of questions asked before a verdict is forced.
func WithMaxTurns(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxTurns = n
		}
	}
}

// WithBackendTimeout bounds each backend call.
func WithBackendTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine creates a new interview engine over the given provider.
func NewEngine(provider Provider, logger log.Logger, hooks EngineHooks, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	e := &Engine{
		provider: provider,
		sessions: newSessionStore(),
		logger:   logger,
		hooks:    hooks,
		maxTurns: DefaultMaxTurns,
		timeout:  DefaultBackendTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// MaxTurns returns the configured question cap.
func (e *Engine) MaxTurns() int { return e.maxTurns }

// ActiveSessions returns the number of interviews in progress.
func (e *Engine) ActiveSessions() int { return e.sessions.len() }

// Advance moves the patient's session forward by one step. It never
// returns an error: backend failures degrade to an empty response and,
// past the question cap, to the fallback verdict.
func (e *Engine) Advance(ctx context.Context, req *Request) *Outcome {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "triage.advance", trace.WithAttributes(
		attribute.String("triaged.patient.id", req.PatientID),
	))
	defer span.End()

	sess, created := e.sessions.acquire(req.PatientID, req.Context)
	defer sess.mu.Unlock()

	L := e.logger.With("patient_id", req.PatientID)

	if created {
		L.Info(ctx, "session started")
		if e.hooks.OnSessionStart != nil {
			e.hooks.OnSessionStart()
		}
	}

	if answer := strings.TrimSpace(req.Answer); answer != "" {
		sess.history = append(sess.history, Turn{Speaker: SpeakerPatient, Text: answer})
	}

	raw := ""
	if prompt, err := buildPrompt(sess, e.maxTurns); err != nil {
		L.Error(ctx, err, "build prompt failed")
	} else {
		raw = e.generate(ctx, L, prompt, "interview")
	}

	if v, ok := Extract(raw); ok {
		return e.finish(ctx, L, sess, v, PathExtracted)
	}

	if sess.assistantTurns < e.maxTurns {
		question := strings.TrimSpace(raw)
		if question == "" {
			question = fallbackQuestion
		}
		sess.history = append(sess.history, Turn{Speaker: SpeakerAssistant, Text: question})
		sess.assistantTurns++

		if e.hooks.OnQuestion != nil {
			e.hooks.OnQuestion()
		}
		span.SetAttributes(attribute.Int("triaged.assistant_turns", sess.assistantTurns))
		L.Info(ctx, "question asked", "assistant_turns", sess.assistantTurns)

		return &Outcome{
			PatientID:      sess.patientID,
			NextQuestion:   question,
			AssistantTurns: sess.assistantTurns,
		}
	}

	// cap reached without a verdict, one last forced attempt
	L.Warn(ctx, "question cap reached, forcing verdict", "max_turns", e.maxTurns)
	raw = ""
	if prompt, err := buildFinalPrompt(sess); err != nil {
		L.Error(ctx, err, "build final prompt failed")
	} else {
		raw = e.generate(ctx, L, prompt, "final")
	}
	if v, ok := Extract(raw); ok {
		return e.finish(ctx, L, sess, v, PathForced)
	}
	return e.finish(ctx, L, sess, FallbackVerdict, PathFallback)
}

// generate calls the provider under the backend timeout. Any failure is
// logged and reported as empty output.
func (e *Engine) generate(ctx context.Context, L log.Logger, prompt, kind string) string {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "triage.backend", trace.WithAttributes(
		attribute.String("triaged.prompt.kind", kind),
		attribute.Int("triaged.prompt.bytes", len(prompt)),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	out, err := e.provider.Generate(callCtx, prompt)
	dur := time.Since(start).Seconds()

	outcome := "ok"
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	case strings.TrimSpace(out) == "":
		outcome = "empty"
	}
	if e.hooks.OnBackendCall != nil {
		e.hooks.OnBackendCall(outcome, dur)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		L.Error(ctx, err, "backend call failed", "kind", kind, "duration", dur)
		return ""
	}
	span.SetAttributes(attribute.Int("triaged.response.bytes", len(out)))
	return out
}

// finish terminates the session and builds the verdict outcome. Must be
// called with sess.mu held.
func (e *Engine) finish(ctx context.Context, L log.Logger, sess *session, v Verdict, path VerdictPath) *Outcome {
	e.sessions.terminate(sess)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("triaged.verdict.path", string(path)),
		attribute.Int("triaged.verdict.emergency_index", v.EmergencyIndex),
		attribute.String("triaged.verdict.priority", string(v.PriorityLabel)),
	)

	if e.hooks.OnVerdict != nil {
		e.hooks.OnVerdict(path, v)
	}
	if e.hooks.OnSessionEnd != nil {
		e.hooks.OnSessionEnd()
	}

	L.Info(ctx, "verdict reached",
		"path", path,
		"emergency_index", v.EmergencyIndex,
		"priority", v.PriorityLabel,
		"assistant_turns", sess.assistantTurns,
	)

	verdict := v
	return &Outcome{
		PatientID:      sess.patientID,
		Verdict:        &verdict,
		Path:           path,
		AssistantTurns: sess.assistantTurns,
		Context:        cloneRaw(sess.context),
	}
}
