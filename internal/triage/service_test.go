package triage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/triaged/internal/alert"
)

// mockSink records submitted alerts.
type mockSink struct {
	mu      sync.Mutex
	entries []alert.Entry
	err     error
}

func (m *mockSink) Submit(ctx context.Context, e *alert.Entry) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return m.err
}

func (m *mockSink) submitted() []alert.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]alert.Entry(nil), m.entries...)
}

func verdictProvider(idx int, label string) Provider {
	return ProviderFunc(func(context.Context, string) (string, error) {
		b, _ := json.Marshal(map[string]any{
			"emergency_index": idx,
			"priority_label":  label,
			"rationale":       "scripted",
		})
		return string(b), nil
	})
}

func TestTriage_GeneratesPatientID(t *testing.T) {
	t.Parallel()

	svc := NewService(NewEngine(&mockProvider{fallback: "Q?"}, log.Nop(), EngineHooks{}), nil, log.Nop())

	req := &Request{Answer: "hello"}
	out := svc.Triage(context.Background(), req)
	if out.PatientID == "" {
		t.Fatal("expected generated patient id")
	}
	if req.PatientID != out.PatientID {
		t.Errorf("request id %q != outcome id %q", req.PatientID, out.PatientID)
	}

	other := svc.Triage(context.Background(), &Request{Answer: "hello"})
	if other.PatientID == out.PatientID {
		t.Error("generated ids should be unique")
	}
}

func TestTriage_Threshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		index     int
		threshold int
		forwarded bool
	}{
		{"above", 92, 60, true},
		{"equal", 60, 60, true},
		{"below", 59, 60, false},
		{"zero threshold", 0, 0, true},
		{"custom threshold", 80, 85, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sink := &mockSink{}
			eng := NewEngine(verdictProvider(tt.index, "high"), log.Nop(), EngineHooks{})
			svc := NewService(eng, sink, log.Nop(), WithThreshold(tt.threshold))

			out := svc.Triage(context.Background(), &Request{PatientID: "p-1", Answer: "x"})
			if !out.Done() {
				t.Fatal("expected verdict")
			}
			if got := len(sink.submitted()) == 1; got != tt.forwarded {
				t.Errorf("forwarded = %v, want %v", got, tt.forwarded)
			}
		})
	}
}

func TestTriage_ForwardedEntry(t *testing.T) {
	t.Parallel()

	sink := &mockSink{}
	eng := NewEngine(verdictProvider(92, "critical"), log.Nop(), EngineHooks{})
	svc := NewService(eng, sink, log.Nop())

	svc.Triage(context.Background(), &Request{
		PatientID: "p-42",
		Context:   json.RawMessage(`{"FIRST":"Ada","LAST":"Lovelace"}`),
		Answer:    "chest pain",
	})

	got := sink.submitted()
	if len(got) != 1 {
		t.Fatalf("submitted = %d, want 1", len(got))
	}
	want := alert.Entry{
		PatientID: "p-42",
		Name:      "Ada Lovelace",
		Score:     92,
		Priority:  "critical",
		Rationale: "scripted",
	}
	if got[0] != want {
		t.Errorf("entry = %+v, want %+v", got[0], want)
	}
}

func TestTriage_QuestionNotForwarded(t *testing.T) {
	t.Parallel()

	sink := &mockSink{}
	svc := NewService(NewEngine(&mockProvider{fallback: "How are you?"}, log.Nop(), EngineHooks{}), sink, log.Nop())

	out := svc.Triage(context.Background(), &Request{PatientID: "p-1"})
	if out.Done() {
		t.Fatal("expected question")
	}
	if len(sink.submitted()) != 0 {
		t.Error("question must not be forwarded")
	}
}

func TestTriage_FallbackForwarded(t *testing.T) {
	t.Parallel()

	sink := &mockSink{}
	eng := NewEngine(&mockProvider{fallback: "hmm"}, log.Nop(), EngineHooks{}, WithMaxTurns(1))
	svc := NewService(eng, sink, log.Nop())

	svc.Triage(context.Background(), &Request{PatientID: "p-1"})
	out := svc.Triage(context.Background(), &Request{PatientID: "p-1", Answer: "?"})
	if out.Path != PathFallback {
		t.Fatalf("path = %q, want fallback", out.Path)
	}

	// fallback index 65 clears the default threshold
	got := sink.submitted()
	if len(got) != 1 || got[0].Score != 65 || got[0].Priority != "medium" {
		t.Errorf("submitted = %+v", got)
	}
}

func TestTriage_SinkErrorDoesNotFailRequest(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	sink := &mockSink{err: errors.New("store down")}
	eng := NewEngine(verdictProvider(90, "critical"), log.Nop(), m.Hooks())
	svc := NewService(eng, sink, log.Nop(), WithMetrics(m))

	out := svc.Triage(context.Background(), &Request{PatientID: "p-1"})
	if !out.Done() || out.Verdict.EmergencyIndex != 90 {
		t.Fatalf("outcome = %+v", out)
	}
	if v := testutil.ToFloat64(m.ForwardsTotal.WithLabelValues("error")); v != 1 {
		t.Errorf("forwards{error} = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("extracted")); v != 1 {
		t.Errorf("verdicts{extracted} = %v, want 1", v)
	}
}

func TestTriage_CancelledRequestStillForwards(t *testing.T) {
	t.Parallel()

	sink := &mockSink{}
	var cancel context.CancelFunc
	p := ProviderFunc(func(context.Context, string) (string, error) {
		// request goes away after the backend answered
		cancel()
		return verdictJSON, nil
	})
	svc := NewService(NewEngine(p, log.Nop(), EngineHooks{}), sink, log.Nop())

	var ctx context.Context
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	svc.Triage(ctx, &Request{PatientID: "p-1"})
	if len(sink.submitted()) != 1 {
		t.Error("verdict dropped after request cancellation")
	}
}

func TestTriage_NilSink(t *testing.T) {
	t.Parallel()

	svc := NewService(NewEngine(verdictProvider(99, "critical"), log.Nop(), EngineHooks{}), nil, nil)
	if out := svc.Triage(context.Background(), &Request{PatientID: "p"}); !out.Done() {
		t.Fatal("expected verdict")
	}
}

func TestPatientName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ehr  string
		want string
	}{
		{"flat name", `{"name":"Grace Hopper"}`, "Grace Hopper"},
		{"patient_name", `{"patient_name":" Alan Turing "}`, "Alan Turing"},
		{"nested", `{"patient":{"name":"Edsger"}}`, "Edsger"},
		{"synthea parts", `{"FIRST":"Ada","LAST":"Lovelace"}`, "Ada Lovelace"},
		{"first only", `{"first_name":"Ada"}`, "Ada"},
		{"nested parts", `{"patient":{"FIRST":"Ken","LAST":"Thompson"}}`, "Ken Thompson"},
		{"name not string", `{"name":{"given":"x"}}`, alert.Unknown},
		{"no name", `{"age":42}`, alert.Unknown},
		{"empty", ``, alert.Unknown},
		{"invalid json", `{`, alert.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := PatientName([]byte(tt.ehr)); got != tt.want {
				t.Errorf("PatientName(%s) = %q, want %q", tt.ehr, got, tt.want)
			}
		})
	}
}

func TestNewService_NilEnginePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil engine")
		}
	}()
	NewService(nil, nil, nil)
}
