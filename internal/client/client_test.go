package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/triaged/internal/alert"
	"github.com/linnemanlabs/triaged/internal/alert/memstore"
	"github.com/linnemanlabs/triaged/internal/alertapi"
	"github.com/linnemanlabs/triaged/internal/triage"
)

// scripted answers prompts in order and repeats the last response.
type scripted struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (s *scripted) Generate(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], nil
}

// newServer runs the real HTTP API over an in-memory queue. sink is where
// the interview service forwards verdicts; nil means the local store.
func newServer(t *testing.T, responses []string, sink triage.AlertSink) (*httptest.Server, *alert.Store) {
	t.Helper()

	store := alert.NewStore(memstore.New(), log.Nop())
	if sink == nil {
		sink = store
	}
	engine := triage.NewEngine(&scripted{responses: responses}, log.Nop(), triage.EngineHooks{})
	svc := triage.NewService(engine, sink, log.Nop())

	r := chi.NewRouter()
	alertapi.New(log.Nop(), svc, store).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func newClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(srv.URL+"/", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:8080", "http://localhost:8080", false},
		{"https://triage.example.org/", "https://triage.example.org", false},
		{" http://10.0.0.1:9000/api/ ", "http://10.0.0.1:9000/api", false},
		{"localhost:8080", "", true},
		{"ftp://host", "", true},
		{"http://", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		c, err := New(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && c.BaseURL() != tt.want {
			t.Errorf("New(%q).BaseURL() = %q, want %q", tt.in, c.BaseURL(), tt.want)
		}
	}
}

func TestTriage_QuestionThenVerdict(t *testing.T) {
	t.Parallel()

	srv, store := newServer(t, []string{
		"Where is the pain?",
		`{"emergency_index": 90, "priority_label": "critical", "rationale": "chest pain"}`,
	}, nil)
	c := newClient(t, srv)
	ctx := context.Background()

	ehr := json.RawMessage(`{"FIRST":"Ada","LAST":"Lovelace"}`)
	r1, err := c.Triage(ctx, "", ehr, "")
	if err != nil {
		t.Fatalf("Triage 1: %v", err)
	}
	if r1.Done() || r1.NextQuestion != "Where is the pain?" {
		t.Fatalf("reply 1 = %+v", r1)
	}
	if r1.PatientID == "" {
		t.Fatal("server-assigned patient id not returned")
	}

	r2, err := c.Triage(ctx, r1.PatientID, nil, "my chest")
	if err != nil {
		t.Fatalf("Triage 2: %v", err)
	}
	if !r2.Done() {
		t.Fatalf("reply 2 = %+v, want verdict", r2)
	}
	want := triage.Verdict{EmergencyIndex: 90, PriorityLabel: triage.PriorityCritical, Rationale: "chest pain"}
	if *r2.Verdict != want {
		t.Errorf("verdict = %+v, want %+v", *r2.Verdict, want)
	}
	if r2.PatientID != r1.PatientID {
		t.Errorf("patient id = %q, want %q", r2.PatientID, r1.PatientID)
	}

	got := store.List(ctx)
	if len(got) != 1 || got[0].PatientID != r1.PatientID || got[0].Name != "Ada Lovelace" {
		t.Errorf("queued = %+v", got)
	}
}

func TestSubmitAlertsClear(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, []string{"?"}, nil)
	c := newClient(t, srv)
	ctx := context.Background()

	for _, e := range []alert.Entry{
		{PatientID: "p1", Name: "A", Score: 40, Priority: "medium"},
		{PatientID: "p2", Name: "B", Score: 95, Priority: "critical", Rationale: "stroke signs"},
		{PatientID: "p3", Name: "C", Score: 70, Priority: "high"},
	} {
		if err := c.Submit(ctx, &e); err != nil {
			t.Fatalf("Submit %s: %v", e.PatientID, err)
		}
	}

	got, err := c.Alerts(ctx)
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	var ids []string
	for _, e := range got {
		ids = append(ids, e.PatientID)
		if e.Timestamp == "" {
			t.Errorf("entry %s has no timestamp", e.PatientID)
		}
	}
	if strings.Join(ids, ",") != "p2,p3,p1" {
		t.Errorf("order = %v, want p2,p3,p1", ids)
	}
	if got[0].Rationale != "stroke signs" {
		t.Errorf("rationale = %q", got[0].Rationale)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err = c.Alerts(ctx)
	if err != nil {
		t.Fatalf("Alerts after clear: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("after clear = %+v", got)
	}
}

func TestForwardToRemoteStore(t *testing.T) {
	t.Parallel()

	remote, remoteStore := newServer(t, []string{"?"}, nil)
	sink := newClient(t, remote)

	front, frontStore := newServer(t, []string{
		`{"emergency_index": 75, "priority_label": "high", "rationale": "fever"}`,
	}, sink)
	c := newClient(t, front)

	r, err := c.Triage(context.Background(), "pt-9", json.RawMessage(`{"name":"Grace"}`), "")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if !r.Done() {
		t.Fatalf("reply = %+v", r)
	}
	if frontStore.Len() != 0 {
		t.Errorf("front store has %d entries, want 0", frontStore.Len())
	}
	got := remoteStore.List(context.Background())
	if len(got) != 1 || got[0].PatientID != "pt-9" || got[0].Score != 75 || got[0].Name != "Grace" {
		t.Errorf("remote queue = %+v", got)
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"status envelope", http.StatusInternalServerError, `{"status":"error","msg":"Alert queued but not persisted"}`, "Alert queued but not persisted"},
		{"error envelope", http.StatusBadRequest, `{"error":"invalid payload"}`, "invalid payload"},
		{"plain text", http.StatusBadGateway, "upstream down\n", "upstream down"},
		{"empty", http.StatusServiceUnavailable, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			c := newClient(t, srv)
			err := c.Submit(context.Background(), &alert.Entry{PatientID: "x", Score: 1})
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *StatusError", err)
			}
			if se.Code != tt.status || se.Msg != tt.wantMsg {
				t.Errorf("StatusError = %+v, want code %d msg %q", se, tt.status, tt.wantMsg)
			}
		})
	}
}

func TestTriage_UnexpectedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	c := newClient(t, srv)
	if _, err := c.Triage(context.Background(), "p", nil, ""); err == nil {
		t.Fatal("expected error for body without question or verdict")
	}
}

func TestSubmit_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, []string{"?"}, nil)
	c := newClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Submit(ctx, &alert.Entry{PatientID: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
