package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/triaged/internal/alert"
	"github.com/linnemanlabs/triaged/internal/alert/memstore"
	"github.com/linnemanlabs/triaged/internal/alertapi"
	"github.com/linnemanlabs/triaged/internal/triage"
)

// scripted replays responses in order, repeating the last one, and keeps
// the prompts it was given.
type scripted struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
}

func (s *scripted) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.prompts)
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.prompts = append(s.prompts, prompt)
	return s.responses[i], nil
}

func newTestServer(t *testing.T, p *scripted) (*httptest.Server, *alert.Store) {
	t.Helper()
	store := alert.NewStore(memstore.New(), log.Nop())
	engine := triage.NewEngine(p, log.Nop(), triage.EngineHooks{})
	svc := triage.NewService(engine, store, log.Nop())

	r := chi.NewRouter()
	alertapi.New(log.Nop(), svc, store).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

// run executes triagectl against srv and returns stdout.
func run(t *testing.T, srv *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, store *alert.Store, entries ...alert.Entry) {
	t.Helper()
	for _, e := range entries {
		if err := store.Submit(context.Background(), &e); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestAlertsList_Formats(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, &scripted{responses: []string{"?"}})
	seed(t, store,
		alert.Entry{PatientID: "anon-1", Name: "A", Score: 40, Priority: "medium", Rationale: "sprain"},
		alert.Entry{PatientID: "p-2", Name: "B", Score: 91, Priority: "critical", Rationale: "stroke signs"},
	)

	out, err := run(t, srv, "", "alerts", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("table lines = %d, want 3:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "SCORE") || !strings.HasPrefix(lines[1], "91") || !strings.HasPrefix(lines[2], "40") {
		t.Errorf("table not in queue order:\n%s", out)
	}

	out, err = run(t, srv, "", "alerts", "list", "-o", "json")
	if err != nil {
		t.Fatalf("list json: %v", err)
	}
	var entries []alert.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode json output: %v\n%s", err, out)
	}
	if len(entries) != 2 || entries[0].PatientID != "p-2" {
		t.Errorf("json entries = %+v", entries)
	}

	out, err = run(t, srv, "", "alerts", "list", "-o", "yaml")
	if err != nil {
		t.Fatalf("list yaml: %v", err)
	}
	var rows []alertRow
	if err := yaml.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode yaml output: %v\n%s", err, out)
	}
	if len(rows) != 2 || rows[0].PatientID != "p-2" || rows[1].Rationale != "sprain" {
		t.Errorf("yaml rows = %+v", rows)
	}
	if !strings.Contains(out, "patient_id: p-2") {
		t.Errorf("yaml keys should match json names:\n%s", out)
	}
}

func TestAlertsList_Filters(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, &scripted{responses: []string{"?"}})
	seed(t, store,
		alert.Entry{PatientID: "anon-1", Score: 40, Priority: "medium"},
		alert.Entry{PatientID: "anon-2", Score: 80, Priority: "high"},
		alert.Entry{PatientID: "ward3-7", Score: 95, Priority: "critical"},
	)

	out, err := run(t, srv, "", "alerts", "list", "-o", "json", "--patient", "anon-*", "--min-score", "50")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var entries []alert.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].PatientID != "anon-2" {
		t.Errorf("filtered = %+v, want only anon-2", entries)
	}
}

func TestAlertsList_Empty(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &scripted{responses: []string{"?"}})
	out, err := run(t, srv, "", "alerts", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.TrimSpace(out) != "No alerts queued." {
		t.Errorf("out = %q", out)
	}

	out, err = run(t, srv, "", "alerts", "list", "-o", "json")
	if err != nil {
		t.Fatalf("list json: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("json out = %q, want []", out)
	}
}

func TestAlertsList_BadFlags(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &scripted{responses: []string{"?"}})
	if _, err := run(t, srv, "", "alerts", "list", "-o", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := run(t, srv, "", "alerts", "list", "--patient", "anon-[", "-o", "json"); err == nil {
		t.Error("expected error for bad glob")
	}
}

func TestAlertsSubmitAndClear(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, &scripted{responses: []string{"?"}})

	out, err := run(t, srv, "", "alerts", "submit",
		"--patient-id", "walk-in-1", "--name", "Grace", "--score", "77", "--priority", " HIGH ", "--rationale", "deep cut")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if strings.TrimSpace(out) != "Alert queued" {
		t.Errorf("out = %q", out)
	}
	got := store.List(context.Background())
	if len(got) != 1 || got[0].Score != 77 || got[0].Priority != "high" || got[0].Name != "Grace" {
		t.Errorf("queued = %+v", got)
	}

	if _, err := run(t, srv, "", "alerts", "submit", "--patient-id", "x"); err == nil {
		t.Error("submit without --score should fail")
	}

	if _, err := run(t, srv, "", "alerts", "clear"); err == nil {
		t.Error("clear without --yes should fail")
	}
	if store.Len() != 1 {
		t.Fatalf("queue changed without --yes")
	}
	out, err = run(t, srv, "", "alerts", "clear", "--yes")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if strings.TrimSpace(out) != "Queue cleared" || store.Len() != 0 {
		t.Errorf("out = %q, len = %d", out, store.Len())
	}
}

func TestInterview(t *testing.T) {
	t.Parallel()

	p := &scripted{responses: []string{
		"Where does it hurt?",
		"How long has it hurt?",
		`{"emergency_index": 88, "priority_label": "critical", "rationale": "possible MI"}`,
	}}
	srv, store := newTestServer(t, p)

	ehrPath := filepath.Join(t.TempDir(), "patient.yaml")
	if err := os.WriteFile(ehrPath, []byte("FIRST: Ada\nLAST: Lovelace\nconditions:\n  - hypertension\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, srv, "my chest\nabout an hour\n", "interview", "--ehr", ehrPath, "--patient-id", "kiosk-1")
	if err != nil {
		t.Fatalf("interview: %v\n%s", err, out)
	}
	for _, want := range []string{
		"Assistant: Where does it hurt?",
		"Assistant: How long has it hurt?",
		"Emergency index: 88",
		"Priority:        critical",
		"possible MI",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	p.mu.Lock()
	prompts := append([]string(nil), p.prompts...)
	p.mu.Unlock()

	// the answers reach the model in order
	last := prompts[len(prompts)-1]
	if !strings.Contains(last, "my chest") || !strings.Contains(last, "about an hour") {
		t.Errorf("final prompt lacks answers:\n%s", last)
	}
	if !strings.Contains(prompts[0], "hypertension") {
		t.Errorf("first prompt lacks the EHR:\n%s", prompts[0])
	}

	got := store.List(context.Background())
	if len(got) != 1 || got[0].PatientID != "kiosk-1" || got[0].Name != "Ada Lovelace" {
		t.Errorf("queued = %+v", got)
	}
}

func TestInterview_InputClosed(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &scripted{responses: []string{"Any allergies?"}})
	out, err := run(t, srv, "", "interview")
	if err == nil {
		t.Fatal("expected error when stdin closes before a verdict")
	}
	if !strings.Contains(out, "Any allergies?") {
		t.Errorf("question not printed:\n%s", out)
	}
}

func TestLoadEHR(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"json", write("a.json", `{"name":"Ada"}`), `{"name":"Ada"}`, false},
		{"yaml", write("b.yaml", "name: Ada\nage: 36\n"), `{"age":36,"name":"Ada"}`, false},
		{"yml", write("c.yml", "name: Ada\n"), `{"name":"Ada"}`, false},
		{"bad json", write("d.json", `{"name":`), "", true},
		{"empty yaml", write("e.yaml", ""), "", true},
		{"bad yaml", write("f.yaml", "name: [unclosed\n"), "", true},
		{"missing", filepath.Join(dir, "nope.json"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := loadEHR(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadEHR err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && string(got) != tt.want {
				t.Errorf("loadEHR = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFilterAlerts(t *testing.T) {
	t.Parallel()

	entries := []alert.Entry{
		{PatientID: "anon-1", Score: 10},
		{PatientID: "anon-2", Score: 70},
		{PatientID: "ward-1", Score: 90},
	}
	ids := func(es []alert.Entry) string {
		var s []string
		for _, e := range es {
			s = append(s, e.PatientID)
		}
		return strings.Join(s, ",")
	}

	if got := ids(filterAlerts(entries, nil, 0)); got != "anon-1,anon-2,ward-1" {
		t.Errorf("no filter = %s", got)
	}
	if got := ids(filterAlerts(entries, glob.MustCompile("*-1"), 0)); got != "anon-1,ward-1" {
		t.Errorf("glob = %s", got)
	}
	if got := ids(filterAlerts(entries, nil, 70)); got != "anon-2,ward-1" {
		t.Errorf("min score = %s", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate(strings.Repeat("é", 20), 10); got != strings.Repeat("é", 7)+"..." {
		t.Errorf("truncate runes = %q", got)
	}
}
