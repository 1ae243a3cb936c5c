package alertapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/linnemanlabs/triaged/internal/alert"
)

func (a *API) handleAlert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.bodyError(w, r, err)
		return
	}

	e, err := parseAlert(body)
	if err != nil {
		a.logger.Info(r.Context(), "rejected alert payload", "reason", err.Error())
		writeStatus(w, http.StatusBadRequest, "error", err.Error())
		return
	}

	if err := a.alerts.Submit(r.Context(), e); err != nil {
		if errors.Is(err, alert.ErrStale) {
			writeStatus(w, http.StatusInternalServerError, "error", "Alert queued but not persisted")
			return
		}
		a.logger.Error(r.Context(), err, "alert submit failed")
		writeStatus(w, http.StatusInternalServerError, "error", "Alert not queued")
		return
	}

	writeStatus(w, http.StatusOK, "ok", "Alert queued")
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.alerts.List(r.Context()))
}

func (a *API) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := a.alerts.Clear(r.Context()); err != nil {
		writeStatus(w, http.StatusInternalServerError, "error", "Queue cleared but not persisted")
		return
	}
	writeStatus(w, http.StatusOK, "ok", "Queue cleared")
}

var errNoData = errors.New("No data received") //nolint:staticcheck // wire message

// parseAlert turns an /alert payload into an entry. Absent identity fields
// become "unknown"; the timestamp is left for the store to assign.
func parseAlert(body []byte) (*alert.Entry, error) {
	if !gjson.ValidBytes(body) {
		return nil, errNoData
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() || len(doc.Map()) == 0 {
		return nil, errNoData
	}

	score, err := parseScore(doc.Get("score"))
	if err != nil {
		return nil, err
	}

	return &alert.Entry{
		PatientID: stringOr(doc.Get("patient_id"), alert.Unknown),
		Name:      stringOr(doc.Get("name"), alert.Unknown),
		Score:     score,
		Priority:  stringOr(doc.Get("priority"), alert.Unknown),
		Rationale: stringOr(doc.Get("rationale"), ""),
	}, nil
}

// stringOr renders scalars as text; missing, null, empty or structured
// values fall back to def.
func stringOr(r gjson.Result, def string) string {
	switch r.Type {
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		if s := strings.TrimSpace(r.String()); s != "" {
			return s
		}
	}
	return def
}

// parseScore accepts a JSON number or numeric string, dropping any
// fractional part. A missing score is zero.
func parseScore(r gjson.Result) (int, error) {
	var f float64
	switch r.Type {
	case gjson.Null:
		return 0, nil
	case gjson.Number:
		f = r.Float()
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid score %q", r.Str)
		}
		f = v
	default:
		return 0, fmt.Errorf("invalid score %s", r.Raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("score out of range: %s", r.Raw)
	}
	return int(f), nil
}

// flexString decodes a JSON string or number into text. Clients send
// patient ids both ways.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	r := gjson.ParseBytes(b)
	switch r.Type {
	case gjson.Null:
		*s = ""
	case gjson.String:
		*s = flexString(r.Str)
	case gjson.Number:
		*s = flexString(r.Raw)
	default:
		return fmt.Errorf("patient_id: want string or number, got %s", r.Raw)
	}
	return nil
}

var _ json.Unmarshaler = (*flexString)(nil)
