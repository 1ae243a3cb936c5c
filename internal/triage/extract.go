package triage

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// fenceRE matches a Markdown code fence marker with its optional language tag.
var fenceRE = regexp.MustCompile("```[A-Za-z0-9_+-]*")

// Extract scans raw model output for the first JSON object that carries an
// emergency index and a priority label and converts it into a Verdict.
// Code fences are ignored. Returns false when no candidate qualifies.
func Extract(raw string) (Verdict, bool) {
	s := fenceRE.ReplaceAllString(raw, "")

	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		var obj json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[i:])).Decode(&obj); err != nil {
			continue
		}
		if v, ok := verdictFromObject(obj); ok {
			return v, true
		}
	}
	return Verdict{}, false
}

func verdictFromObject(obj json.RawMessage) (Verdict, bool) {
	doc := gjson.ParseBytes(obj)
	if !doc.IsObject() {
		return Verdict{}, false
	}

	idxField := firstExisting(doc, "emergency_index", "emergencyIndex")
	labelField := firstExisting(doc, "priority_label", "priorityLabel")
	if !idxField.Exists() || !labelField.Exists() {
		return Verdict{}, false
	}

	idx, ok := parseIndex(idxField)
	if !ok {
		return Verdict{}, false
	}

	return Verdict{
		EmergencyIndex: idx,
		PriorityLabel:  normalizeLabel(labelField.String(), idx),
		Rationale:      doc.Get("rationale").String(),
	}, true
}

func firstExisting(doc gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := doc.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

// parseIndex accepts a JSON number or a numeric string and clamps it to [0,100].
func parseIndex(r gjson.Result) (int, bool) {
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Float()
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		f = v
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return clampIndex(int(math.Round(math.Max(math.Min(f, 1e6), -1e6)))), true
}

func clampIndex(n int) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	default:
		return n
	}
}

// normalizeLabel lower-cases a known label, or derives one from the index.
func normalizeLabel(label string, idx int) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(label))); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p
	}
	return LabelForIndex(idx)
}

// LabelForIndex maps an emergency index onto the coarse priority scale.
func LabelForIndex(idx int) Priority {
	switch {
	case idx >= 85:
		return PriorityCritical
	case idx >= 60:
		return PriorityHigh
	case idx >= 30:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
