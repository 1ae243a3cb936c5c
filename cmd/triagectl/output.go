package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/triaged/internal/alert"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validFormat(f string) bool {
	switch f {
	case formatTable, formatJSON, formatYAML:
		return true
	}
	return false
}

// alertRow gives alert.Entry stable YAML keys matching its JSON ones.
type alertRow struct {
	PatientID string `yaml:"patient_id"`
	Name      string `yaml:"name"`
	Score     int    `yaml:"score"`
	Priority  string `yaml:"priority"`
	Rationale string `yaml:"rationale"`
	Timestamp string `yaml:"timestamp"`
}

func writeAlerts(w io.Writer, format string, entries []alert.Entry) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case formatYAML:
		rows := make([]alertRow, len(entries))
		for i, e := range entries {
			rows[i] = alertRow(e)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeTable(w, entries)
	}
}

func writeTable(w io.Writer, entries []alert.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No alerts queued.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tPRIORITY\tPATIENT\tNAME\tQUEUED\tRATIONALE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Score, e.Priority, e.PatientID, e.Name, e.Timestamp, truncate(e.Rationale, 60))
	}
	return tw.Flush()
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
