package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func newInterviewCmd(root *rootOptions) *cobra.Command {
	var (
		ehrPath   string
		patientID string
	)
	cmd := &cobra.Command{
		Use:   "interview",
		Short: "Interview a patient in the terminal until the server reaches a verdict",
		Long: `interview sends the patient's record to the server, prints each follow-up
question and reads the answer from stdin, one line per answer. It ends when
the server returns a verdict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var ehr json.RawMessage
			if ehrPath != "" {
				raw, err := loadEHR(ehrPath)
				if err != nil {
					return err
				}
				ehr = raw
			}
			if patientID == "" {
				patientID = fmt.Sprintf("anon-%d", time.Now().Unix())
			}

			c, err := root.client()
			if err != nil {
				return err
			}
			ctx, cancel := root.commandContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			in := bufio.NewScanner(cmd.InOrStdin())
			interactive := isTerminal(cmd.InOrStdin())

			answer := ""
			for {
				reply, err := c.Triage(ctx, patientID, ehr, answer)
				if err != nil {
					return err
				}
				patientID = reply.PatientID
				// the server reads the record only when the session is created
				ehr = nil

				if reply.Done() {
					v := reply.Verdict
					fmt.Fprintf(out, "\nPatient:         %s\n", patientID)
					fmt.Fprintf(out, "Emergency index: %d\n", v.EmergencyIndex)
					fmt.Fprintf(out, "Priority:        %s\n", v.PriorityLabel)
					fmt.Fprintf(out, "Rationale:       %s\n", v.Rationale)
					return nil
				}

				fmt.Fprintf(out, "Assistant: %s\n", reply.NextQuestion)
				if interactive {
					fmt.Fprint(out, "> ")
				}
				if !in.Scan() {
					if err := in.Err(); err != nil {
						return fmt.Errorf("read answer: %w", err)
					}
					return errors.New("input closed before the interview reached a verdict")
				}
				answer = strings.TrimSpace(in.Text())
			}
		},
	}
	cmd.Flags().StringVar(&ehrPath, "ehr", "", "patient record as a JSON or YAML file")
	cmd.Flags().StringVar(&patientID, "patient-id", "", "patient id (default anon-<unix time>)")
	return cmd
}

// loadEHR reads a JSON or YAML patient record and returns it as JSON.
// YAML is picked by the .yaml or .yml extension.
func loadEHR(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read ehr: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse ehr %s: %w", path, err)
		}
		if doc == nil {
			return nil, fmt.Errorf("parse ehr %s: empty document", path)
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert ehr %s to json: %w", path, err)
		}
		return raw, nil
	default:
		if !json.Valid(data) {
			return nil, fmt.Errorf("parse ehr %s: not valid JSON", path)
		}
		return json.RawMessage(data), nil
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}
