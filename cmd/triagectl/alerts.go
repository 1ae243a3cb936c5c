package main

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/linnemanlabs/triaged/internal/alert"
)

func newAlertsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and manage the priority alert queue",
	}
	cmd.AddCommand(
		newAlertsListCmd(root),
		newAlertsClearCmd(root),
		newAlertsSubmitCmd(root),
	)
	return cmd
}

func newAlertsListCmd(root *rootOptions) *cobra.Command {
	var (
		output   string
		patient  string
		minScore int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued alerts, most urgent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !validFormat(output) {
				return fmt.Errorf("unknown output format %q (want table, json or yaml)", output)
			}
			var match glob.Glob
			if patient != "" {
				g, err := glob.Compile(patient)
				if err != nil {
					return fmt.Errorf("invalid --patient pattern %q: %w", patient, err)
				}
				match = g
			}

			c, err := root.client()
			if err != nil {
				return err
			}
			ctx, cancel := root.commandContext(cmd)
			defer cancel()

			entries, err := c.Alerts(ctx)
			if err != nil {
				return err
			}
			return writeAlerts(cmd.OutOrStdout(), output, filterAlerts(entries, match, minScore))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	cmd.Flags().StringVar(&patient, "patient", "", "only show patient ids matching this glob, e.g. 'anon-*'")
	cmd.Flags().IntVar(&minScore, "min-score", 0, "only show alerts with at least this emergency index")
	return cmd
}

// filterAlerts keeps queue order. A nil glob matches everything.
func filterAlerts(entries []alert.Entry, match glob.Glob, minScore int) []alert.Entry {
	out := make([]alert.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Score < minScore {
			continue
		}
		if match != nil && !match.Match(e.PatientID) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func newAlertsClearCmd(root *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every alert from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the queue without --yes")
			}
			c, err := root.client()
			if err != nil {
				return err
			}
			ctx, cancel := root.commandContext(cmd)
			defer cancel()

			if err := c.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm clearing the queue")
	return cmd
}

func newAlertsSubmitCmd(root *rootOptions) *cobra.Command {
	var e alert.Entry
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue an alert by hand, e.g. for a walk-in patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("score") {
				return fmt.Errorf("--score is required")
			}
			e.Priority = strings.ToLower(strings.TrimSpace(e.Priority))

			c, err := root.client()
			if err != nil {
				return err
			}
			ctx, cancel := root.commandContext(cmd)
			defer cancel()

			if err := c.Submit(ctx, &e); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Alert queued")
			return nil
		},
	}
	cmd.Flags().StringVar(&e.PatientID, "patient-id", "", "patient id (server default: unknown)")
	cmd.Flags().StringVar(&e.Name, "name", "", "patient name (server default: unknown)")
	cmd.Flags().IntVar(&e.Score, "score", 0, "emergency index, 0..100")
	cmd.Flags().StringVar(&e.Priority, "priority", "", "low, medium, high or critical")
	cmd.Flags().StringVar(&e.Rationale, "rationale", "", "why the patient needs attention")
	return cmd
}
