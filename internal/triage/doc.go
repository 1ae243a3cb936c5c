// Package triage provides the business boundary for the patient interview.
// It defines the Service (patient ids, alert hand-off), Engine (per-patient
// session state machine over a text Provider), the verdict extractor, and
// domain models.
package triage
