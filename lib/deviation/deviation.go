// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package deviation filters operational deviation events against a
// configured risk threshold and tallies human interventions for the
// audit package.
package deviation

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// RiskLevel is the ordered severity of a deviation event:
// low < medium < high < critical.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// rank returns the ordering position of the level, or -1 for unknown
// values so they never satisfy a threshold.
func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return -1
}

// IsKnown reports whether r is one of the defined RiskLevel values.
func (r RiskLevel) IsKnown() bool { return r.rank() >= 0 }

// AtLeast reports whether r meets or exceeds the threshold.
func (r RiskLevel) AtLeast(threshold RiskLevel) bool {
	return r.rank() >= threshold.rank()
}

// ParseRiskLevel converts a string to a RiskLevel. Matching is
// case-insensitive so configuration values like "HIGH" parse.
func ParseRiskLevel(s string) (RiskLevel, error) {
	level := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !level.IsKnown() {
		return "", fmt.Errorf("unknown risk level %q (expected low, medium, high, or critical)", s)
	}
	return level, nil
}

// Kind classifies what happened in a deviation event.
type Kind string

const (
	// KindAnomaly is behavior outside the agent's expected envelope.
	KindAnomaly Kind = "anomaly"

	// KindGuardrailTrip is a safety guardrail refusing or rewriting an
	// action.
	KindGuardrailTrip Kind = "guardrail_trip"

	// KindToolError is a tool invocation that returned an error.
	KindToolError Kind = "tool_error"

	// KindHumanIntervention is an operator stepping into the session.
	// Interventions are always counted, even below the risk threshold.
	KindHumanIntervention Kind = "human_intervention"
)

// IsKnown reports whether k is one of the defined Kind values.
func (k Kind) IsKnown() bool {
	switch k {
	case KindAnomaly, KindGuardrailTrip, KindToolError, KindHumanIntervention:
		return true
	}
	return false
}

// Event is a single recorded deviation.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Kind      Kind      `json:"kind"`
	Risk      RiskLevel `json:"risk"`
	Summary   string    `json:"summary,omitempty"`
	Detail    string    `json:"detail,omitempty"`

	// OccurredAt is an RFC 3339 UTC timestamp. Intake validates and
	// normalizes it; this package only orders by it.
	OccurredAt string `json:"occurred_at"`
}

// Report is the deviation section of an audit package.
type Report struct {
	// Threshold is the minimum risk level an event needed to be
	// retained.
	Threshold RiskLevel `json:"threshold"`

	// Events holds the retained events in ascending timestamp order
	// (event id breaks ties).
	Events []Event `json:"events,omitempty"`

	// InterventionCount counts every human_intervention event
	// observed, including those below the threshold.
	InterventionCount int `json:"intervention_count"`

	// TotalObserved is the pre-filter event count.
	TotalObserved int `json:"total_observed"`
}

// Filter retains events at or above the threshold, ordered by
// timestamp ascending with event id as the tie-break so the result is
// deterministic regardless of input order. Human interventions are
// tallied across all input events, not just the retained ones.
func Filter(events []Event, threshold RiskLevel) Report {
	report := Report{
		Threshold:     threshold,
		TotalObserved: len(events),
	}

	for _, event := range events {
		if event.Kind == KindHumanIntervention {
			report.InterventionCount++
		}
		if event.Risk.AtLeast(threshold) {
			report.Events = append(report.Events, event)
		}
	}

	slices.SortStableFunc(report.Events, func(a, b Event) int {
		if c := compareTimestamps(a.OccurredAt, b.OccurredAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return report
}

// compareTimestamps orders RFC 3339 timestamps chronologically.
// Unparseable values (which intake rejects before this runs) sort
// first.
func compareTimestamps(a, b string) int {
	timeA, _ := time.Parse(time.RFC3339Nano, a)
	timeB, _ := time.Parse(time.RFC3339Nano, b)
	return timeA.Compare(timeB)
}
