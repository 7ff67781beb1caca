// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deviation

import (
	"reflect"
	"testing"
)

func TestRiskLevelOrdering(t *testing.T) {
	ordered := []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
	for i, lower := range ordered {
		for j, higher := range ordered {
			got := higher.AtLeast(lower)
			want := j >= i
			if got != want {
				t.Errorf("%s.AtLeast(%s) = %v, want %v", higher, lower, got, want)
			}
		}
	}
}

func TestParseRiskLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected RiskLevel
		wantErr  bool
	}{
		{"low", RiskLow, false},
		{"HIGH", RiskHigh, false},
		{" Critical ", RiskCritical, false},
		{"medium", RiskMedium, false},
		{"severe", "", true},
		{"", "", true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseRiskLevel(test.input)
			if test.wantErr {
				if err == nil {
					t.Fatalf("ParseRiskLevel(%q) accepted invalid input", test.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRiskLevel(%q): %v", test.input, err)
			}
			if level != test.expected {
				t.Errorf("ParseRiskLevel(%q) = %q, want %q", test.input, level, test.expected)
			}
		})
	}
}

func TestFilterThresholdBoundary(t *testing.T) {
	events := []Event{
		{ID: "e-1", Kind: KindAnomaly, Risk: RiskLow, OccurredAt: "2026-03-01T10:00:00Z"},
		{ID: "e-2", Kind: KindAnomaly, Risk: RiskMedium, OccurredAt: "2026-03-01T10:01:00Z"},
		{ID: "e-3", Kind: KindToolError, Risk: RiskHigh, OccurredAt: "2026-03-01T10:02:00Z"},
		{ID: "e-4", Kind: KindGuardrailTrip, Risk: RiskCritical, OccurredAt: "2026-03-01T10:03:00Z"},
	}

	report := Filter(events, RiskHigh)

	var ids []string
	for _, event := range report.Events {
		ids = append(ids, event.ID)
		if !event.Risk.AtLeast(RiskHigh) {
			t.Errorf("event %s below threshold leaked into report", event.ID)
		}
	}
	if !reflect.DeepEqual(ids, []string{"e-3", "e-4"}) {
		t.Errorf("retained = %v, want [e-3 e-4]", ids)
	}
	if report.TotalObserved != 4 {
		t.Errorf("TotalObserved = %d, want 4", report.TotalObserved)
	}
}

func TestFilterInterventionCountIgnoresThreshold(t *testing.T) {
	events := []Event{
		{ID: "e-1", Kind: KindHumanIntervention, Risk: RiskLow, OccurredAt: "2026-03-01T10:00:00Z"},
		{ID: "e-2", Kind: KindHumanIntervention, Risk: RiskCritical, OccurredAt: "2026-03-01T10:01:00Z"},
		{ID: "e-3", Kind: KindAnomaly, Risk: RiskCritical, OccurredAt: "2026-03-01T10:02:00Z"},
	}

	report := Filter(events, RiskCritical)

	if report.InterventionCount != 2 {
		t.Errorf("InterventionCount = %d, want 2 (below-threshold interventions still count)", report.InterventionCount)
	}

	// Only the critical intervention is in the retained list.
	var ids []string
	for _, event := range report.Events {
		ids = append(ids, event.ID)
	}
	if !reflect.DeepEqual(ids, []string{"e-2", "e-3"}) {
		t.Errorf("retained = %v, want [e-2 e-3]", ids)
	}
}

func TestFilterOrdersByTimestampThenID(t *testing.T) {
	events := []Event{
		{ID: "late", Kind: KindAnomaly, Risk: RiskHigh, OccurredAt: "2026-03-01T12:00:00Z"},
		{ID: "b-tie", Kind: KindAnomaly, Risk: RiskHigh, OccurredAt: "2026-03-01T11:00:00Z"},
		{ID: "early", Kind: KindAnomaly, Risk: RiskHigh, OccurredAt: "2026-03-01T10:00:00Z"},
		{ID: "a-tie", Kind: KindAnomaly, Risk: RiskHigh, OccurredAt: "2026-03-01T11:00:00Z"},
	}

	report := Filter(events, RiskLow)

	var ids []string
	for _, event := range report.Events {
		ids = append(ids, event.ID)
	}
	want := []string{"early", "a-tie", "b-tie", "late"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestFilterDeterministicUnderPermutation(t *testing.T) {
	events := []Event{
		{ID: "e-1", Kind: KindAnomaly, Risk: RiskHigh, OccurredAt: "2026-03-01T10:00:00Z"},
		{ID: "e-2", Kind: KindToolError, Risk: RiskCritical, OccurredAt: "2026-03-01T09:00:00Z"},
		{ID: "e-3", Kind: KindGuardrailTrip, Risk: RiskHigh, OccurredAt: "2026-03-01T10:00:00Z"},
	}
	reversed := make([]Event, len(events))
	for i, event := range events {
		reversed[len(events)-1-i] = event
	}

	first := Filter(events, RiskLow)
	second := Filter(reversed, RiskLow)
	if !reflect.DeepEqual(first.Events, second.Events) {
		t.Errorf("permuted input produced different reports:\nfirst:  %v\nsecond: %v", first.Events, second.Events)
	}
}

func TestFilterEmptyInput(t *testing.T) {
	report := Filter(nil, RiskLow)
	if report.Events != nil {
		t.Errorf("Events = %v, want nil", report.Events)
	}
	if report.InterventionCount != 0 || report.TotalObserved != 0 {
		t.Errorf("counts = %d/%d, want 0/0", report.InterventionCount, report.TotalObserved)
	}
}

func TestUnknownRiskNeverMeetsThreshold(t *testing.T) {
	events := []Event{
		{ID: "e-1", Kind: KindAnomaly, Risk: "severe", OccurredAt: "2026-03-01T10:00:00Z"},
	}
	report := Filter(events, RiskLow)
	if len(report.Events) != 0 {
		t.Errorf("unknown risk level passed the threshold: %v", report.Events)
	}
}
