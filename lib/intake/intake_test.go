// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intake

import (
	"errors"
	"strings"
	"testing"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/coverage"
	"github.com/bureau-foundation/attest/lib/deviation"
	"github.com/bureau-foundation/attest/lib/inventory"
	"github.com/bureau-foundation/attest/lib/transcript"
)

func boolPtr(v bool) *bool { return &v }

func validSubmission() Submission {
	return Submission{
		Subject: audit.Subject{
			Agent:       "triage-bot",
			Version:     "2.4.0",
			Model:       "meta-llama-3",
			ModelDigest: "sha256:abc123def456",
		},
		Requirements: []Requirement{
			{ID: "1.1", Title: "No PII in logs", Critical: boolPtr(true)},
			{ID: "2.3", Title: "Guardrails active"},
		},
		TestResults: []coverage.TestResult{
			{TestID: "T-100", Outcome: coverage.OutcomePassed},
			{TestID: "T-102", Outcome: coverage.OutcomeFailed, Detail: "redaction miss"},
		},
		Links: []coverage.Link{
			{RequirementID: "1.1", TestID: "T-100"},
			{RequirementID: "2.3", TestID: "T-102"},
		},
		Inventory: []inventory.Component{
			{Kind: inventory.KindModel, Identifier: "meta-llama-3", Version: "3.0"},
		},
		Deviations: []deviation.Event{
			{ID: "dev-1", SessionID: "sess-1", Kind: deviation.KindAnomaly,
				Risk: deviation.RiskHigh, Summary: "odd tool order", OccurredAt: "2026-02-28T09:00:00Z"},
		},
		SessionEvents: []transcript.Event{
			{SessionID: "sess-1", SequenceNo: 1, Phase: transcript.PhaseInput, Content: "classify"},
			{SessionID: "sess-1", SequenceNo: 2, Phase: transcript.PhaseOutcome, Content: "done"},
		},
		Annotations: []transcript.Annotation{
			{SessionID: "sess-1", SequenceNo: 2, Label: "reviewed", Author: "reviewer-a",
				CreatedAt: "2026-03-01T08:00:00Z"},
		},
	}
}

func TestValidateAcceptsCompleteSubmission(t *testing.T) {
	submission := validSubmission()
	if err := submission.Validate(); err != nil {
		t.Errorf("Validate on a complete submission: %v", err)
	}
}

func TestValidateAggregatesAllProblems(t *testing.T) {
	submission := validSubmission()
	submission.Subject.Agent = ""
	submission.Requirements = append(submission.Requirements, Requirement{ID: "1.1", Title: "duplicate"})
	submission.TestResults[1].Outcome = "maybe"
	submission.Links = append(submission.Links, coverage.Link{RequirementID: "9.9", TestID: "T-100"})

	err := submission.Validate()
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("Validate = %v, want *ValidationError", err)
	}

	if len(validation.Problems) != 4 {
		t.Errorf("got %d problems, want 4: %v", len(validation.Problems), validation.Problems)
	}
	joined := err.Error()
	for _, fragment := range []string{
		"subject: agent is required",
		`requirements[2]: duplicate id "1.1"`,
		`test_results[1]: unknown outcome "maybe"`,
		`links[2]: references requirement "9.9"`,
	} {
		if !strings.Contains(joined, fragment) {
			t.Errorf("error %q is missing %q", joined, fragment)
		}
	}
}

func TestValidateRejectsDuplicateTurn(t *testing.T) {
	submission := validSubmission()
	submission.SessionEvents = append(submission.SessionEvents,
		transcript.Event{SessionID: "sess-1", SequenceNo: 2, Phase: transcript.PhaseAction, Content: "again"})

	err := submission.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate turn") {
		t.Errorf("Validate = %v, want duplicate turn problem", err)
	}
}

func TestValidateRejectsNegativeSequence(t *testing.T) {
	submission := validSubmission()
	submission.SessionEvents[0].SequenceNo = -1
	submission.Annotations[0].SequenceNo = -3

	err := submission.Validate()
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("Validate = %v, want *ValidationError", err)
	}
	if len(validation.Problems) != 2 {
		t.Errorf("got %d problems, want 2: %v", len(validation.Problems), validation.Problems)
	}
}

func TestValidateRejectsUnknownEnums(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Submission)
		want   string
	}{
		{
			name:   "phase",
			mutate: func(s *Submission) { s.SessionEvents[0].Phase = "observation" },
			want:   "unknown phase",
		},
		{
			name:   "deviation kind",
			mutate: func(s *Submission) { s.Deviations[0].Kind = "surprise" },
			want:   "unknown kind",
		},
		{
			name:   "risk level",
			mutate: func(s *Submission) { s.Deviations[0].Risk = "extreme" },
			want:   "unknown risk level",
		},
		{
			name:   "inventory kind",
			mutate: func(s *Submission) { s.Inventory[0].Kind = "firmware" },
			want:   "unknown kind",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			submission := validSubmission()
			tc.mutate(&submission)
			err := submission.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate = %v, want problem containing %q", err, tc.want)
			}
		})
	}
}

func TestValidateAllowsLinkToTestWithoutResult(t *testing.T) {
	// A linked test with no recorded result is a legitimate submission;
	// coverage treats it as a synthetic failure rather than rejecting it.
	submission := validSubmission()
	submission.Links = append(submission.Links, coverage.Link{RequirementID: "1.1", TestID: "T-999"})

	if err := submission.Validate(); err != nil {
		t.Errorf("Validate rejected a link to an unexecuted test: %v", err)
	}
}

func TestValidateRejectsContentAndProtected(t *testing.T) {
	submission := validSubmission()
	submission.SessionEvents[0].Protected = []byte("sealed-blob")

	err := submission.Validate()
	if err == nil || !strings.Contains(err.Error(), "both content and protected") {
		t.Errorf("Validate = %v, want both-set problem", err)
	}
}

func TestValidateRejectsBadTimestamps(t *testing.T) {
	submission := validSubmission()
	submission.Deviations[0].OccurredAt = "yesterday"
	submission.Annotations[0].CreatedAt = "2026-03-01 08:00:00"

	err := submission.Validate()
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("Validate = %v, want *ValidationError", err)
	}
	if len(validation.Problems) != 2 {
		t.Errorf("got %d problems, want 2: %v", len(validation.Problems), validation.Problems)
	}
}

func TestCoverageRequirementsDefaultCritical(t *testing.T) {
	submission := Submission{Requirements: []Requirement{
		{ID: "1.1", Title: "implicit"},
		{ID: "1.2", Title: "explicit true", Critical: boolPtr(true)},
		{ID: "1.3", Title: "explicit false", Critical: boolPtr(false)},
	}}

	converted := submission.CoverageRequirements()
	want := []bool{true, true, false}
	for i, requirement := range converted {
		if requirement.Critical != want[i] {
			t.Errorf("requirement %s critical = %v, want %v", requirement.ID, requirement.Critical, want[i])
		}
	}
}

func TestNormalizeRewritesToUTC(t *testing.T) {
	submission := validSubmission()
	submission.Deviations[0].OccurredAt = "2026-02-28T11:00:00+02:00"
	submission.Annotations[0].CreatedAt = "2026-03-01T03:00:00.5-05:00"

	submission.Normalize()

	if got, want := submission.Deviations[0].OccurredAt, "2026-02-28T09:00:00Z"; got != want {
		t.Errorf("occurred_at = %q, want %q", got, want)
	}
	if got, want := submission.Annotations[0].CreatedAt, "2026-03-01T08:00:00.5Z"; got != want {
		t.Errorf("created_at = %q, want %q", got, want)
	}
}

func TestHasProtectedEvents(t *testing.T) {
	submission := validSubmission()
	if submission.HasProtectedEvents() {
		t.Error("HasProtectedEvents = true for a plaintext submission")
	}

	submission.SessionEvents[1].Content = ""
	submission.SessionEvents[1].Protected = []byte("sealed")
	if !submission.HasProtectedEvents() {
		t.Error("HasProtectedEvents = false with a protected event present")
	}
}
