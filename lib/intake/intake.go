// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package intake is the typed submission boundary of the audit
// service. A Submission carries everything one audit run consumes;
// Validate aggregates every problem into a single ValidationError so
// the submitter sees the full list at once instead of fixing fields
// one round-trip at a time. Downstream modules trust validated
// submissions.
package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/coverage"
	"github.com/bureau-foundation/attest/lib/deviation"
	"github.com/bureau-foundation/attest/lib/inventory"
	"github.com/bureau-foundation/attest/lib/transcript"
)

// Requirement is the wire form of a compliance requirement. Critical
// is a pointer so an absent field can default to true: a requirement
// whose submitter never considered criticality blocks release until
// someone states otherwise.
type Requirement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Critical    *bool  `json:"critical,omitempty"`
}

// Submission is one complete audit generation request.
type Submission struct {
	Subject       audit.Subject           `json:"subject"`
	Requirements  []Requirement           `json:"requirements"`
	TestResults   []coverage.TestResult   `json:"test_results"`
	Links         []coverage.Link         `json:"links"`
	Inventory     []inventory.Component   `json:"inventory,omitempty"`
	Deviations    []deviation.Event       `json:"deviations,omitempty"`
	SessionEvents []transcript.Event      `json:"session_events,omitempty"`
	Annotations   []transcript.Annotation `json:"annotations,omitempty"`
}

// ValidationError aggregates every problem found in a submission.
// Problems are field-path messages in submission order.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %s", strings.Join(e.Problems, "; "))
}

// CoverageRequirements converts the wire requirements to the coverage
// module's form, applying the default: criticality left unstated is
// critical.
func (s *Submission) CoverageRequirements() []coverage.Requirement {
	requirements := make([]coverage.Requirement, 0, len(s.Requirements))
	for _, req := range s.Requirements {
		critical := true
		if req.Critical != nil {
			critical = *req.Critical
		}
		requirements = append(requirements, coverage.Requirement{
			ID:          req.ID,
			Title:       req.Title,
			Description: req.Description,
			Critical:    critical,
		})
	}
	return requirements
}

// HasProtectedEvents reports whether any session event carries a
// vault-sealed payload. The pipeline refuses such submissions when no
// decryptor is configured.
func (s *Submission) HasProtectedEvents() bool {
	for _, event := range s.SessionEvents {
		if len(event.Protected) > 0 {
			return true
		}
	}
	return false
}

// Validate checks the whole submission and returns nil or a single
// *ValidationError listing every problem found.
func (s *Submission) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if s.Subject.Agent == "" {
		add("subject: agent is required")
	}
	if s.Subject.Model == "" {
		add("subject: model is required")
	}
	if s.Subject.AdapterDigest != "" && s.Subject.Adapter == "" {
		add("subject: adapter_digest set without adapter")
	}

	if len(s.Requirements) == 0 {
		add("requirements: at least one requirement is required")
	}
	requirementIDs := make(map[string]bool, len(s.Requirements))
	for i, req := range s.Requirements {
		if req.ID == "" {
			add("requirements[%d]: id is empty", i)
			continue
		}
		if req.Title == "" {
			add("requirements[%d]: title is empty", i)
		}
		if requirementIDs[req.ID] {
			add("requirements[%d]: duplicate id %q", i, req.ID)
		}
		requirementIDs[req.ID] = true
	}

	if len(s.TestResults) == 0 {
		add("test_results: at least one test result is required")
	}
	testIDs := make(map[string]bool, len(s.TestResults))
	for i, result := range s.TestResults {
		if result.TestID == "" {
			add("test_results[%d]: test_id is empty", i)
			continue
		}
		if !result.Outcome.IsKnown() {
			add("test_results[%d]: unknown outcome %q (expected passed or failed)", i, result.Outcome)
		}
		if testIDs[result.TestID] {
			add("test_results[%d]: duplicate test_id %q", i, result.TestID)
		}
		testIDs[result.TestID] = true
	}

	type linkKey struct {
		requirementID string
		testID        string
	}
	seenLinks := make(map[linkKey]bool, len(s.Links))
	for i, link := range s.Links {
		if link.RequirementID == "" {
			add("links[%d]: requirement_id is empty", i)
			continue
		}
		if link.TestID == "" {
			add("links[%d]: test_id is empty", i)
			continue
		}
		if !requirementIDs[link.RequirementID] {
			add("links[%d]: references requirement %q not in this submission", i, link.RequirementID)
		}
		key := linkKey{link.RequirementID, link.TestID}
		if seenLinks[key] {
			add("links[%d]: duplicate link (%q, %q)", i, link.RequirementID, link.TestID)
		}
		seenLinks[key] = true
	}

	for i, component := range s.Inventory {
		if component.Identifier == "" {
			add("inventory[%d]: identifier is empty", i)
		}
		if !component.Kind.IsKnown() {
			add("inventory[%d]: unknown kind %q", i, component.Kind)
		}
	}

	for i, event := range s.Deviations {
		if event.ID == "" {
			add("deviations[%d]: id is empty", i)
		}
		if !event.Kind.IsKnown() {
			add("deviations[%d]: unknown kind %q", i, event.Kind)
		}
		if !event.Risk.IsKnown() {
			add("deviations[%d]: unknown risk level %q", i, event.Risk)
		}
		if !validTimestamp(event.OccurredAt) {
			add("deviations[%d]: occurred_at %q is not RFC 3339", i, event.OccurredAt)
		}
	}

	type turnKey struct {
		sessionID  string
		sequenceNo int
	}
	seenTurns := make(map[turnKey]bool, len(s.SessionEvents))
	for i, event := range s.SessionEvents {
		if event.SessionID == "" {
			add("session_events[%d]: session_id is empty", i)
			continue
		}
		if event.SequenceNo < 0 {
			add("session_events[%d]: sequence_no %d is negative", i, event.SequenceNo)
		}
		if !event.Phase.IsKnown() {
			add("session_events[%d]: unknown phase %q", i, event.Phase)
		}
		if event.Content != "" && len(event.Protected) > 0 {
			add("session_events[%d]: both content and protected payload are set", i)
		}
		key := turnKey{event.SessionID, event.SequenceNo}
		if seenTurns[key] {
			add("session_events[%d]: duplicate turn (session %q, sequence %d)", i, event.SessionID, event.SequenceNo)
		}
		seenTurns[key] = true
	}

	for i, annotation := range s.Annotations {
		if annotation.SessionID == "" {
			add("annotations[%d]: session_id is empty", i)
		}
		if annotation.SequenceNo < 0 {
			add("annotations[%d]: sequence_no %d is negative", i, annotation.SequenceNo)
		}
		if annotation.Author == "" {
			add("annotations[%d]: author is empty", i)
		}
		if !validTimestamp(annotation.CreatedAt) {
			add("annotations[%d]: created_at %q is not RFC 3339", i, annotation.CreatedAt)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// Normalize rewrites every timestamp to RFC 3339 UTC so canonical
// document bytes never depend on the submitter's zone offset. Call
// after Validate; unparseable timestamps are left alone (Validate
// already reported them).
func (s *Submission) Normalize() {
	for i := range s.Deviations {
		s.Deviations[i].OccurredAt = normalizeTimestamp(s.Deviations[i].OccurredAt)
	}
	for i := range s.Annotations {
		s.Annotations[i].CreatedAt = normalizeTimestamp(s.Annotations[i].CreatedAt)
	}
}

func validTimestamp(value string) bool {
	_, err := time.Parse(time.RFC3339Nano, value)
	return err == nil
}

func normalizeTimestamp(value string) string {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return parsed.UTC().Format(time.RFC3339Nano)
}
