// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package coverage computes the requirement-to-test traceability matrix
// and the binary release gate for an audit run.
//
// Inputs are declared requirements, test results, and the many-to-many
// links between them. Build derives one Entry per requirement with an
// exact status rule: no linked tests means uncovered, any linked
// failure means covered_failed (a single failure overrides any number
// of passes), otherwise covered_passed. A linked test with no submitted
// result counts as a failure, never as a gap. The overall status feeds
// the gate: a critical requirement that is not covered_passed blocks
// the pipeline before any other component runs.
//
// Every collection in the output is sorted, so a Matrix built from the
// same logical inputs always serializes to the same canonical bytes.
package coverage

import (
	"fmt"
	"slices"
	"strings"
)

// Outcome is the recorded result of a single compliance test.
type Outcome string

const (
	// OutcomePassed means the test ran and met its acceptance criteria.
	OutcomePassed Outcome = "passed"

	// OutcomeFailed means the test ran and did not meet its criteria,
	// or no result was recorded for a linked test.
	OutcomeFailed Outcome = "failed"
)

// IsKnown reports whether o is one of the defined Outcome values.
func (o Outcome) IsKnown() bool {
	return o == OutcomePassed || o == OutcomeFailed
}

// Status is the derived coverage state of a requirement, or of the
// matrix as a whole.
type Status string

const (
	// StatusCoveredPassed means every linked test passed.
	StatusCoveredPassed Status = "covered_passed"

	// StatusCoveredFailed means at least one linked test failed.
	StatusCoveredFailed Status = "covered_failed"

	// StatusUncovered means no test is linked to the requirement.
	StatusUncovered Status = "uncovered"
)

// IsKnown reports whether s is one of the defined Status values.
func (s Status) IsKnown() bool {
	switch s {
	case StatusCoveredPassed, StatusCoveredFailed, StatusUncovered:
		return true
	}
	return false
}

// Requirement is a declared compliance requirement. Requirements are
// immutable once loaded into a generation run.
type Requirement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Critical requirements participate in the release gate: if a
	// critical requirement is not covered_passed, the gate blocks
	// sealing regardless of everything else.
	Critical bool `json:"critical"`
}

// TestResult is the recorded outcome of one compliance test.
type TestResult struct {
	TestID  string  `json:"test_id"`
	Outcome Outcome `json:"outcome"`

	// EvidenceRef points at the artifact backing the outcome (a run
	// log, an evaluation report). Optional.
	EvidenceRef string `json:"evidence_ref,omitempty"`

	// Detail carries free-form context. Synthetic failures inserted
	// for linked tests with no submitted result explain themselves
	// here.
	Detail string `json:"detail,omitempty"`
}

// Link declares that a test validates a requirement. The relation is
// many-to-many: one test may cover several requirements and one
// requirement may be covered by several tests.
type Link struct {
	RequirementID string `json:"requirement_id"`
	TestID        string `json:"test_id"`
}

// Entry is the derived coverage state of a single requirement.
type Entry struct {
	RequirementID string `json:"requirement_id"`
	Title         string `json:"title"`
	Critical      bool   `json:"critical"`
	Status        Status `json:"status"`

	// TestIDs lists the linked tests, sorted ascending, deduplicated.
	TestIDs []string `json:"test_ids,omitempty"`

	// FailingTestIDs lists the linked tests whose effective outcome
	// is failed, sorted ascending.
	FailingTestIDs []string `json:"failing_test_ids,omitempty"`
}

// Matrix is the complete traceability matrix for one audit run. It is
// read-only after Build returns.
type Matrix struct {
	// Entries holds one entry per declared requirement, sorted
	// ascending by requirement id.
	Entries []Entry `json:"entries"`

	// Results holds the effective results of every linked test,
	// sorted ascending by test id. Submitted results that no link
	// references are excluded; linked tests with no submitted result
	// appear as synthetic failures.
	Results []TestResult `json:"results"`

	// Overall is the gate-relevant aggregate: covered_failed when any
	// critical requirement is not covered_passed, covered_passed when
	// every requirement passed, uncovered otherwise (gaps exist but
	// nothing critical is failing).
	Overall Status `json:"overall_status"`
}

// Build derives the traceability matrix from declared requirements,
// submitted test results, and coverage links.
//
// Referential problems (duplicate requirement or test ids, links naming
// unknown requirements) are reported as errors. Intake validation
// rejects these before a job is admitted, so an error here indicates a
// caller bypassing intake.
func Build(requirements []Requirement, results []TestResult, links []Link) (*Matrix, error) {
	declared := make(map[string]Requirement, len(requirements))
	for _, requirement := range requirements {
		if requirement.ID == "" {
			return nil, fmt.Errorf("requirement with empty id")
		}
		if _, exists := declared[requirement.ID]; exists {
			return nil, fmt.Errorf("duplicate requirement id %q", requirement.ID)
		}
		declared[requirement.ID] = requirement
	}

	submitted := make(map[string]TestResult, len(results))
	for _, result := range results {
		if result.TestID == "" {
			return nil, fmt.Errorf("test result with empty test id")
		}
		if !result.Outcome.IsKnown() {
			return nil, fmt.Errorf("test %q: unknown outcome %q", result.TestID, result.Outcome)
		}
		if _, exists := submitted[result.TestID]; exists {
			return nil, fmt.Errorf("duplicate test result id %q", result.TestID)
		}
		submitted[result.TestID] = result
	}

	// Group linked test ids per requirement, deduplicated.
	linked := make(map[string]map[string]bool, len(declared))
	for _, link := range links {
		if _, exists := declared[link.RequirementID]; !exists {
			return nil, fmt.Errorf("link references requirement %q not declared in this run", link.RequirementID)
		}
		if link.TestID == "" {
			return nil, fmt.Errorf("link for requirement %q has empty test id", link.RequirementID)
		}
		tests := linked[link.RequirementID]
		if tests == nil {
			tests = make(map[string]bool)
			linked[link.RequirementID] = tests
		}
		tests[link.TestID] = true
	}

	// Effective results: every linked test id resolves to a result. A
	// linked test with no submitted result becomes a synthetic failure
	// so that absence of evidence never reads as a pass.
	effective := make(map[string]TestResult)
	for _, tests := range linked {
		for testID := range tests {
			if _, seen := effective[testID]; seen {
				continue
			}
			if result, ok := submitted[testID]; ok {
				effective[testID] = result
				continue
			}
			effective[testID] = TestResult{
				TestID:  testID,
				Outcome: OutcomeFailed,
				Detail:  "no result recorded for linked test",
			}
		}
	}

	matrix := &Matrix{
		Entries: make([]Entry, 0, len(requirements)),
	}

	for _, requirement := range requirements {
		entry := Entry{
			RequirementID: requirement.ID,
			Title:         requirement.Title,
			Critical:      requirement.Critical,
		}
		for testID := range linked[requirement.ID] {
			entry.TestIDs = append(entry.TestIDs, testID)
			if effective[testID].Outcome == OutcomeFailed {
				entry.FailingTestIDs = append(entry.FailingTestIDs, testID)
			}
		}
		slices.Sort(entry.TestIDs)
		slices.Sort(entry.FailingTestIDs)

		switch {
		case len(entry.TestIDs) == 0:
			entry.Status = StatusUncovered
		case len(entry.FailingTestIDs) > 0:
			entry.Status = StatusCoveredFailed
		default:
			entry.Status = StatusCoveredPassed
		}
		matrix.Entries = append(matrix.Entries, entry)
	}
	slices.SortFunc(matrix.Entries, func(a, b Entry) int {
		return strings.Compare(a.RequirementID, b.RequirementID)
	})

	matrix.Results = make([]TestResult, 0, len(effective))
	for _, result := range effective {
		matrix.Results = append(matrix.Results, result)
	}
	slices.SortFunc(matrix.Results, func(a, b TestResult) int {
		return strings.Compare(a.TestID, b.TestID)
	})

	matrix.Overall = overallStatus(matrix.Entries)
	return matrix, nil
}

// overallStatus aggregates per-requirement statuses. Critical failures
// dominate; a fully passing matrix is covered_passed; anything else
// (non-critical gaps or failures) is uncovered, which completes with a
// flagged gap rather than blocking.
func overallStatus(entries []Entry) Status {
	allPassed := true
	for _, entry := range entries {
		if entry.Status == StatusCoveredPassed {
			continue
		}
		allPassed = false
		if entry.Critical {
			return StatusCoveredFailed
		}
	}
	if allPassed {
		return StatusCoveredPassed
	}
	return StatusUncovered
}

// Summary holds aggregate counts for reporting.
type Summary struct {
	Requirements  int `json:"requirements"`
	CoveredPassed int `json:"covered_passed"`
	CoveredFailed int `json:"covered_failed"`
	Uncovered     int `json:"uncovered"`

	// CriticalFailing counts critical requirements that are not
	// covered_passed.
	CriticalFailing int `json:"critical_failing"`
}

// Summary computes aggregate counts over the matrix entries.
func (m *Matrix) Summary() Summary {
	summary := Summary{Requirements: len(m.Entries)}
	for _, entry := range m.Entries {
		switch entry.Status {
		case StatusCoveredPassed:
			summary.CoveredPassed++
		case StatusCoveredFailed:
			summary.CoveredFailed++
		case StatusUncovered:
			summary.Uncovered++
		}
		if entry.Critical && entry.Status != StatusCoveredPassed {
			summary.CriticalFailing++
		}
	}
	return summary
}
