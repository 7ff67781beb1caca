// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coverage

import (
	"fmt"
	"strings"
)

// ComplianceViolation reports that the release gate blocked the run.
// It is the expected outcome of auditing a non-compliant system, not a
// defect: the job fails with this error and the failing requirement
// ids are surfaced to the caller.
type ComplianceViolation struct {
	// FailingRequirementIDs lists the requirements that blocked the
	// gate, sorted ascending.
	FailingRequirementIDs []string
}

func (v *ComplianceViolation) Error() string {
	return fmt.Sprintf("compliance violation: %d requirement(s) blocking release: %s",
		len(v.FailingRequirementIDs), strings.Join(v.FailingRequirementIDs, ", "))
}

// Gate evaluates the release gate over the matrix. It returns a
// *ComplianceViolation when any critical requirement is uncovered or
// covered_failed. With strict set, non-critical requirements that are
// not covered_passed block as well; otherwise they complete the run
// with a flagged gap.
//
// The gate runs before package assembly, so a blocked run never
// reaches the sealer.
func (m *Matrix) Gate(strict bool) error {
	var failing []string
	for _, entry := range m.Entries {
		if entry.Status == StatusCoveredPassed {
			continue
		}
		if entry.Critical || strict {
			failing = append(failing, entry.RequirementID)
		}
	}
	if len(failing) == 0 {
		return nil
	}
	// Entries are already sorted by requirement id.
	return &ComplianceViolation{FailingRequirementIDs: failing}
}
