// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs one audit generation end to end: validate the
// submission, build and gate the coverage matrix, assemble inventory,
// deviations, and transcripts, then seal the package.
//
// The gate runs before any other component. A submission that fails
// its compliance gate never produces an inventory or a transcript;
// the only output is the ComplianceViolation naming the blocking
// requirements.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/clock"
	"github.com/bureau-foundation/attest/lib/coverage"
	"github.com/bureau-foundation/attest/lib/deviation"
	"github.com/bureau-foundation/attest/lib/intake"
	"github.com/bureau-foundation/attest/lib/inventory"
	"github.com/bureau-foundation/attest/lib/transcript"
)

// Options configures one generation run.
type Options struct {
	// Threshold is the minimum risk level a deviation must reach to be
	// retained. Defaults to high.
	Threshold deviation.RiskLevel

	// Strict widens the release gate: non-critical requirements that
	// are not covered and passing also block.
	Strict bool

	// Decryptor opens protected session content. Optional; a
	// submission carrying protected events is rejected when nil.
	Decryptor transcript.Decryptor

	// Sealer signs the assembled package. Required.
	Sealer *audit.Sealer

	// Clock supplies generation timestamps. Defaults to the real
	// clock.
	Clock clock.Clock

	// Logger is the structured logger. Defaults to slog.Default.
	Logger *slog.Logger
}

// Run executes the generation pipeline and returns the sealed package.
//
// Errors carry their class for the job manager: *intake.ValidationError
// for bad submissions, *coverage.ComplianceViolation from the gate,
// *audit.ExternalServiceError / *audit.IntegrityError from sealing.
func Run(ctx context.Context, submission *intake.Submission, options Options) (*audit.Sealed, error) {
	if options.Sealer == nil {
		return nil, fmt.Errorf("pipeline: sealer is required")
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := options.Threshold
	if threshold == "" {
		threshold = deviation.RiskHigh
	}
	started := clk.Now()

	// The service validates at intake; running it again here keeps the
	// CLI path and direct library callers honest.
	if err := submission.Validate(); err != nil {
		return nil, err
	}
	if submission.HasProtectedEvents() && options.Decryptor == nil {
		return nil, &intake.ValidationError{Problems: []string{
			"session_events: submission carries protected content but no decryptor is configured",
		}}
	}
	submission.Normalize()

	matrix, err := coverage.Build(submission.CoverageRequirements(), submission.TestResults, submission.Links)
	if err != nil {
		return nil, fmt.Errorf("building coverage matrix: %w", err)
	}
	if err := matrix.Gate(options.Strict); err != nil {
		logger.Info("release gate blocked generation",
			"agent", submission.Subject.Agent,
			"overall", matrix.Overall)
		return nil, err
	}
	logger.Info("coverage matrix built",
		"requirements", len(matrix.Entries),
		"overall", matrix.Overall)

	components := inventory.Assemble(subjectComponents(submission.Subject), submission.Inventory)
	report := deviation.Filter(submission.Deviations, threshold)

	transcripts, warnings, err := transcript.Reconstruct(ctx, submission.SessionEvents, submission.Annotations, options.Decryptor)
	if err != nil {
		return nil, err
	}
	for _, warning := range warnings {
		logger.Warn("transcript warning", "warning", warning)
	}

	pkg, err := audit.Assemble(audit.Draft{
		Subject:     submission.Subject,
		Coverage:    *matrix,
		Inventory:   components,
		Deviations:  report,
		Transcripts: transcripts,
		Warnings:    warnings,
	}, clk.Now())
	if err != nil {
		return nil, err
	}

	sealed, err := options.Sealer.Seal(ctx, pkg)
	if err != nil {
		return nil, err
	}

	logger.Info("audit package generated",
		"ref", sealed.PackageID,
		"overall", matrix.Overall,
		"components", len(components),
		"deviations", len(report.Events),
		"sessions", len(transcripts),
		"duration", clk.Now().Sub(started))

	return sealed, nil
}

// subjectComponents derives the inventory entries implied by the
// subject itself. They form the first assembly group, so a submission
// restating the model or adapter cannot override the subject's
// digests.
func subjectComponents(subject audit.Subject) []inventory.Component {
	components := []inventory.Component{{
		Kind:       inventory.KindModel,
		Identifier: subject.Model,
		Digest:     subject.ModelDigest,
		Origin:     "subject",
	}}
	if subject.Adapter != "" {
		components = append(components, inventory.Component{
			Kind:       inventory.KindAdapter,
			Identifier: subject.Adapter,
			Digest:     subject.AdapterDigest,
			Origin:     "subject",
		})
	}
	return components
}
