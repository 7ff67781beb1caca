// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/clock"
	"github.com/bureau-foundation/attest/lib/coverage"
	"github.com/bureau-foundation/attest/lib/deviation"
	"github.com/bureau-foundation/attest/lib/intake"
	"github.com/bureau-foundation/attest/lib/inventory"
	"github.com/bureau-foundation/attest/lib/secret"
	"github.com/bureau-foundation/attest/lib/transcript"
	"github.com/bureau-foundation/attest/lib/vault"
)

var runTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func boolPtr(v bool) *bool { return &v }

func testSubmission() *intake.Submission {
	return &intake.Submission{
		Subject: audit.Subject{
			Agent:       "triage-bot",
			Version:     "2.4.0",
			Model:       "meta-llama-3",
			ModelDigest: "sha256:abc123def456",
		},
		Requirements: []intake.Requirement{
			{ID: "1.1", Title: "No PII in logs", Critical: boolPtr(true)},
			{ID: "2.3", Title: "Guardrails active", Critical: boolPtr(false)},
		},
		TestResults: []coverage.TestResult{
			{TestID: "T-100", Outcome: coverage.OutcomePassed},
			{TestID: "T-101", Outcome: coverage.OutcomePassed},
		},
		Links: []coverage.Link{
			{RequirementID: "1.1", TestID: "T-100"},
			{RequirementID: "2.3", TestID: "T-101"},
		},
		Inventory: []inventory.Component{
			{Kind: inventory.KindLibrary, Identifier: "numpy", Version: "1.26.0"},
			{Kind: inventory.KindModel, Identifier: "meta-llama-3", Version: "stale", Origin: "submission"},
		},
		Deviations: []deviation.Event{
			{ID: "dev-1", SessionID: "sess-1", Kind: deviation.KindAnomaly,
				Risk: deviation.RiskHigh, Summary: "odd tool order", OccurredAt: "2026-02-28T09:00:00Z"},
			{ID: "dev-2", SessionID: "sess-1", Kind: deviation.KindToolError,
				Risk: deviation.RiskLow, Summary: "retryable timeout", OccurredAt: "2026-02-28T09:05:00Z"},
		},
		SessionEvents: []transcript.Event{
			{SessionID: "sess-1", SequenceNo: 3, Phase: transcript.PhaseOutcome, Content: "ticket routed"},
			{SessionID: "sess-1", SequenceNo: 1, Phase: transcript.PhaseInput, Content: "classify this"},
			{SessionID: "sess-1", SequenceNo: 2, Phase: transcript.PhaseAction, Content: "lookup customer"},
		},
	}
}

func testOptions(t *testing.T) Options {
	t.Helper()
	seed, err := secret.NewFromBytes(bytes.Repeat([]byte{0x42}, ed25519.SeedSize))
	if err != nil {
		t.Fatalf("creating seed: %v", err)
	}
	defer seed.Close()
	signer, err := audit.NewLocalSigner(seed, "pipeline-test-key")
	if err != nil {
		t.Fatalf("NewLocalSigner: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fakeClock := clock.Fake(runTime)
	return Options{
		Sealer: audit.NewSealer(audit.SealerConfig{Signer: signer, Clock: fakeClock, Logger: logger}),
		Clock:  fakeClock,
		Logger: logger,
	}
}

func TestRunProducesSealedPackage(t *testing.T) {
	options := testOptions(t)

	sealed, err := Run(context.Background(), testSubmission(), options)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	doc, err := sealed.Document()
	if err != nil {
		t.Fatalf("Document: %v", err)
	}

	if doc.Coverage.Overall != coverage.StatusCoveredPassed {
		t.Errorf("overall = %q, want covered_passed", doc.Coverage.Overall)
	}
	if doc.GeneratedAt != "2026-03-01T12:00:00Z" {
		t.Errorf("generated_at = %q, want the injected clock time", doc.GeneratedAt)
	}

	// Only the high-risk deviation is retained but both were observed.
	if len(doc.Deviations.Events) != 1 || doc.Deviations.Events[0].ID != "dev-1" {
		t.Errorf("retained deviations = %+v, want just dev-1", doc.Deviations.Events)
	}
	if doc.Deviations.TotalObserved != 2 {
		t.Errorf("total observed = %d, want 2", doc.Deviations.TotalObserved)
	}

	// Turns submitted as [3, 1, 2] come back ordered.
	if len(doc.Transcripts) != 1 {
		t.Fatalf("got %d transcripts, want 1", len(doc.Transcripts))
	}
	turns := doc.Transcripts[0].Turns
	for i, turn := range turns {
		if turn.SequenceNo != i+1 {
			t.Errorf("turn %d has sequence %d, want %d", i, turn.SequenceNo, i+1)
		}
	}
}

func TestRunSubjectComponentsWinInventoryDedupe(t *testing.T) {
	options := testOptions(t)

	sealed, err := Run(context.Background(), testSubmission(), options)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	doc, err := sealed.Document()
	if err != nil {
		t.Fatalf("Document: %v", err)
	}

	var model *inventory.Component
	for i := range doc.Inventory {
		if doc.Inventory[i].Kind == inventory.KindModel && doc.Inventory[i].Identifier == "meta-llama-3" {
			model = &doc.Inventory[i]
		}
	}
	if model == nil {
		t.Fatal("model component missing from inventory")
	}
	if model.Origin != "subject" || model.Version == "stale" {
		t.Errorf("model component = %+v, want the subject-derived entry to win dedupe", model)
	}
	if model.Digest != "sha256:abc123def456" {
		t.Errorf("model digest = %q, want the subject digest", model.Digest)
	}
}

func TestRunGateBlocksCriticalFailure(t *testing.T) {
	options := testOptions(t)
	submission := testSubmission()
	submission.TestResults[0].Outcome = coverage.OutcomeFailed

	_, err := Run(context.Background(), submission, options)
	var violation *coverage.ComplianceViolation
	if !errors.As(err, &violation) {
		t.Fatalf("Run = %v, want ComplianceViolation", err)
	}
	if len(violation.FailingRequirementIDs) != 1 || violation.FailingRequirementIDs[0] != "1.1" {
		t.Errorf("failing requirements = %v, want [1.1]", violation.FailingRequirementIDs)
	}
}

func TestRunNonCriticalFailureCompletes(t *testing.T) {
	options := testOptions(t)
	submission := testSubmission()
	submission.TestResults[1].Outcome = coverage.OutcomeFailed

	sealed, err := Run(context.Background(), submission, options)
	if err != nil {
		t.Fatalf("Run with a non-critical failure: %v", err)
	}

	doc, err := sealed.Document()
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc.Coverage.Overall != coverage.StatusUncovered {
		t.Errorf("overall = %q, want uncovered", doc.Coverage.Overall)
	}
}

func TestRunStrictModeBlocksNonCriticalFailure(t *testing.T) {
	options := testOptions(t)
	options.Strict = true
	submission := testSubmission()
	submission.TestResults[1].Outcome = coverage.OutcomeFailed

	_, err := Run(context.Background(), submission, options)
	var violation *coverage.ComplianceViolation
	if !errors.As(err, &violation) {
		t.Fatalf("Run = %v, want ComplianceViolation in strict mode", err)
	}
	if len(violation.FailingRequirementIDs) != 1 || violation.FailingRequirementIDs[0] != "2.3" {
		t.Errorf("failing requirements = %v, want [2.3]", violation.FailingRequirementIDs)
	}
}

func TestRunRejectsInvalidSubmission(t *testing.T) {
	options := testOptions(t)
	submission := testSubmission()
	submission.Subject.Agent = ""

	_, err := Run(context.Background(), submission, options)
	var validation *intake.ValidationError
	if !errors.As(err, &validation) {
		t.Errorf("Run = %v, want ValidationError", err)
	}
}

func TestRunRejectsProtectedWithoutDecryptor(t *testing.T) {
	options := testOptions(t)
	submission := testSubmission()
	submission.SessionEvents = append(submission.SessionEvents,
		transcript.Event{SessionID: "sess-1", SequenceNo: 4, Phase: transcript.PhaseThought, Protected: []byte("sealed")})

	_, err := Run(context.Background(), submission, options)
	var validation *intake.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("Run = %v, want ValidationError", err)
	}
	if !strings.Contains(err.Error(), "no decryptor") {
		t.Errorf("error %q does not explain the missing decryptor", err)
	}
}

func TestRunOpensProtectedContentWithVault(t *testing.T) {
	masterKey, err := secret.NewFromBytes(bytes.Repeat([]byte{0x33}, vault.KeySize))
	if err != nil {
		t.Fatalf("creating master key: %v", err)
	}
	sessionVault, err := vault.New(masterKey)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	defer sessionVault.Close()

	protected, err := sessionVault.Seal("sess-1", []byte("the customer's account number is 4421"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	options := testOptions(t)
	options.Decryptor = sessionVault
	submission := testSubmission()
	submission.SessionEvents = append(submission.SessionEvents,
		transcript.Event{SessionID: "sess-1", SequenceNo: 4, Phase: transcript.PhaseThought, Protected: protected})

	sealed, err := Run(context.Background(), submission, options)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	doc, err := sealed.Document()
	if err != nil {
		t.Fatalf("Document: %v", err)
	}

	turns := doc.Transcripts[0].Turns
	last := turns[len(turns)-1]
	if last.Content != "the customer's account number is 4421" {
		t.Errorf("protected turn content = %q, want the decrypted payload", last.Content)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	first, err := Run(context.Background(), testSubmission(), testOptions(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := Run(context.Background(), testSubmission(), testOptions(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if first.DocumentHash != second.DocumentHash {
		t.Errorf("identical submissions at the same instant hash differently: %s != %s",
			first.DocumentHash, second.DocumentHash)
	}
	if first.PackageID != second.PackageID {
		t.Errorf("package ids differ: %s != %s", first.PackageID, second.PackageID)
	}
}
