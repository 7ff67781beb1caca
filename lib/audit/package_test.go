// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/attest/lib/coverage"
	"github.com/bureau-foundation/attest/lib/deviation"
	"github.com/bureau-foundation/attest/lib/inventory"
	"github.com/bureau-foundation/attest/lib/transcript"
)

var assembleTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// sampleDraft builds a small but fully populated draft: one passing
// requirement, two inventory components, one retained deviation, one
// single-turn transcript.
func sampleDraft(t *testing.T) Draft {
	t.Helper()

	matrix, err := coverage.Build(
		[]coverage.Requirement{{ID: "1.1", Title: "No PII in logs", Critical: true}},
		[]coverage.TestResult{{TestID: "T-100", Outcome: coverage.OutcomePassed}},
		[]coverage.Link{{RequirementID: "1.1", TestID: "T-100"}},
	)
	if err != nil {
		t.Fatalf("coverage.Build: %v", err)
	}

	report := deviation.Filter([]deviation.Event{
		{ID: "dev-1", SessionID: "sess-1", Kind: deviation.KindAnomaly, Risk: deviation.RiskHigh,
			Summary: "unexpected tool sequence", OccurredAt: "2026-02-28T09:00:00Z"},
	}, deviation.RiskHigh)

	return Draft{
		Subject: Subject{
			Agent:       "triage-bot",
			Version:     "2.4.0",
			Model:       "meta-llama-3",
			ModelDigest: "sha256:abc123def456",
		},
		Coverage: *matrix,
		Inventory: []inventory.Component{
			{Kind: inventory.KindModel, Identifier: "meta-llama-3", Version: "3.0", Digest: "sha256:abc123def456"},
			{Kind: inventory.KindLibrary, Identifier: "numpy", Version: "1.26.0"},
		},
		Deviations: report,
		Transcripts: []transcript.Transcript{
			{SessionID: "sess-1", Turns: []transcript.Turn{
				{SequenceNo: 1, Phase: transcript.PhaseInput, Content: "classify this ticket"},
			}},
		},
	}
}

func TestAssembleCanonicalBytesStable(t *testing.T) {
	first, err := Assemble(sampleDraft(t), assembleTime)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	second, err := Assemble(sampleDraft(t), assembleTime)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	firstBytes, err := first.CanonicalBytes()
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	secondBytes, err := second.CanonicalBytes()
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}

	if !bytes.Equal(firstBytes, secondBytes) {
		t.Error("identical drafts assembled at the same instant produced different canonical bytes")
	}
	if first.PackageID != second.PackageID {
		t.Errorf("package ids differ: %s != %s", first.PackageID, second.PackageID)
	}
}

func TestAssemblePackageIDTracksContent(t *testing.T) {
	base, err := Assemble(sampleDraft(t), assembleTime)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	changed := sampleDraft(t)
	changed.Subject.Version = "2.4.1"
	other, err := Assemble(changed, assembleTime)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if !strings.HasPrefix(base.PackageID, "pack-") {
		t.Errorf("package id %q does not start with pack-", base.PackageID)
	}
	if base.PackageID == other.PackageID {
		t.Error("packages with different content share a package id")
	}
}

func TestAssembleNormalizesNilCollections(t *testing.T) {
	draft := sampleDraft(t)
	draft.Inventory = nil
	draft.Transcripts = nil
	draft.Deviations = deviation.Report{Threshold: deviation.RiskHigh}

	withNil, err := Assemble(draft, assembleTime)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	draft = sampleDraft(t)
	draft.Inventory = []inventory.Component{}
	draft.Transcripts = []transcript.Transcript{}
	draft.Deviations = deviation.Report{Threshold: deviation.RiskHigh, Events: []deviation.Event{}}

	withEmpty, err := Assemble(draft, assembleTime)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if withNil.PackageID != withEmpty.PackageID {
		t.Error("nil and empty collections encode differently")
	}
}

func TestAssembleRejectsIncompleteSubject(t *testing.T) {
	draft := sampleDraft(t)
	draft.Subject.Agent = ""
	if _, err := Assemble(draft, assembleTime); err == nil {
		t.Error("Assemble accepted an empty agent")
	}

	draft = sampleDraft(t)
	draft.Subject.Model = ""
	if _, err := Assemble(draft, assembleTime); err == nil {
		t.Error("Assemble accepted an empty model")
	}
}

func TestAssembleGeneratedAtIsUTC(t *testing.T) {
	eastern := time.FixedZone("EST", -5*3600)
	pkg, err := Assemble(sampleDraft(t), time.Date(2026, 3, 1, 5, 0, 0, 0, eastern))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got, want := pkg.GeneratedAt, "2026-03-01T10:00:00Z"; got != want {
		t.Errorf("GeneratedAt = %q, want %q", got, want)
	}
}

func TestModelIdentity(t *testing.T) {
	cases := []struct {
		name    string
		subject Subject
		want    string
	}{
		{
			name:    "model only",
			subject: Subject{Model: "meta-llama-3"},
			want:    "meta-llama-3",
		},
		{
			name:    "model with digest",
			subject: Subject{Model: "meta-llama-3", ModelDigest: "sha256:abc123def456"},
			want:    "meta-llama-3@sha256:abc123def456",
		},
		{
			name: "model and adapter",
			subject: Subject{
				Model: "meta-llama-3", ModelDigest: "sha256:abc123def456",
				Adapter: "adapter", AdapterDigest: "sha256:789ghi012jkl",
			},
			want: "meta-llama-3@sha256:abc123def456 + adapter@sha256:789ghi012jkl",
		},
		{
			name: "adapter without digest",
			subject: Subject{
				Model: "meta-llama-3", ModelDigest: "sha256:abc123def456",
				Adapter: "triage-lora",
			},
			want: "meta-llama-3@sha256:abc123def456 + triage-lora",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.subject.ModelIdentity(); got != tc.want {
				t.Errorf("ModelIdentity() = %q, want %q", got, tc.want)
			}
		})
	}
}
