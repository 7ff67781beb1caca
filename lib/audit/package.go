// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/attest/lib/codec"
	"github.com/bureau-foundation/attest/lib/coverage"
	"github.com/bureau-foundation/attest/lib/deviation"
	"github.com/bureau-foundation/attest/lib/inventory"
	"github.com/bureau-foundation/attest/lib/transcript"
)

// SchemaVersion is the current audit package document schema. Bumped
// on any change to the document layout; verifiers reject versions they
// do not know.
const SchemaVersion = 1

// Subject identifies the agent deployment the audit covers.
type Subject struct {
	// Agent is the deployed agent or application name.
	Agent string `json:"agent"`

	// Version is the agent release version.
	Version string `json:"version,omitempty"`

	// Model is the base model name; ModelDigest pins the exact
	// revision (typically "sha256:..." from the model registry).
	Model       string `json:"model"`
	ModelDigest string `json:"model_digest,omitempty"`

	// Adapter and AdapterDigest identify a fine-tuned adapter applied
	// on top of the base model, when one is deployed.
	Adapter       string `json:"adapter,omitempty"`
	AdapterDigest string `json:"adapter_digest,omitempty"`

	// Environment is the deployment environment ("production",
	// "staging"). Informational.
	Environment string `json:"environment,omitempty"`
}

// ModelIdentity renders the subject's model lineage as a single
// string: "model@digest", with " + adapter@digest" appended when an
// adapter is deployed. Digests absent from the subject are omitted
// along with their "@".
func (s Subject) ModelIdentity() string {
	identity := s.Model
	if s.ModelDigest != "" {
		identity += "@" + s.ModelDigest
	}
	if s.Adapter != "" {
		identity += " + " + s.Adapter
		if s.AdapterDigest != "" {
			identity += "@" + s.AdapterDigest
		}
	}
	return identity
}

// Package is the canonical audit document. Every collection it holds
// is deterministically ordered by the module that produced it, and the
// codec sorts map keys, so CanonicalBytes is stable for the same
// logical content.
type Package struct {
	SchemaVersion int    `json:"schema_version"`
	PackageID     string `json:"package_id"`

	// GeneratedAt is an RFC 3339 UTC timestamp.
	GeneratedAt string `json:"generated_at"`

	Subject     Subject                 `json:"subject"`
	Coverage    coverage.Matrix         `json:"coverage"`
	Inventory   []inventory.Component   `json:"inventory"`
	Deviations  deviation.Report        `json:"deviations"`
	Transcripts []transcript.Transcript `json:"transcripts"`

	// Warnings are non-fatal findings recorded during generation
	// (annotations that matched no turn, for example).
	Warnings []string `json:"warnings,omitempty"`
}

// Draft is the input to Assemble: the outputs of the coverage,
// inventory, deviation, and transcript modules plus the subject they
// describe.
type Draft struct {
	Subject     Subject
	Coverage    coverage.Matrix
	Inventory   []inventory.Component
	Deviations  deviation.Report
	Transcripts []transcript.Transcript
	Warnings    []string
}

// Assemble builds the canonical package document from a draft. The
// package id is derived from the content hash of the document (with
// the id field empty), so identical drafts assembled at the same
// instant produce the identical package, id included.
func Assemble(draft Draft, now time.Time) (*Package, error) {
	if draft.Subject.Agent == "" {
		return nil, fmt.Errorf("assembling package: subject agent is empty")
	}
	if draft.Subject.Model == "" {
		return nil, fmt.Errorf("assembling package: subject model is empty")
	}

	pkg := &Package{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   now.UTC().Format(time.RFC3339),
		Subject:       draft.Subject,
		Coverage:      draft.Coverage,
		Inventory:     draft.Inventory,
		Deviations:    draft.Deviations,
		Transcripts:   draft.Transcripts,
		Warnings:      draft.Warnings,
	}

	// Normalize nil collections to empty so the canonical encoding
	// never depends on how the caller spelled "nothing".
	if pkg.Inventory == nil {
		pkg.Inventory = []inventory.Component{}
	}
	if pkg.Deviations.Events == nil {
		pkg.Deviations.Events = []deviation.Event{}
	}
	if pkg.Transcripts == nil {
		pkg.Transcripts = []transcript.Transcript{}
	}

	canonical, err := codec.Marshal(pkg)
	if err != nil {
		return nil, fmt.Errorf("encoding package for id derivation: %w", err)
	}
	pkg.PackageID = FormatRef(HashDocument(canonical))

	return pkg, nil
}

// CanonicalBytes returns the deterministic encoding of the package.
// Repeated calls on the same document yield identical bytes.
func (p *Package) CanonicalBytes() ([]byte, error) {
	encoded, err := codec.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding package: %w", err)
	}
	return encoded, nil
}
