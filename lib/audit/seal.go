// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/attest/lib/clock"
	"github.com/bureau-foundation/attest/lib/codec"
)

// defaultMaxAttempts bounds signing retries when the signer reports a
// transient external failure.
const defaultMaxAttempts = 3

// SectionDigest is the digest of one encoded package section, recorded
// in document order.
type SectionDigest struct {
	Name   string `json:"name"`
	Digest string `json:"digest"`
}

// Sealed is the immutable signed envelope around a package. Package
// holds the exact canonical bytes that were hashed and signed;
// Document decodes a fresh copy, so no caller can alter the sealed
// content through the envelope.
type Sealed struct {
	SchemaVersion  int             `json:"schema_version"`
	PackageID      string          `json:"package_id"`
	Package        []byte          `json:"package"`
	DocumentHash   string          `json:"document_hash"`
	SectionDigests []SectionDigest `json:"section_digests"`
	SectionsRoot   string          `json:"sections_root"`
	Signature      Signature       `json:"signature"`

	// SealedAt is an RFC 3339 UTC timestamp.
	SealedAt string `json:"sealed_at"`
}

// Document decodes the embedded canonical bytes into a fresh Package.
func (s *Sealed) Document() (*Package, error) {
	var pkg Package
	if err := codec.Unmarshal(s.Package, &pkg); err != nil {
		return nil, fmt.Errorf("decoding sealed package document: %w", err)
	}
	return &pkg, nil
}

// Ref returns the short package reference.
func (s *Sealed) Ref() string {
	return s.PackageID
}

// SealerConfig configures a Sealer.
type SealerConfig struct {
	// Signer produces the envelope signature. Required.
	Signer Signer

	// Clock drives retry backoff. Defaults to the real clock.
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// MaxAttempts bounds signing attempts when the signer reports
	// transient failures. Defaults to 3 if zero.
	MaxAttempts int
}

// Sealer produces Sealed envelopes from assembled packages.
type Sealer struct {
	signer      Signer
	clock       clock.Clock
	logger      *slog.Logger
	maxAttempts int
}

// NewSealer creates a sealer.
func NewSealer(config SealerConfig) *Sealer {
	if config.Signer == nil {
		panic("audit.Sealer: Signer is required")
	}
	if config.Logger == nil {
		panic("audit.Sealer: Logger is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	attempts := config.MaxAttempts
	if attempts == 0 {
		attempts = defaultMaxAttempts
	}

	return &Sealer{
		signer:      config.Signer,
		clock:       clk,
		logger:      config.Logger,
		maxAttempts: attempts,
	}
}

// Seal hashes, digests, and signs an assembled package.
//
// The signature covers the document hash (keyed BLAKE3 over the
// canonical bytes). Signing failures wrapped in ExternalServiceError
// are retried with exponential backoff (1s, 2s, 4s, ...) up to
// MaxAttempts; any other signing error is permanent. Before returning,
// the sealer round-trips the embedded bytes through the codec and
// recomputes the document hash; a mismatch means the encoding is not
// stable and surfaces as an IntegrityError rather than a corrupt
// envelope.
func (s *Sealer) Seal(ctx context.Context, pkg *Package) (*Sealed, error) {
	canonical, err := pkg.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	documentHash := HashDocument(canonical)

	digests, hashes, err := sectionDigests(pkg)
	if err != nil {
		return nil, err
	}
	sectionsRoot := MerkleRoot(hashes)

	signatureValue, err := s.signWithRetry(ctx, documentHash)
	if err != nil {
		return nil, err
	}

	// Round-trip the canonical bytes and recompute. Catches any
	// decode/encode instability before the envelope leaves the
	// process.
	var reloaded Package
	if err := codec.Unmarshal(canonical, &reloaded); err != nil {
		return nil, fmt.Errorf("reloading canonical bytes: %w", err)
	}
	recanonical, err := reloaded.CanonicalBytes()
	if err != nil {
		return nil, fmt.Errorf("re-encoding reloaded package: %w", err)
	}
	if recomputed := HashDocument(recanonical); recomputed != documentHash {
		return nil, &IntegrityError{
			Expected: FormatHash(documentHash),
			Got:      FormatHash(recomputed),
		}
	}

	sealed := &Sealed{
		SchemaVersion:  SchemaVersion,
		PackageID:      pkg.PackageID,
		Package:        canonical,
		DocumentHash:   FormatHash(documentHash),
		SectionDigests: digests,
		SectionsRoot:   FormatHash(sectionsRoot),
		Signature: Signature{
			KeyID:  s.signer.KeyID(),
			Scheme: SignatureSchemeEd25519,
			Value:  signatureValue,
		},
		SealedAt: s.clock.Now().UTC().Format(time.RFC3339),
	}

	s.logger.Info("package sealed",
		"ref", sealed.PackageID,
		"document_hash", sealed.DocumentHash,
		"key_id", sealed.Signature.KeyID)

	return sealed, nil
}

// signWithRetry asks the signer for a signature, retrying transient
// external failures with exponential backoff. The context cancels the
// backoff wait.
func (s *Sealer) signWithRetry(ctx context.Context, documentHash Hash) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		signature, err := s.signer.Sign(ctx, documentHash)
		if err == nil {
			return signature, nil
		}
		lastErr = err

		var transient *ExternalServiceError
		if !errors.As(err, &transient) {
			return nil, fmt.Errorf("signing document hash: %w", err)
		}
		if attempt == s.maxAttempts {
			break
		}

		backoff := time.Duration(1<<(attempt-1)) * time.Second
		s.logger.Warn("signing failed, retrying",
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"backoff", backoff,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.clock.After(backoff):
		}
	}
	return nil, fmt.Errorf("signing document hash after %d attempts: %w", s.maxAttempts, lastErr)
}

// sectionDigests encodes each package section and digests it. The
// returned slices are in fixed document order; Merkle roots computed
// over them are comparable across seal and verify.
func sectionDigests(pkg *Package) ([]SectionDigest, []Hash, error) {
	sections := []struct {
		name  string
		value any
	}{
		{"subject", pkg.Subject},
		{"coverage", pkg.Coverage},
		{"inventory", pkg.Inventory},
		{"deviations", pkg.Deviations},
		{"transcripts", pkg.Transcripts},
	}

	digests := make([]SectionDigest, 0, len(sections))
	hashes := make([]Hash, 0, len(sections))
	for _, section := range sections {
		encoded, err := codec.Marshal(section.value)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding section %s: %w", section.name, err)
		}
		hash := HashSection(section.name, encoded)
		digests = append(digests, SectionDigest{Name: section.name, Digest: FormatHash(hash)})
		hashes = append(hashes, hash)
	}
	return digests, hashes, nil
}
