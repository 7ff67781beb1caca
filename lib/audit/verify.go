// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"crypto/ed25519"
	"fmt"
)

// VerifyIntegrity checks a sealed envelope's content against its own
// recorded digests. Nothing recorded in the envelope is trusted: the
// document hash, every section digest, and the Merkle root are
// recomputed from the embedded canonical bytes and compared against
// the recorded values (IntegrityError on any mismatch). The signature
// is not checked; use Verify when a verification key is available.
func VerifyIntegrity(sealed *Sealed) error {
	if sealed.SchemaVersion != SchemaVersion {
		return fmt.Errorf("sealed envelope schema version %d is not supported (expected %d)",
			sealed.SchemaVersion, SchemaVersion)
	}

	documentHash := HashDocument(sealed.Package)
	if recorded := FormatHash(documentHash); recorded != sealed.DocumentHash {
		return &IntegrityError{Expected: sealed.DocumentHash, Got: recorded}
	}

	pkg, err := sealed.Document()
	if err != nil {
		return err
	}
	digests, hashes, err := sectionDigests(pkg)
	if err != nil {
		return err
	}
	if len(digests) != len(sealed.SectionDigests) {
		return fmt.Errorf("envelope records %d section digests, document has %d",
			len(sealed.SectionDigests), len(digests))
	}
	for i, digest := range digests {
		recorded := sealed.SectionDigests[i]
		if recorded.Name != digest.Name {
			return fmt.Errorf("section %d is %q in the envelope, %q in the document",
				i, recorded.Name, digest.Name)
		}
		if recorded.Digest != digest.Digest {
			return &IntegrityError{Expected: recorded.Digest, Got: digest.Digest}
		}
	}
	if root := FormatHash(MerkleRoot(hashes)); root != sealed.SectionsRoot {
		return &IntegrityError{Expected: sealed.SectionsRoot, Got: root}
	}
	return nil
}

// Verify checks a sealed envelope against a verification key: the
// integrity checks of VerifyIntegrity, then the ed25519 signature over
// the recomputed document hash (ErrInvalidSignature on mismatch).
func Verify(sealed *Sealed, publicKey ed25519.PublicKey) error {
	if sealed.Signature.Scheme != SignatureSchemeEd25519 {
		return fmt.Errorf("signature scheme %q is not supported (expected %q)",
			sealed.Signature.Scheme, SignatureSchemeEd25519)
	}
	if err := VerifyIntegrity(sealed); err != nil {
		return err
	}

	documentHash := HashDocument(sealed.Package)
	if !ed25519.Verify(publicKey, documentHash[:], sealed.Signature.Value) {
		return ErrInvalidSignature
	}
	return nil
}
