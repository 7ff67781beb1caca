// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/bureau-foundation/attest/lib/secret"
)

// SignatureSchemeEd25519 is the only signature scheme the current
// schema version produces or verifies.
const SignatureSchemeEd25519 = "ed25519"

// Signature is the detached signature recorded in a sealed envelope.
type Signature struct {
	KeyID  string `json:"key_id"`
	Scheme string `json:"scheme"`
	Value  []byte `json:"value"`
}

// Signer produces signatures over 32-byte document hashes. A remote
// implementation wraps transport failures in ExternalServiceError so
// the sealer retries them; any other error is treated as permanent.
type Signer interface {
	Sign(ctx context.Context, digest Hash) ([]byte, error)
	KeyID() string
}

// LocalSigner signs document hashes with an in-process ed25519 key.
type LocalSigner struct {
	key   ed25519.PrivateKey
	keyID string
}

// NewLocalSigner builds a signer from seed material: either a raw
// 32-byte ed25519 seed or its 64-character hex encoding (surrounding
// whitespace ignored). The seed buffer is borrowed and NOT closed; the
// caller closes it once the signer is constructed.
//
// If keyID is empty, one is derived from the public key.
func NewLocalSigner(seedMaterial *secret.Buffer, keyID string) (*LocalSigner, error) {
	trimmed := bytes.TrimSpace(seedMaterial.Bytes())

	var seed []byte
	switch len(trimmed) {
	case ed25519.SeedSize:
		seed = trimmed
	case hex.EncodedLen(ed25519.SeedSize):
		decoded := make([]byte, ed25519.SeedSize)
		if _, err := hex.Decode(decoded, trimmed); err != nil {
			return nil, fmt.Errorf("decoding hex signing seed: %w", err)
		}
		defer secret.Zero(decoded)
		seed = decoded
	default:
		return nil, fmt.Errorf("signing seed is %d bytes, want %d raw or %d hex",
			len(trimmed), ed25519.SeedSize, hex.EncodedLen(ed25519.SeedSize))
	}

	key := ed25519.NewKeyFromSeed(seed)
	if keyID == "" {
		publicKey := key.Public().(ed25519.PublicKey)
		keyID = "key-" + hex.EncodeToString(publicKey[:6])
	}
	return &LocalSigner{key: key, keyID: keyID}, nil
}

// Sign signs the document hash. Local signing never fails and ignores
// the context; the signature is over the raw 32 digest bytes.
func (s *LocalSigner) Sign(ctx context.Context, digest Hash) ([]byte, error) {
	return ed25519.Sign(s.key, digest[:]), nil
}

// KeyID returns the identifier recorded in signatures this signer
// produces.
func (s *LocalSigner) KeyID() string {
	return s.keyID
}

// PublicKey returns the verification key matching this signer.
func (s *LocalSigner) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}
