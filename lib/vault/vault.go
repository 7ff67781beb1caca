// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault seals and opens protected transcript content.
//
// A Vault holds a 32-byte master key in guarded memory and derives one
// encryption key per session with HKDF-SHA256, so exposure of a single
// session key never widens past that session. Payloads are sealed with
// XChaCha20-Poly1305; the blob format is
//
//	[Version: 1 byte (0x01)] [Nonce: 24 bytes (random)] [Ciphertext+Tag]
//
// with the version byte and the session id as additional authenticated
// data, so a blob cut from one session cannot be replayed into another.
//
// The master key reaches the service age-encrypted to its X25519
// identity (keyfile.go); only the unwrapped key ever lives in memory,
// in a secret.Buffer.
package vault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/secret"
	"github.com/bureau-foundation/attest/lib/transcript"
)

// KeySize is the size in bytes of the master key and every derived
// session key.
const KeySize = 32

// blobVersion is prepended to every sealed blob and authenticated as
// part of the AAD, so tampering with it fails the AEAD open.
const blobVersion byte = 0x01

// blobOverhead is the byte overhead per sealed blob:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const blobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoSessionKey is the HKDF info prefix for session key
// derivation; the session id is appended. Changing it invalidates
// every sealed blob.
var hkdfInfoSessionKey = []byte("attest.vault.session.v1")

// Vault derives per-session keys from a master key and seals or opens
// protected transcript payloads.
type Vault struct {
	masterKey *secret.Buffer
}

var _ transcript.Decryptor = (*Vault)(nil)

// New creates a Vault from a 32-byte master key. The buffer is owned
// by the Vault and closed by Close; the caller must not use it after
// this call.
func New(masterKey *secret.Buffer) (*Vault, error) {
	if masterKey.Len() != KeySize {
		return nil, fmt.Errorf("vault master key must be %d bytes, got %d", KeySize, masterKey.Len())
	}
	return &Vault{masterKey: masterKey}, nil
}

// Close zeroes and releases the master key. After Close, Seal and Open
// panic (via secret.Buffer's closed check). Idempotent.
func (v *Vault) Close() error {
	return v.masterKey.Close()
}

// Seal encrypts a payload under the session's derived key. Used by the
// demo seeder and tests; the service side only opens.
func (v *Vault) Seal(sessionID string, plaintext []byte) ([]byte, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sealing payload: session id is empty")
	}

	sessionKey, err := v.sessionKey(sessionID)
	if err != nil {
		return nil, err
	}
	defer sessionKey.Close()

	aead, err := chacha20poly1305.NewX(sessionKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, blobOverhead+len(plaintext))
	output[0] = blobVersion
	copy(output[1:], nonce[:])

	return aead.Seal(output, nonce[:], plaintext, buildAAD(blobVersion, sessionID)), nil
}

// Open decrypts a sealed blob for the given session. Implements
// transcript.Decryptor. Every failure is wrapped in
// audit.ExternalServiceError so the job classifier attributes it to
// the protection capability rather than the submission.
func (v *Vault) Open(ctx context.Context, sessionID string, sealed []byte) ([]byte, error) {
	plaintext, err := v.open(sessionID, sealed)
	if err != nil {
		return nil, &audit.ExternalServiceError{Service: "vault", Err: err}
	}
	return plaintext, nil
}

func (v *Vault) open(sessionID string, sealed []byte) ([]byte, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is empty")
	}
	if len(sealed) < blobOverhead {
		return nil, fmt.Errorf("sealed blob is %d bytes, minimum is %d (version + nonce + tag)",
			len(sealed), blobOverhead)
	}
	if sealed[0] != blobVersion {
		return nil, fmt.Errorf("sealed blob version %d is not supported (expected %d)",
			sealed[0], blobVersion)
	}

	sessionKey, err := v.sessionKey(sessionID)
	if err != nil {
		return nil, err
	}
	defer sessionKey.Close()

	aead, err := chacha20poly1305.NewX(sessionKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[1+chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, buildAAD(sealed[0], sessionID))
	if err != nil {
		return nil, fmt.Errorf("AEAD decryption failed (wrong key, tampered blob, or wrong session): %w", err)
	}
	return plaintext, nil
}

// sessionKey derives the session's encryption key with HKDF-SHA256.
// The salt is nil; the master key is already uniformly random
// (RFC 5869 section 3.1).
func (v *Vault) sessionKey(sessionID string) (*secret.Buffer, error) {
	info := make([]byte, 0, len(hkdfInfoSessionKey)+len(sessionID))
	info = append(info, hkdfInfoSessionKey...)
	info = append(info, sessionID...)

	reader := hkdf.New(sha256.New, v.masterKey.Bytes(), nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("HKDF session key derivation failed: %w", err)
	}
	return secret.NewFromBytes(derived)
}

// buildAAD constructs the additional authenticated data: the version
// byte followed by the session id bytes.
func buildAAD(version byte, sessionID string) []byte {
	aad := make([]byte, 0, 1+len(sessionID))
	aad = append(aad, version)
	aad = append(aad, sessionID...)
	return aad
}
