// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"filippo.io/age"

	"github.com/bureau-foundation/attest/lib/secret"
)

// Identity is an age x25519 keypair. The private key lives in a
// secret.Buffer; the public key is a plain string, safe to publish and
// to pass as a --vault-recipient flag.
//
// The caller must Close the identity when done.
type Identity struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format.
	PrivateKey *secret.Buffer

	// PublicKey is the corresponding age1... recipient string.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (i *Identity) Close() error {
	if i.PrivateKey != nil {
		return i.PrivateKey.Close()
	}
	return nil
}

// GenerateIdentity generates a new age x25519 keypair for a vault
// deployment. The private key string is moved into guarded memory
// immediately.
func GenerateIdentity() (*Identity, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}

	return &Identity{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// GenerateMasterKey returns a fresh random 32-byte vault master key in
// guarded memory.
func GenerateMasterKey() (*secret.Buffer, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating vault master key: %w", err)
	}
	return secret.NewFromBytes(key)
}

// WrapMasterKey age-encrypts the master key to one or more recipients
// and returns base64 ciphertext suitable for a key file. The master
// key buffer is borrowed and NOT closed.
func WrapMasterKey(masterKey *secret.Buffer, recipientKeys []string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(masterKey.Bytes()); err != nil {
		return "", fmt.Errorf("writing master key to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// UnwrapMasterKey decrypts a base64 key file payload with the vault's
// private identity. The identity buffer is borrowed and NOT closed;
// the returned master key buffer must be closed by the caller
// (typically by handing it to New).
func UnwrapMasterKey(wrapped string, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing vault identity: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 master key file: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting master key: %w", err)
	}

	masterKey, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted master key: %w", err)
	}
	if len(masterKey) != KeySize {
		secret.Zero(masterKey)
		return nil, fmt.Errorf("unwrapped master key is %d bytes, want %d", len(masterKey), KeySize)
	}

	return secret.NewFromBytes(masterKey)
}

// LoadFromFiles unwraps the master key file with the identity file and
// returns a ready Vault. The identity file holds the AGE-SECRET-KEY-1
// line; the master key file holds the base64 age ciphertext written by
// WrapMasterKey.
func LoadFromFiles(masterKeyPath, identityPath string) (*Vault, error) {
	privateKey, err := secret.ReadFromPath(identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading vault identity file: %w", err)
	}
	defer privateKey.Close()

	wrapped, err := os.ReadFile(masterKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading vault master key file: %w", err)
	}

	masterKey, err := UnwrapMasterKey(string(bytes.TrimSpace(wrapped)), privateKey)
	if err != nil {
		return nil, err
	}
	return New(masterKey)
}
