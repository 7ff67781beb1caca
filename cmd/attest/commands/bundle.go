// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/export"
)

// readBundleFile reads a sealed envelope from a bundle file, or from
// stdin when path is "-".
func readBundleFile(path string) (*audit.Sealed, error) {
	if path == "-" {
		return export.ReadBundle(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bundle: %w", err)
	}
	defer file.Close()

	sealed, err := export.ReadBundle(file)
	if err != nil {
		return nil, fmt.Errorf("reading bundle %s: %w", path, err)
	}
	return sealed, nil
}

// loadPublicKey reads an ed25519 verification key from a file: either
// the raw 32 key bytes or their 64-character hex encoding, mirroring
// the signing seed convention.
func loadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading verification key: %w", err)
	}
	trimmed := bytes.TrimSpace(data)

	switch len(trimmed) {
	case ed25519.PublicKeySize:
		return ed25519.PublicKey(trimmed), nil
	case hex.EncodedLen(ed25519.PublicKeySize):
		decoded := make([]byte, ed25519.PublicKeySize)
		if _, err := hex.Decode(decoded, trimmed); err != nil {
			return nil, fmt.Errorf("decoding hex verification key %s: %w", path, err)
		}
		return ed25519.PublicKey(decoded), nil
	default:
		return nil, fmt.Errorf("verification key %s is %d bytes, want %d raw or %d hex",
			path, len(trimmed), ed25519.PublicKeySize, hex.EncodedLen(ed25519.PublicKeySize))
	}
}
