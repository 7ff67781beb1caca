// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Document hashes, section digests,
// and the sections root are all this size.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures the same bytes produce different hashes in
// different contexts, so a section digest can never be replayed as a
// document hash.
type domainKey [32]byte

// Domain separation keys. Fixed constants; changing them invalidates
// every existing sealed package. The byte values are the ASCII
// encoding of the domain name, zero-padded to 32 bytes, so the keys
// are inspectable in hex dumps without losing any cryptographic
// property.
var (
	documentDomainKey = domainKey{
		'a', 't', 't', 'e', 's', 't', '.', 'p', 'a', 'c', 'k', 'a', 'g', 'e', '.', 'v',
		'1', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	sectionDomainKey = domainKey{
		'a', 't', 't', 'e', 's', 't', '.', 's', 'e', 'c', 't', 'i', 'o', 'n', '.', 'v',
		'1', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashDocument computes the document-domain hash of a package's
// canonical bytes. This is the value the signer signs and the value
// package references are derived from.
func HashDocument(canonical []byte) Hash {
	return keyedHash(documentDomainKey, canonical)
}

// HashSection computes the section-domain hash of one encoded package
// section. The section name is part of the hashed input (separated
// from the body by a zero byte), so two sections with identical bodies
// still digest differently.
func HashSection(name string, encoded []byte) Hash {
	hasher := newKeyedHasher(sectionDomainKey)
	hasher.Write([]byte(name))
	hasher.Write([]byte{0})
	hasher.Write(encoded)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// MerkleRoot computes a binary Merkle tree over the section digests
// and returns the root. Adjacent pairs are concatenated and hashed in
// the section domain; a level with an odd node count promotes the last
// node unhashed, never duplicated (duplication would let a prefix of
// one digest list collide with another).
//
// Panics if hashes is empty: a package always has its fixed sections,
// so an empty list means a caller bug.
func MerkleRoot(hashes []Hash) Hash {
	if len(hashes) == 0 {
		panic("audit.MerkleRoot: empty digest list")
	}
	if len(hashes) == 1 {
		return hashes[0]
	}

	// One hasher reused via Reset for every pair.
	hasher := newKeyedHasher(sectionDomainKey)
	var combined [64]byte

	hashPair := func(left, right Hash) Hash {
		copy(combined[:32], left[:])
		copy(combined[32:], right[:])
		hasher.Reset()
		hasher.Write(combined[:])
		var result Hash
		copy(result[:], hasher.Sum(nil))
		return result
	}

	level := make([]Hash, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		nextLength := (len(level) + 1) / 2
		next := make([]Hash, nextLength)

		for i := 0; i < len(level)-1; i += 2 {
			next[i/2] = hashPair(level[i], level[i+1])
		}

		if len(level)%2 == 1 {
			next[nextLength-1] = level[len(level)-1]
		}

		level = next
	}

	return level[0]
}

// FormatHash returns the hex encoding of a hash. This is the canonical
// format in envelopes, logs, and CLI output.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing package hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("package hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// FormatRef returns the short package reference for a document hash:
// the "pack-" prefix followed by the first 12 hex characters.
func FormatRef(documentHash Hash) string {
	return "pack-" + hex.EncodeToString(documentHash[:6])
}

// newKeyedHasher constructs a BLAKE3 keyed hasher. NewKeyed only fails
// for a wrong key length, which the fixed-size domainKey rules out.
func newKeyedHasher(key domainKey) *blake3.Hasher {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("audit: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

// keyedHash computes the BLAKE3 keyed hash of data under the given
// domain key.
func keyedHash(key domainKey, data []byte) Hash {
	hasher := newKeyedHasher(key)
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}
