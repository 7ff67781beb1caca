// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit assembles, seals, and verifies compliance audit
// packages.
//
// A Package is the canonical audit document: subject identity,
// coverage matrix, component inventory, deviation report, and session
// transcripts, with every collection in a deterministic order. Its
// canonical bytes come from the deterministic CBOR codec, so the same
// logical content always hashes to the same value.
//
// Sealing binds a package to a signature: the document hash (keyed
// BLAKE3 over the canonical bytes), per-section digests rolled into a
// Merkle root, and an ed25519 signature over the document hash from
// the Signer capability. The Sealed envelope embeds the canonical
// bytes; accessors decode copies, so nothing downstream can alter what
// was signed. Verify recomputes every digest from the embedded bytes
// and checks the signature, trusting nothing recorded in the envelope.
package audit
