// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration for
// audit records.
//
// Attest uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the audit HTTP API, CLI output,
//     intake documents after JSONC/YAML normalization, and exported
//     report payloads.
//   - CBOR for canonical material: the byte substrate that package
//     and section hashes are computed over, sealed vault blobs, and
//     archival bundle sections.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every attest package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which is what makes section hashes reproducible across
// processes and releases.
//
// For buffer-oriented operations (hashing substrates, vault blobs):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (bundle section sequences):
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. It will
//     never be marshaled to JSON or printed by CLI tooling. Examples:
//     vault blob envelopes, bundle section headers.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Examples: the canonical audit
//     document types, which are hashed as CBOR and served as JSON,
//     and job status types shared between the HTTP API and bundles.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract; doubling up obscures whether a type
// participates in JSON serialization.
package codec
