// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides shared infrastructure for the audit service
// binary.
//
// The audit service is a standalone Go binary exposing an HTTP API for
// package generation: clients POST evidence submissions, poll job
// status, and download rendered exports. This package extracts the
// scaffolding the binary needs:
//
//   - HTTP server: TCP listener lifecycle with readiness signaling and
//     graceful shutdown on context cancellation.
//   - Submission authentication: HMAC-SHA256 verification of request
//     bodies against a shared secret (the X-Attest-Signature-256
//     header).
//   - Logger construction: JSON structured logging on stderr at the
//     configured level.
//
// The binary composes these utilities in its own main() function. The
// package provides building blocks, not a runtime.
//
// # Authentication
//
// Submission authentication is optional: when no submission secret is
// configured, the service accepts unsigned submissions. Deployments
// that front the service with their own authenticating proxy run it
// this way. When a secret is configured, every POST to the generate
// endpoint must carry a valid signature; polling and download
// endpoints stay open because job IDs are unguessable capability
// handles.
package service
