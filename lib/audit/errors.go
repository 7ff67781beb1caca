// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"errors"
	"fmt"
)

// ErrInvalidSignature is returned by Verify when the ed25519 signature
// does not match the recomputed document hash.
var ErrInvalidSignature = errors.New("audit: invalid package signature")

// ExternalServiceError marks a failure in an external capability
// (remote signer, vault, archive). The sealer retries these with
// backoff; every other error class is permanent.
type ExternalServiceError struct {
	// Service names the capability that failed ("signer", "vault").
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IntegrityError reports a digest mismatch: the bytes in hand do not
// hash to the value the envelope (or the sealing pass) recorded.
// Integrity failures are permanent; the sealer never retries them.
type IntegrityError struct {
	// Expected and Got are hex-encoded hashes.
	Expected string
	Got      string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed: expected digest %s, got %s", e.Expected, e.Got)
}
