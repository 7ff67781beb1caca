// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobs runs audit package generation asynchronously.
//
// The service submits validated submissions to a Manager and polls for
// completion. Each job runs the generation pipeline in its own
// goroutine with its own context, bounded by a worker-slot semaphore
// and a per-job wall-clock timeout. Failures are classified into a
// small set of error kinds so HTTP handlers and CLI exit codes can
// dispatch on the kind without re-parsing error strings.
package jobs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/coverage"
	"github.com/bureau-foundation/attest/lib/intake"
)

// Status is the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting for a worker slot.
	StatusPending Status = "pending"
	// StatusRunning means the pipeline is executing.
	StatusRunning Status = "running"
	// StatusCompleted means the job produced a sealed audit package.
	StatusCompleted Status = "completed"
	// StatusFailed means the job ended without a package. The Error
	// field of the snapshot carries the classified failure.
	StatusFailed Status = "failed"
)

// ErrorKind classifies why a job failed.
type ErrorKind string

const (
	// ErrorKindValidation: the submission failed intake validation.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindComplianceViolation: the coverage gate blocked the
	// package because critical requirements failed.
	ErrorKindComplianceViolation ErrorKind = "compliance_violation"
	// ErrorKindExternalService: a dependency (signer, vault) failed
	// after the sealer exhausted its retries.
	ErrorKindExternalService ErrorKind = "external_service"
	// ErrorKindIntegrity: a digest recomputation did not match.
	ErrorKindIntegrity ErrorKind = "integrity"
	// ErrorKindTimeout: the job exceeded its wall-clock budget.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindCanceled: the job was canceled before it finished.
	ErrorKindCanceled ErrorKind = "canceled"
	// ErrorKindInternal: anything else, including recovered panics.
	ErrorKindInternal ErrorKind = "internal"
)

// ErrorInfo is the recorded failure of a job, shaped for the HTTP API.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`

	// FailingRequirementIDs is set for compliance violations: the
	// critical requirements that blocked the gate, sorted ascending.
	FailingRequirementIDs []string `json:"failing_requirement_ids,omitempty"`
}

// Sentinel errors returned by Poll, Cancel, and Artifact.
var (
	// ErrNotFound means no job with that ID exists (never submitted,
	// or already removed by the retention sweep).
	ErrNotFound = errors.New("job not found")
	// ErrNotReady means the job exists but has not completed, so
	// there is no artifact to download yet.
	ErrNotReady = errors.New("audit package not ready")
	// ErrClosed is returned by Submit after the manager shut down.
	ErrClosed = errors.New("job manager closed")
)

// classify maps a pipeline error to an ErrorInfo.
//
// Cancellation and timeout are checked first: a pipeline canceled in
// the middle of a vault or signer call reports the job outcome, not
// the component the cancellation happened to interrupt.
func classify(err error) *ErrorInfo {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ErrorInfo{Kind: ErrorKindTimeout, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return &ErrorInfo{Kind: ErrorKindCanceled, Message: err.Error()}
	}

	var validation *intake.ValidationError
	if errors.As(err, &validation) {
		return &ErrorInfo{Kind: ErrorKindValidation, Message: err.Error()}
	}
	var violation *coverage.ComplianceViolation
	if errors.As(err, &violation) {
		return &ErrorInfo{
			Kind:                  ErrorKindComplianceViolation,
			Message:               err.Error(),
			FailingRequirementIDs: slices.Clone(violation.FailingRequirementIDs),
		}
	}
	var external *audit.ExternalServiceError
	if errors.As(err, &external) {
		return &ErrorInfo{Kind: ErrorKindExternalService, Message: err.Error()}
	}
	var integrity *audit.IntegrityError
	if errors.As(err, &integrity) {
		return &ErrorInfo{Kind: ErrorKindIntegrity, Message: err.Error()}
	}

	return &ErrorInfo{Kind: ErrorKindInternal, Message: err.Error()}
}

// newJobID creates a random job identifier ("job-" plus 12 hex
// characters). Uses crypto/rand for uniqueness without coordination.
func newJobID() (string, error) {
	var buffer [6]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", err
	}
	return "job-" + hex.EncodeToString(buffer[:]), nil
}

// Snapshot is a point-in-time view of a job, safe to marshal for the
// HTTP API. StartedAt and CompletedAt are nil until the job reaches
// the corresponding state.
type Snapshot struct {
	ID          string     `json:"job_id"`
	Status      Status     `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *ErrorInfo `json:"error,omitempty"`
}

// Stats counts tracked jobs by lifecycle state. Served by the health
// endpoint so operators can see queue depth at a glance.
type Stats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
