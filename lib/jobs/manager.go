// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/clock"
	"github.com/bureau-foundation/attest/lib/intake"
)

// RunFunc executes the generation pipeline for one submission. The
// context carries the job's cancellation and must be honored by every
// blocking call inside the pipeline.
type RunFunc func(ctx context.Context, submission *intake.Submission) (*audit.Sealed, error)

const (
	defaultMaxConcurrent = 4
	defaultTimeout       = 10 * time.Minute
	defaultRetention     = 24 * time.Hour
	defaultSweepInterval = time.Minute
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Run executes the pipeline for one job. Required.
	Run RunFunc

	// Clock for timestamps, the per-job timeout, and the retention
	// sweep ticker. Defaults to clock.Real().
	Clock clock.Clock

	// Logger for job lifecycle events. Required.
	Logger *slog.Logger

	// MaxConcurrent bounds how many jobs execute simultaneously.
	// Submissions beyond the bound stay pending until a slot frees.
	// Defaults to 4.
	MaxConcurrent int

	// Timeout is the wall-clock budget for a single job, measured
	// from the moment it starts running. Defaults to 10 minutes.
	Timeout time.Duration

	// Retention is how long terminal jobs stay pollable after they
	// complete or fail. The sweep started by Run removes older ones;
	// polling a swept job reports ErrNotFound. Defaults to 24 hours.
	Retention time.Duration

	// SweepInterval is how often the retention sweep runs. Defaults
	// to one minute.
	SweepInterval time.Duration
}

// Manager tracks asynchronous generation jobs. Submit starts a job,
// Poll observes it, Artifact retrieves the sealed package once the
// job completes. Safe for concurrent use.
type Manager struct {
	run           RunFunc
	clock         clock.Clock
	logger        *slog.Logger
	timeout       time.Duration
	retention     time.Duration
	sweepInterval time.Duration

	// slots is a buffered semaphore bounding concurrent pipeline
	// runs. A job holds a slot from the moment it starts running
	// until it reaches a terminal status.
	slots chan struct{}

	mu      sync.Mutex
	records map[string]*record
	closed  bool

	wg sync.WaitGroup
}

// record is the manager's internal state for one job. All fields
// after the immutable header are guarded by Manager.mu.
type record struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{} // closed when the job reaches a terminal status

	status      Status
	submittedAt time.Time
	startedAt   time.Time
	completedAt time.Time
	sealed      *audit.Sealed
	err         error
	info        *ErrorInfo
}

// NewManager creates a Manager. Panics if a required field is missing.
func NewManager(config ManagerConfig) *Manager {
	if config.Run == nil {
		panic("jobs.NewManager: Run is required")
	}
	if config.Logger == nil {
		panic("jobs.NewManager: Logger is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaultMaxConcurrent
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Retention <= 0 {
		config.Retention = defaultRetention
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaultSweepInterval
	}

	return &Manager{
		run:           config.Run,
		clock:         config.Clock,
		logger:        config.Logger,
		timeout:       config.Timeout,
		retention:     config.Retention,
		sweepInterval: config.SweepInterval,
		slots:         make(chan struct{}, config.MaxConcurrent),
		records:       make(map[string]*record),
	}
}

// Submit registers a new job for the given submission and returns its
// ID. The caller is responsible for validating the submission first;
// the pipeline revalidates as defense in depth, so an invalid
// submission fails the job rather than corrupting output.
//
// The job is detached from ctx: it keeps running after the submitting
// request ends, and is canceled only by Cancel or its own timeout.
func (m *Manager) Submit(ctx context.Context, submission *intake.Submission) (string, error) {
	id, err := newJobID()
	if err != nil {
		return "", fmt.Errorf("generating job id: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	rec := &record{
		id:          id,
		cancel:      cancel,
		done:        make(chan struct{}),
		status:      StatusPending,
		submittedAt: m.clock.Now().UTC(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return "", ErrClosed
	}
	m.records[id] = rec
	m.wg.Add(1)
	m.mu.Unlock()

	go m.execute(jobCtx, rec, submission)

	m.logger.Info("job submitted", "job_id", id)
	return id, nil
}

// pipelineResult carries the pipeline's return values out of the job
// goroutine.
type pipelineResult struct {
	sealed *audit.Sealed
	err    error
}

// execute runs one job: waits for a worker slot, runs the pipeline
// with the wall-clock timeout, and records the terminal status.
func (m *Manager) execute(ctx context.Context, rec *record, submission *intake.Submission) {
	defer m.wg.Done()
	defer rec.cancel()

	// Wait for a worker slot. Cancellation while pending fails the
	// job without ever starting the pipeline.
	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		m.finish(rec, nil, ctx.Err())
		return
	}
	defer func() { <-m.slots }()

	started := m.clock.Now().UTC()
	m.mu.Lock()
	rec.status = StatusRunning
	rec.startedAt = started
	m.mu.Unlock()

	m.logger.Info("job started", "job_id", rec.id)

	// The pipeline runs in its own goroutine so a hung stage cannot
	// wedge the timeout. The result channel is buffered: a late
	// return after timeout or cancellation is dropped, not leaked.
	results := make(chan pipelineResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- pipelineResult{err: fmt.Errorf("pipeline panic: %v", r)}
			}
		}()
		sealed, err := m.run(ctx, submission)
		results <- pipelineResult{sealed: sealed, err: err}
	}()

	select {
	case result := <-results:
		if result.err == nil && result.sealed == nil {
			result.err = errors.New("pipeline returned no package and no error")
		}
		m.finish(rec, result.sealed, result.err)
	case <-m.clock.After(m.timeout):
		rec.cancel()
		m.finish(rec, nil, fmt.Errorf("job exceeded %s budget: %w", m.timeout, context.DeadlineExceeded))
	case <-ctx.Done():
		// Canceled while running. Record the outcome immediately
		// rather than waiting for the pipeline to notice.
		m.finish(rec, nil, ctx.Err())
	}
}

// finish records a job's terminal status. Called exactly once per job.
func (m *Manager) finish(rec *record, sealed *audit.Sealed, err error) {
	completed := m.clock.Now().UTC()

	m.mu.Lock()
	rec.completedAt = completed
	if err != nil {
		rec.status = StatusFailed
		rec.err = err
		rec.info = classify(err)
	} else {
		rec.status = StatusCompleted
		rec.sealed = sealed
	}
	info := rec.info
	close(rec.done)
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("job failed", "job_id", rec.id, "kind", info.Kind, "error", err)
		return
	}
	m.logger.Info("job completed", "job_id", rec.id, "ref", sealed.Ref())
}

// Poll returns a point-in-time snapshot of the job. Read-only: polling
// never changes job state. Returns ErrNotFound for unknown IDs.
func (m *Manager) Poll(id string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.snapshot(), nil
}

// snapshot builds an independent copy of the record's observable
// state. Caller must hold Manager.mu.
func (r *record) snapshot() *Snapshot {
	snapshot := &Snapshot{
		ID:          r.id,
		Status:      r.status,
		SubmittedAt: r.submittedAt,
	}
	if !r.startedAt.IsZero() {
		started := r.startedAt
		snapshot.StartedAt = &started
	}
	if !r.completedAt.IsZero() {
		completed := r.completedAt
		snapshot.CompletedAt = &completed
	}
	if r.info != nil {
		info := *r.info
		info.FailingRequirementIDs = append([]string(nil), r.info.FailingRequirementIDs...)
		snapshot.Error = &info
	}
	return snapshot
}

// Stats returns current job counts by status.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats Stats
	for _, rec := range m.records {
		switch rec.status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// Cancel requests cancellation of a job. Best-effort: a job that
// already reached a terminal status is unaffected (a completed job
// stays completed). Returns ErrNotFound for unknown IDs.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	rec, ok := m.records[id]
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	rec.cancel()
	return nil
}

// Artifact returns the sealed audit package of a completed job.
// Returns ErrNotFound for unknown IDs, ErrNotReady while the job is
// still pending or running, and the job's recorded error if it failed.
func (m *Manager) Artifact(id string) (*audit.Sealed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	switch rec.status {
	case StatusCompleted:
		return rec.sealed, nil
	case StatusFailed:
		return nil, rec.err
	default:
		return nil, ErrNotReady
	}
}

// Run starts the retention sweep ticker. Blocks until ctx is
// cancelled. Without a running sweep, terminal jobs stay pollable
// forever and the records map grows without bound.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-ctx.Done():
			return
		}
	}
}

// sweep removes terminal jobs whose completion time has aged past the
// retention window. Pending and running jobs are never swept.
func (m *Manager) sweep() {
	threshold := m.clock.Now().Add(-m.retention)

	m.mu.Lock()
	removed := 0
	for id, rec := range m.records {
		terminal := rec.status == StatusCompleted || rec.status == StatusFailed
		if terminal && rec.completedAt.Before(threshold) {
			delete(m.records, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("swept expired jobs", "removed", removed)
	}
}

// Close stops accepting new submissions and waits for every in-flight
// job to reach a terminal status. Pending jobs are drained, not
// dropped; the per-job timeout bounds how long the drain can take.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()
}
