// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package trail records configuration changes made through the running
// service.
//
// Every attempted change to a runtime-tunable setting is recorded,
// rejected attempts included, so the trail answers "who tried to turn
// the gate off" as well as "who turned it off". Each change is one
// JSONL line, making the trail:
//
//   - Crash-safe: a SIGKILL mid-write preserves every completed entry.
//     A single JSON document would be truncated and unparseable.
//   - Append-only: recording never rewrites history.
//
// When no path is configured the trail is memory-only and lost on
// restart.
package trail

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/attest/lib/clock"
)

// Status says whether a recorded change was applied or rejected.
type Status string

const (
	// StatusApplied means the setting now carries the new value.
	StatusApplied Status = "applied"
	// StatusRejected means validation refused the new value and the
	// old value is still in effect.
	StatusRejected Status = "rejected"
)

// Change is one recorded configuration change attempt.
type Change struct {
	ID        string    `json:"id"`
	ChangedAt time.Time `json:"changed_at"`
	Actor     string    `json:"actor"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	Reason    string    `json:"reason"`
	Status    Status    `json:"status"`
}

// csvHeader matches the column layout auditors already ingest.
var csvHeader = []string{"Change ID", "Timestamp", "User ID", "Field Changed", "Old Value", "New Value", "Reason", "Status"}

// csvTimeLayout renders "2006-01-02 15:04:05 UTC" for UTC timestamps.
const csvTimeLayout = "2006-01-02 15:04:05 MST"

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// Path is the JSONL trail file. Existing entries are loaded on
	// open and new entries appended. Empty means memory-only.
	Path string

	// Clock for change timestamps. Defaults to clock.Real().
	Clock clock.Clock

	// Logger for persistence warnings. Required.
	Logger *slog.Logger
}

// Recorder keeps the configuration change trail: an in-memory list
// backed by an append-only JSONL file. Safe for concurrent use.
type Recorder struct {
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	changes []Change
	file    *os.File
	encoder *json.Encoder
}

// NewRecorder opens the trail, loading any entries already recorded.
// Panics if Logger is missing.
func NewRecorder(config RecorderConfig) (*Recorder, error) {
	if config.Logger == nil {
		panic("trail.NewRecorder: Logger is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	recorder := &Recorder{
		clock:  config.Clock,
		logger: config.Logger,
	}
	if config.Path == "" {
		return recorder, nil
	}

	existing, err := loadTrail(config.Path, config.Logger)
	if err != nil {
		return nil, err
	}
	recorder.changes = existing

	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening trail %s: %w", config.Path, err)
	}
	recorder.file = file
	recorder.encoder = json.NewEncoder(file)
	return recorder, nil
}

// loadTrail reads the existing JSONL entries. A corrupt line (crash
// mid-write) is skipped with a warning; everything before and after it
// is kept.
func loadTrail(path string, logger *slog.Logger) ([]Change, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading trail %s: %w", path, err)
	}

	var changes []Change
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var change Change
		if err := json.Unmarshal(text, &change); err != nil {
			logger.Warn("skipping corrupt trail line", "path", path, "line", line, "error", err)
			continue
		}
		changes = append(changes, change)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning trail %s: %w", path, err)
	}
	return changes, nil
}

// Record appends a change to the trail and returns it with its ID and
// timestamp filled in. A persistence failure is logged, not returned:
// the in-memory trail stays authoritative for the running process.
func (r *Recorder) Record(actor, field, oldValue, newValue, reason string, status Status) (Change, error) {
	id, err := newChangeID()
	if err != nil {
		return Change{}, fmt.Errorf("generating change id: %w", err)
	}

	change := Change{
		ID:        id,
		ChangedAt: r.clock.Now().UTC(),
		Actor:     actor,
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
		Reason:    reason,
		Status:    status,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes = append(r.changes, change)
	r.persist(change)
	return change, nil
}

// persist writes one JSONL line and syncs so the entry survives a
// crash. Caller must hold r.mu.
func (r *Recorder) persist(change Change) {
	if r.encoder == nil {
		return
	}
	if err := r.encoder.Encode(change); err != nil {
		r.logger.Warn("failed to write trail entry", "change_id", change.ID, "error", err)
		return
	}
	if err := r.file.Sync(); err != nil {
		r.logger.Warn("failed to sync trail", "error", err)
	}
}

// List returns recorded changes newest-first. A positive limit caps
// how many are returned; zero or negative means all.
func (r *Recorder) List(limit int) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := len(r.changes)
	if limit > 0 && limit < count {
		count = limit
	}
	out := make([]Change, 0, count)
	for i := len(r.changes) - 1; i >= 0 && len(out) < count; i-- {
		out = append(out, r.changes[i])
	}
	return out
}

// WriteCSV renders the trail newest-first as CSV with the column
// layout auditors ingest. A positive limit caps the row count.
func (r *Recorder) WriteCSV(w io.Writer, limit int) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("writing trail CSV header: %w", err)
	}
	for _, change := range r.List(limit) {
		row := []string{
			change.ID,
			change.ChangedAt.UTC().Format(csvTimeLayout),
			change.Actor,
			change.Field,
			change.OldValue,
			change.NewValue,
			change.Reason,
			string(change.Status),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing trail CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Close flushes and closes the trail file. Nil-safe and safe to call
// for memory-only recorders.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.encoder = nil
	return err
}

// newChangeID creates a random change identifier ("chg-" plus 12 hex
// characters).
func newChangeID() (string, error) {
	var buffer [6]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", err
	}
	return "chg-" + hex.EncodeToString(buffer[:]), nil
}
