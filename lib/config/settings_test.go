// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"io"
	"log/slog"
	"testing"

	"github.com/bureau-foundation/attest/lib/deviation"
	"github.com/bureau-foundation/attest/lib/trail"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSettings(t *testing.T) (*Settings, *trail.Recorder) {
	t.Helper()

	recorder, err := trail.NewRecorder(trail.RecorderConfig{
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	t.Cleanup(func() { recorder.Close() })

	settings, err := NewSettings(SettingsConfig{
		Audit:    Default().Audit,
		Recorder: recorder,
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewSettings failed: %v", err)
	}
	return settings, recorder
}

func TestNewSettingsParsesThreshold(t *testing.T) {
	recorder, err := trail.NewRecorder(trail.RecorderConfig{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	defer recorder.Close()

	settings, err := NewSettings(SettingsConfig{
		Audit:    AuditConfig{RiskThreshold: "MEDIUM", StrictMode: true},
		Recorder: recorder,
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewSettings failed: %v", err)
	}

	if settings.RiskThreshold() != deviation.RiskMedium {
		t.Errorf("expected threshold medium, got %s", settings.RiskThreshold())
	}
	if !settings.StrictMode() {
		t.Error("expected strict mode enabled")
	}

	view := settings.View()
	if view.RiskThreshold != "medium" {
		t.Errorf("expected normalized view threshold medium, got %s", view.RiskThreshold)
	}
	if !view.StrictMode {
		t.Error("expected view strict mode enabled")
	}
}

func TestNewSettingsRejectsBadThreshold(t *testing.T) {
	recorder, err := trail.NewRecorder(trail.RecorderConfig{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	defer recorder.Close()

	_, err = NewSettings(SettingsConfig{
		Audit:    AuditConfig{RiskThreshold: "volcanic"},
		Recorder: recorder,
		Logger:   discardLogger(),
	})
	if err == nil {
		t.Fatal("expected error for unknown risk threshold")
	}
}

func TestNewSettingsPanicsOnMissingDependencies(t *testing.T) {
	recorder, err := trail.NewRecorder(trail.RecorderConfig{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	defer recorder.Close()

	tests := []struct {
		name   string
		config SettingsConfig
	}{
		{
			name:   "missing recorder",
			config: SettingsConfig{Audit: Default().Audit, Logger: discardLogger()},
		},
		{
			name:   "missing logger",
			config: SettingsConfig{Audit: Default().Audit, Recorder: recorder},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic, got none")
				}
			}()
			NewSettings(tt.config)
		})
	}
}

func TestUpdateRiskThreshold(t *testing.T) {
	settings, recorder := newTestSettings(t)

	change, err := settings.Update(FieldRiskThreshold, "MEDIUM", "auditor-1", "quarterly review lowered the bar")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if change.Status != trail.StatusApplied {
		t.Errorf("expected status applied, got %s", change.Status)
	}
	if change.Field != FieldRiskThreshold {
		t.Errorf("expected field risk_threshold, got %s", change.Field)
	}
	if change.OldValue != "high" {
		t.Errorf("expected old value high, got %s", change.OldValue)
	}
	if change.NewValue != "medium" {
		t.Errorf("expected normalized new value medium, got %s", change.NewValue)
	}
	if change.Actor != "auditor-1" {
		t.Errorf("expected actor auditor-1, got %s", change.Actor)
	}

	if settings.RiskThreshold() != deviation.RiskMedium {
		t.Errorf("expected threshold medium after update, got %s", settings.RiskThreshold())
	}

	changes := recorder.List(0)
	if len(changes) != 1 {
		t.Fatalf("expected 1 trail entry, got %d", len(changes))
	}
	if changes[0].ID != change.ID {
		t.Errorf("trail entry %s does not match returned change %s", changes[0].ID, change.ID)
	}
}

func TestUpdateStrictMode(t *testing.T) {
	settings, _ := newTestSettings(t)

	// strconv.ParseBool accepts "1"; the recorded value is normalized.
	change, err := settings.Update(FieldStrictMode, "1", "auditor-2", "enable the gate for the release audit")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if change.NewValue != "true" {
		t.Errorf("expected normalized new value true, got %s", change.NewValue)
	}
	if change.OldValue != "false" {
		t.Errorf("expected old value false, got %s", change.OldValue)
	}
	if !settings.StrictMode() {
		t.Error("expected strict mode enabled after update")
	}
}

func TestUpdateRejectsInvalidThreshold(t *testing.T) {
	settings, recorder := newTestSettings(t)

	change, err := settings.Update(FieldRiskThreshold, "volcanic", "auditor-1", "typo")
	if err == nil {
		t.Fatal("expected error for unknown risk level")
	}

	if change.Status != trail.StatusRejected {
		t.Errorf("expected status rejected, got %s", change.Status)
	}
	// Rejected changes record the raw attempted value, not a normalization.
	if change.NewValue != "volcanic" {
		t.Errorf("expected raw attempted value, got %s", change.NewValue)
	}

	if settings.RiskThreshold() != deviation.RiskHigh {
		t.Errorf("threshold changed despite rejection: %s", settings.RiskThreshold())
	}

	changes := recorder.List(0)
	if len(changes) != 1 {
		t.Fatalf("expected rejected attempt in trail, got %d entries", len(changes))
	}
	if changes[0].Status != trail.StatusRejected {
		t.Errorf("expected trail status rejected, got %s", changes[0].Status)
	}
}

func TestUpdateRejectsInvalidBool(t *testing.T) {
	settings, _ := newTestSettings(t)

	_, err := settings.Update(FieldStrictMode, "definitely", "auditor-2", "")
	if err == nil {
		t.Fatal("expected error for non-boolean value")
	}
	if settings.StrictMode() {
		t.Error("strict mode changed despite rejection")
	}
}

func TestUpdateRejectsUnknownField(t *testing.T) {
	settings, recorder := newTestSettings(t)

	change, err := settings.Update("system_prompt", "You are a helpful auditor", "auditor-3", "probing")
	if err == nil {
		t.Fatal("expected error for unknown field")
	}

	if change.Status != trail.StatusRejected {
		t.Errorf("expected status rejected, got %s", change.Status)
	}

	// The attempt is still visible to a reviewer of the trail.
	changes := recorder.List(0)
	if len(changes) != 1 {
		t.Fatalf("expected trail entry for rejected field, got %d", len(changes))
	}
	if changes[0].Field != "system_prompt" {
		t.Errorf("expected trail field system_prompt, got %s", changes[0].Field)
	}
}

func TestUpdateSequenceIsNewestFirst(t *testing.T) {
	settings, recorder := newTestSettings(t)

	if _, err := settings.Update(FieldRiskThreshold, "low", "auditor-1", "first"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := settings.Update(FieldRiskThreshold, "critical", "auditor-1", "second"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	changes := recorder.List(0)
	if len(changes) != 2 {
		t.Fatalf("expected 2 trail entries, got %d", len(changes))
	}
	if changes[0].Reason != "second" || changes[1].Reason != "first" {
		t.Errorf("expected newest-first ordering, got %q then %q", changes[0].Reason, changes[1].Reason)
	}

	// The second update's old value chains from the first.
	if changes[0].OldValue != "low" {
		t.Errorf("expected chained old value low, got %s", changes[0].OldValue)
	}
}
