// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bureau-foundation/attest/lib/deviation"
	"github.com/bureau-foundation/attest/lib/trail"
)

// Tunable field names accepted by [Settings.Update].
const (
	FieldRiskThreshold = "risk_threshold"
	FieldStrictMode    = "strict_mode"
)

// Settings is the runtime view of the tunable audit fields. The HTTP
// config endpoints read and update it; generation jobs pick up the
// values current at submission. Every update attempt is recorded to
// the change trail, including rejected ones, so an auditor reviewing
// the trail sees what was tried, not only what stuck.
type Settings struct {
	mu       sync.RWMutex
	recorder *trail.Recorder
	logger   *slog.Logger

	riskThreshold deviation.RiskLevel
	strictMode    bool
}

// SettingsView is the JSON shape of the effective tunable settings.
type SettingsView struct {
	RiskThreshold string `json:"risk_threshold"`
	StrictMode    bool   `json:"strict_mode"`
}

// SettingsConfig configures Settings.
type SettingsConfig struct {
	// Audit seeds the initial values.
	Audit AuditConfig

	// Recorder receives a Change for every update attempt. Required.
	Recorder *trail.Recorder

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewSettings builds the runtime settings from the audit section.
func NewSettings(config SettingsConfig) (*Settings, error) {
	if config.Recorder == nil {
		panic("config.NewSettings: Recorder is required")
	}
	if config.Logger == nil {
		panic("config.NewSettings: Logger is required")
	}

	level, err := deviation.ParseRiskLevel(config.Audit.RiskThreshold)
	if err != nil {
		return nil, fmt.Errorf("audit.risk_threshold: %w", err)
	}

	return &Settings{
		recorder:      config.Recorder,
		logger:        config.Logger,
		riskThreshold: level,
		strictMode:    config.Audit.StrictMode,
	}, nil
}

// RiskThreshold returns the effective deviation risk threshold.
func (s *Settings) RiskThreshold() deviation.RiskLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.riskThreshold
}

// StrictMode reports whether the compliance gate fails on any coverage
// gap rather than only critical ones.
func (s *Settings) StrictMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strictMode
}

// View returns the effective settings.
func (s *Settings) View() SettingsView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SettingsView{
		RiskThreshold: string(s.riskThreshold),
		StrictMode:    s.strictMode,
	}
}

// Update applies one field change and records it to the trail. Applied
// changes record the normalized value; a change naming an unknown
// field or carrying an invalid value is recorded with its raw value
// and status rejected, and returned as an error.
func (s *Settings) Update(field, value, actor, reason string) (trail.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldValue, newValue string
	var apply func()

	switch field {
	case FieldRiskThreshold:
		oldValue = string(s.riskThreshold)
		level, err := deviation.ParseRiskLevel(value)
		if err != nil {
			return s.reject(actor, field, oldValue, value, reason, err)
		}
		newValue = string(level)
		apply = func() { s.riskThreshold = level }

	case FieldStrictMode:
		oldValue = strconv.FormatBool(s.strictMode)
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return s.reject(actor, field, oldValue, value, reason,
				fmt.Errorf("strict_mode must be a boolean, got %q", value))
		}
		newValue = strconv.FormatBool(enabled)
		apply = func() { s.strictMode = enabled }

	default:
		return s.reject(actor, field, "", value, reason,
			fmt.Errorf("unknown tunable field %q (tunable: %s, %s)",
				field, FieldRiskThreshold, FieldStrictMode))
	}

	apply()
	change, err := s.recorder.Record(actor, field, oldValue, newValue, reason, trail.StatusApplied)
	if err != nil {
		return trail.Change{}, err
	}
	s.logger.Info("setting updated",
		"field", field,
		"old_value", oldValue,
		"new_value", newValue,
		"actor", actor)
	return change, nil
}

// reject records a refused update and returns the validation error.
func (s *Settings) reject(actor, field, oldValue, value, reason string, cause error) (trail.Change, error) {
	change, recordErr := s.recorder.Record(actor, field, oldValue, value, reason, trail.StatusRejected)
	if recordErr != nil {
		return trail.Change{}, errors.Join(cause, recordErr)
	}
	s.logger.Warn("setting update rejected",
		"field", field,
		"value", value,
		"actor", actor,
		"error", cause)
	return change, cause
}
