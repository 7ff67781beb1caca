// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/attest/lib/deviation"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for attest.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Service configures the HTTP API.
	Service ServiceConfig `yaml:"service"`

	// Audit configures package generation.
	Audit AuditConfig `yaml:"audit"`

	// Seal configures document signing.
	Seal SealConfig `yaml:"seal"`

	// Vault configures protected-payload decryption. Optional: with no
	// identity configured, protected transcript turns fail generation.
	Vault VaultConfig `yaml:"vault"`

	// Trail configures the configuration change trail.
	Trail TrailConfig `yaml:"trail"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Service *ServiceConfig `yaml:"service,omitempty"`
	Audit   *AuditConfig   `yaml:"audit,omitempty"`
	Seal    *SealConfig    `yaml:"seal,omitempty"`
	Vault   *VaultConfig   `yaml:"vault,omitempty"`
	Trail   *TrailConfig   `yaml:"trail,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty"`
}

// ServiceConfig configures the HTTP API.
type ServiceConfig struct {
	// ListenAddress is the host:port the API binds.
	// Default: 127.0.0.1:8620
	ListenAddress string `yaml:"listen_address"`

	// ShutdownTimeout bounds graceful shutdown, as a duration string.
	// Default: 10s
	ShutdownTimeout string `yaml:"shutdown_timeout"`

	// SubmissionSecretFile is the path to the shared secret used to
	// verify X-Attest-Signature-256 on submissions. Empty disables
	// signature verification.
	SubmissionSecretFile string `yaml:"submission_secret_file"`
}

// AuditConfig configures package generation.
type AuditConfig struct {
	// RiskThreshold is the minimum deviation risk level retained in
	// packages: low, medium, high, or critical.
	// Default: high
	RiskThreshold string `yaml:"risk_threshold"`

	// StrictMode fails the compliance gate when any requirement is
	// uncovered, critical or not.
	// Default: false (development), true (production)
	StrictMode bool `yaml:"strict_mode"`

	// JobTimeout is the wall-clock budget for one generation job, as a
	// duration string.
	// Default: 10m
	JobTimeout string `yaml:"job_timeout"`

	// MaxConcurrentJobs bounds generation pipelines running at once.
	// Default: 4
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// RetainCompleted is how long finished jobs stay pollable, as a
	// duration string.
	// Default: 24h
	RetainCompleted string `yaml:"retain_completed"`
}

// SealConfig configures document signing.
type SealConfig struct {
	// SigningKeyFile is the path to the ed25519 signing seed, raw or
	// hex-encoded.
	SigningKeyFile string `yaml:"signing_key_file"`

	// KeyID names the signing key in sealed envelopes. Empty derives
	// one from the public key.
	KeyID string `yaml:"key_id"`

	// MaxAttempts bounds signing retries on transient failures.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts"`
}

// VaultConfig configures protected-payload decryption.
type VaultConfig struct {
	// IdentityFile is the path to the service's age X25519 identity.
	IdentityFile string `yaml:"identity_file"`

	// MasterKeyFile is the path to the age-encrypted vault master key.
	MasterKeyFile string `yaml:"master_key_file"`
}

// TrailConfig configures the configuration change trail.
type TrailConfig struct {
	// Path is the JSONL trail file. Empty keeps the trail in memory
	// only.
	Path string `yaml:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultState := filepath.Join(homeDir, ".local", "state", "attest")

	return &Config{
		Environment: Development,
		Service: ServiceConfig{
			ListenAddress:   "127.0.0.1:8620",
			ShutdownTimeout: "10s",
		},
		Audit: AuditConfig{
			RiskThreshold:     "high",
			StrictMode:        false,
			JobTimeout:        "10m",
			MaxConcurrentJobs: 4,
			RetainCompleted:   "24h",
		},
		Seal: SealConfig{
			MaxAttempts: 3,
		},
		Trail: TrailConfig{
			Path: filepath.Join(defaultState, "config-trail.jsonl"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the ATTEST_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if ATTEST_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("ATTEST_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("ATTEST_CONFIG environment variable not set; " +
			"set it to the path of your attest.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: the gate fails closed on coverage gaps.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Audit: &AuditConfig{
					StrictMode: true,
				},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Service != nil {
		if overrides.Service.ListenAddress != "" {
			c.Service.ListenAddress = overrides.Service.ListenAddress
		}
		if overrides.Service.ShutdownTimeout != "" {
			c.Service.ShutdownTimeout = overrides.Service.ShutdownTimeout
		}
		if overrides.Service.SubmissionSecretFile != "" {
			c.Service.SubmissionSecretFile = overrides.Service.SubmissionSecretFile
		}
	}

	if overrides.Audit != nil {
		if overrides.Audit.RiskThreshold != "" {
			c.Audit.RiskThreshold = overrides.Audit.RiskThreshold
		}
		// StrictMode is a bool, so we always apply it from overrides.
		c.Audit.StrictMode = overrides.Audit.StrictMode
		if overrides.Audit.JobTimeout != "" {
			c.Audit.JobTimeout = overrides.Audit.JobTimeout
		}
		if overrides.Audit.MaxConcurrentJobs != 0 {
			c.Audit.MaxConcurrentJobs = overrides.Audit.MaxConcurrentJobs
		}
		if overrides.Audit.RetainCompleted != "" {
			c.Audit.RetainCompleted = overrides.Audit.RetainCompleted
		}
	}

	if overrides.Seal != nil {
		if overrides.Seal.SigningKeyFile != "" {
			c.Seal.SigningKeyFile = overrides.Seal.SigningKeyFile
		}
		if overrides.Seal.KeyID != "" {
			c.Seal.KeyID = overrides.Seal.KeyID
		}
		if overrides.Seal.MaxAttempts != 0 {
			c.Seal.MaxAttempts = overrides.Seal.MaxAttempts
		}
	}

	if overrides.Vault != nil {
		if overrides.Vault.IdentityFile != "" {
			c.Vault.IdentityFile = overrides.Vault.IdentityFile
		}
		if overrides.Vault.MasterKeyFile != "" {
			c.Vault.MasterKeyFile = overrides.Vault.MasterKeyFile
		}
	}

	if overrides.Trail != nil {
		if overrides.Trail.Path != "" {
			c.Trail.Path = overrides.Trail.Path
		}
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Service.SubmissionSecretFile = expandVars(c.Service.SubmissionSecretFile, vars)
	c.Seal.SigningKeyFile = expandVars(c.Seal.SigningKeyFile, vars)
	c.Vault.IdentityFile = expandVars(c.Vault.IdentityFile, vars)
	c.Vault.MasterKeyFile = expandVars(c.Vault.MasterKeyFile, vars)
	c.Trail.Path = expandVars(c.Trail.Path, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Service.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("service.listen_address is required"))
	}
	if _, err := time.ParseDuration(c.Service.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("service.shutdown_timeout: %w", err))
	}

	if _, err := deviation.ParseRiskLevel(c.Audit.RiskThreshold); err != nil {
		errs = append(errs, fmt.Errorf("audit.risk_threshold: %w", err))
	}
	if _, err := time.ParseDuration(c.Audit.JobTimeout); err != nil {
		errs = append(errs, fmt.Errorf("audit.job_timeout: %w", err))
	}
	if c.Audit.MaxConcurrentJobs < 1 {
		errs = append(errs, fmt.Errorf("audit.max_concurrent_jobs must be at least 1"))
	}
	if _, err := time.ParseDuration(c.Audit.RetainCompleted); err != nil {
		errs = append(errs, fmt.Errorf("audit.retain_completed: %w", err))
	}

	if c.Seal.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("seal.max_attempts must be at least 1"))
	}

	// The vault is optional, but half a vault is a misconfiguration.
	if (c.Vault.IdentityFile == "") != (c.Vault.MasterKeyFile == "") {
		errs = append(errs, fmt.Errorf("vault.identity_file and vault.master_key_file must be set together"))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", levels))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ShutdownTimeout returns the parsed graceful shutdown budget.
func (c *Config) ShutdownTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.Service.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("service.shutdown_timeout: %w", err)
	}
	return timeout, nil
}

// JobTimeout returns the parsed per-job wall-clock budget.
func (c *Config) JobTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.Audit.JobTimeout)
	if err != nil {
		return 0, fmt.Errorf("audit.job_timeout: %w", err)
	}
	return timeout, nil
}

// RetainCompleted returns the parsed retention window for finished jobs.
func (c *Config) RetainCompleted() (time.Duration, error) {
	retention, err := time.ParseDuration(c.Audit.RetainCompleted)
	if err != nil {
		return 0, fmt.Errorf("audit.retain_completed: %w", err)
	}
	return retention, nil
}

// RiskThreshold returns the parsed deviation risk threshold.
func (c *Config) RiskThreshold() (deviation.RiskLevel, error) {
	level, err := deviation.ParseRiskLevel(c.Audit.RiskThreshold)
	if err != nil {
		return "", fmt.Errorf("audit.risk_threshold: %w", err)
	}
	return level, nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
