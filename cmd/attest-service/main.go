// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Attest-service is the network-facing audit generation process. It
// accepts evidence submissions over HTTP, runs the generation pipeline
// asynchronously, and serves sealed audit packages in every registered
// export format.
//
// On startup:
//  1. Loads the YAML config (--config flag or ATTEST_CONFIG).
//  2. Opens the config change trail and the runtime settings view.
//  3. Opens the transcript vault when one is configured.
//  4. Loads the Ed25519 signing key and builds the sealer.
//  5. Starts the job manager, its retention sweep, and the HTTP API.
//
// The process shuts down on SIGINT/SIGTERM: the listener drains
// in-flight requests, then the job manager drains in-flight jobs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/config"
	"github.com/bureau-foundation/attest/lib/export"
	"github.com/bureau-foundation/attest/lib/intake"
	"github.com/bureau-foundation/attest/lib/jobs"
	"github.com/bureau-foundation/attest/lib/pipeline"
	"github.com/bureau-foundation/attest/lib/process"
	"github.com/bureau-foundation/attest/lib/secret"
	"github.com/bureau-foundation/attest/lib/service"
	"github.com/bureau-foundation/attest/lib/trail"
	"github.com/bureau-foundation/attest/lib/transcript"
	"github.com/bureau-foundation/attest/lib/vault"
	"github.com/bureau-foundation/attest/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to the attest.yaml config file (overrides ATTEST_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("attest-service %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := service.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := service.NewLogger(level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Validate already proved these parse.
	shutdownTimeout, err := cfg.ShutdownTimeout()
	if err != nil {
		return err
	}
	jobTimeout, err := cfg.JobTimeout()
	if err != nil {
		return err
	}
	retention, err := cfg.RetainCompleted()
	if err != nil {
		return err
	}

	// Config change trail. Every tunable update flows through here, so
	// the recorder outlives everything that can write to it.
	recorder, err := trail.NewRecorder(trail.RecorderConfig{
		Path:   cfg.Trail.Path,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening change trail: %w", err)
	}
	defer recorder.Close()

	settings, err := config.NewSettings(config.SettingsConfig{
		Audit:    cfg.Audit,
		Recorder: recorder,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	// Transcript vault. Optional: without it, submissions carrying
	// protected session content are rejected at generation time.
	var decryptor transcript.Decryptor
	if cfg.Vault.IdentityFile != "" {
		transcriptVault, err := vault.LoadFromFiles(cfg.Vault.MasterKeyFile, cfg.Vault.IdentityFile)
		if err != nil {
			return fmt.Errorf("opening transcript vault: %w", err)
		}
		defer transcriptVault.Close()
		decryptor = transcriptVault
		logger.Info("transcript vault opened")
	}

	// Sealing identity.
	if cfg.Seal.SigningKeyFile == "" {
		return fmt.Errorf("seal.signing_key_file is required to run the service")
	}
	seed, err := secret.ReadFromPath(cfg.Seal.SigningKeyFile)
	if err != nil {
		return fmt.Errorf("reading signing key from %s: %w", cfg.Seal.SigningKeyFile, err)
	}
	signer, err := audit.NewLocalSigner(seed, cfg.Seal.KeyID)
	seed.Close()
	if err != nil {
		return fmt.Errorf("loading signing key: %w", err)
	}
	sealer := audit.NewSealer(audit.SealerConfig{
		Signer:      signer,
		Logger:      logger,
		MaxAttempts: cfg.Seal.MaxAttempts,
	})

	// The pipeline reads threshold and strict mode from settings on
	// every run, so a PATCH to the config endpoint applies to all
	// subsequent jobs without a restart.
	runPipeline := func(ctx context.Context, submission *intake.Submission) (*audit.Sealed, error) {
		return pipeline.Run(ctx, submission, pipeline.Options{
			Threshold: settings.RiskThreshold(),
			Strict:    settings.StrictMode(),
			Decryptor: decryptor,
			Sealer:    sealer,
			Logger:    logger,
		})
	}

	manager := jobs.NewManager(jobs.ManagerConfig{
		Run:           runPipeline,
		Logger:        logger,
		MaxConcurrent: cfg.Audit.MaxConcurrentJobs,
		Timeout:       jobTimeout,
		Retention:     retention,
	})
	go manager.Run(ctx)

	// Optional submission authentication.
	var submissionSecret []byte
	if cfg.Service.SubmissionSecretFile != "" {
		submissionSecret, err = readSubmissionSecret(cfg.Service.SubmissionSecretFile)
		if err != nil {
			return err
		}
		logger.Info("submission authentication enabled")
	}

	handler := newAPI(apiConfig{
		Jobs:             manager,
		Settings:         settings,
		Recorder:         recorder,
		Registry:         export.NewBuiltinRegistry(),
		Logger:           logger,
		SubmissionSecret: submissionSecret,
	})

	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         cfg.Service.ListenAddress,
		Handler:         handler,
		ShutdownTimeout: shutdownTimeout,
		Logger:          logger,
	})

	logger.Info("attest service starting",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"address", cfg.Service.ListenAddress,
		"key_id", signer.KeyID(),
		"risk_threshold", string(settings.RiskThreshold()),
		"strict_mode", settings.StrictMode())

	serveErr := httpServer.Serve(ctx)

	// The listener has drained; finish the jobs that are still running
	// before the recorder and vault close underneath them.
	manager.Close()
	logger.Info("attest service stopped")
	return serveErr
}

// loadConfig resolves the config from the --config flag, falling back
// to the ATTEST_CONFIG environment variable.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// readSubmissionSecret reads the HMAC secret for submission
// authentication. The secret must be non-empty.
func readSubmissionSecret(secretFile string) ([]byte, error) {
	data, err := os.ReadFile(secretFile)
	if err != nil {
		return nil, fmt.Errorf("reading submission secret from %s: %w", secretFile, err)
	}

	submissionSecret := []byte(strings.TrimSpace(string(data)))
	if len(submissionSecret) == 0 {
		return nil, fmt.Errorf("submission secret file %s is empty", secretFile)
	}

	return submissionSecret, nil
}
