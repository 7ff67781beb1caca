// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// seedDemo writes the demo input set into a temp directory and returns
// its path. Commands are exercised against these files, so the tests
// cover the same path an operator walks after `attest seed`.
func seedDemo(t *testing.T, protected bool) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "demo")
	if err := runSeed(&seedParams{Dir: dir, Protected: protected}); err != nil {
		t.Fatalf("seeding demo inputs: %v", err)
	}
	return dir
}

// demoGenerateParams fills generate params the way pflag defaults
// would, pointed at a seeded demo directory.
func demoGenerateParams(t *testing.T, dir string) *generateParams {
	t.Helper()
	return &generateParams{
		Requirements:  filepath.Join(dir, "requirements.jsonc"),
		Subject:       filepath.Join(dir, "subject.yaml"),
		Results:       filepath.Join(dir, "results.json"),
		Inventory:     filepath.Join(dir, "inventory.json"),
		Deviations:    filepath.Join(dir, "deviations.json"),
		Sessions:      filepath.Join(dir, "sessions.json"),
		Annotations:   filepath.Join(dir, "annotations.json"),
		SigningKey:    filepath.Join(dir, "signing.key"),
		RiskThreshold: "high",
		Out:           filepath.Join(t.TempDir(), "audit.bundle"),
		Compression:   "zstd",
	}
}

// generateDemo seeds a demo directory, runs generate over it, and
// returns the bundle path and the demo directory.
func generateDemo(t *testing.T) (bundlePath, demoDir string) {
	t.Helper()
	demoDir = seedDemo(t, false)
	params := demoGenerateParams(t, demoDir)
	if err := runGenerate(params); err != nil {
		t.Fatalf("generating demo bundle: %v", err)
	}
	return params.Out, demoDir
}

// captureStdout captures stdout output during fn execution.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	original := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = writer

	fn()

	writer.Close()
	os.Stdout = original

	var buffer bytes.Buffer
	io.Copy(&buffer, reader)
	reader.Close()

	return buffer.String()
}
