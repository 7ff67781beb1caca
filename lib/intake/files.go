// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intake

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/coverage"
	"github.com/bureau-foundation/attest/lib/deviation"
	"github.com/bureau-foundation/attest/lib/inventory"
	"github.com/bureau-foundation/attest/lib/transcript"
)

// RequirementsDoc is the on-disk requirements catalog: the
// requirements themselves plus the links mapping tests onto them.
// Authored as JSONC (JSON extended with // comments, /* blocks */,
// and trailing commas) since catalogs are hand-maintained.
type RequirementsDoc struct {
	Requirements []Requirement   `json:"requirements"`
	Links        []coverage.Link `json:"links"`
}

// ReadRequirementsDoc reads a JSONC requirements catalog from disk.
func ReadRequirementsDoc(path string) (*RequirementsDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var doc RequirementsDoc
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, fmt.Errorf("parsing requirements catalog %s: %w", path, err)
	}
	return &doc, nil
}

// ReadSubject reads a YAML subject descriptor from disk.
func ReadSubject(path string) (audit.Subject, error) {
	var doc struct {
		Agent         string `yaml:"agent"`
		Version       string `yaml:"version"`
		Model         string `yaml:"model"`
		ModelDigest   string `yaml:"model_digest"`
		Adapter       string `yaml:"adapter"`
		AdapterDigest string `yaml:"adapter_digest"`
		Environment   string `yaml:"environment"`
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return audit.Subject{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return audit.Subject{}, fmt.Errorf("parsing subject descriptor %s: %w", path, err)
	}

	return audit.Subject{
		Agent:         doc.Agent,
		Version:       doc.Version,
		Model:         doc.Model,
		ModelDigest:   doc.ModelDigest,
		Adapter:       doc.Adapter,
		AdapterDigest: doc.AdapterDigest,
		Environment:   doc.Environment,
	}, nil
}

// ReadTestResults reads a JSON array of test results from disk.
func ReadTestResults(path string) ([]coverage.TestResult, error) {
	return readJSONArray[coverage.TestResult](path, "test results")
}

// ReadInventory reads a JSON array of inventory components from disk.
func ReadInventory(path string) ([]inventory.Component, error) {
	return readJSONArray[inventory.Component](path, "inventory")
}

// ReadLibrarySnapshot reads a plain-text dependency snapshot (one
// "name==version" per line, pip-freeze style) into library components.
// Blank lines and lines starting with # are skipped; a line without the
// "==" separator becomes a component with version "unknown".
func ReadLibrarySnapshot(path string) ([]inventory.Component, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var components []inventory.Component
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		components = append(components, inventory.ParseLibrary(line))
	}
	return components, nil
}

// ReadDeviations reads a JSON array of deviation events from disk.
func ReadDeviations(path string) ([]deviation.Event, error) {
	return readJSONArray[deviation.Event](path, "deviations")
}

// ReadSessionEvents reads a JSON array of session turn events from
// disk.
func ReadSessionEvents(path string) ([]transcript.Event, error) {
	return readJSONArray[transcript.Event](path, "session events")
}

// ReadAnnotations reads a JSON array of turn annotations from disk.
func ReadAnnotations(path string) ([]transcript.Annotation, error) {
	return readJSONArray[transcript.Annotation](path, "annotations")
}

func readJSONArray[T any](path, what string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing %s file %s: %w", what, path, err)
	}
	return items, nil
}
