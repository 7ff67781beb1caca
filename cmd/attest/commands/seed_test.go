// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/attest/lib/intake"
	"github.com/bureau-foundation/attest/lib/vault"
)

func TestSeed_WritesCompleteInputSet(t *testing.T) {
	dir := seedDemo(t, false)

	for _, name := range []string{
		"requirements.jsonc",
		"subject.yaml",
		"results.json",
		"inventory.json",
		"deviations.json",
		"sessions.json",
		"annotations.json",
		"signing.key",
		"signing.key.pub",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("seed did not write %s: %v", name, err)
		}
	}

	catalog, err := intake.ReadRequirementsDoc(filepath.Join(dir, "requirements.jsonc"))
	if err != nil {
		t.Fatalf("parsing seeded catalog: %v", err)
	}
	if len(catalog.Requirements) != 4 {
		t.Errorf("seeded catalog has %d requirements, want 4", len(catalog.Requirements))
	}
	if len(catalog.Links) == 0 {
		t.Error("seeded catalog has no links")
	}

	subject, err := intake.ReadSubject(filepath.Join(dir, "subject.yaml"))
	if err != nil {
		t.Fatalf("parsing seeded subject: %v", err)
	}
	if subject.Agent != "support-triage" || subject.Environment != "production" {
		t.Errorf("unexpected seeded subject: %+v", subject)
	}

	results, err := intake.ReadTestResults(filepath.Join(dir, "results.json"))
	if err != nil {
		t.Fatalf("parsing seeded results: %v", err)
	}
	if len(results) != 5 {
		t.Errorf("seeded %d test results, want 5", len(results))
	}

	events, err := intake.ReadSessionEvents(filepath.Join(dir, "sessions.json"))
	if err != nil {
		t.Fatalf("parsing seeded sessions: %v", err)
	}
	for _, event := range events {
		if len(event.Protected) > 0 {
			t.Errorf("unprotected seed sealed session %s turn %d", event.SessionID, event.SequenceNo)
		}
	}
}

func TestSeed_Protected(t *testing.T) {
	dir := seedDemo(t, true)

	for _, name := range []string{"vault.identity", "vault.key"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("protected seed did not write %s: %v", name, err)
		}
		if mode := info.Mode().Perm(); mode != 0o600 {
			t.Errorf("%s has mode %v, want 0600", name, mode)
		}
	}

	events, err := intake.ReadSessionEvents(filepath.Join(dir, "sessions.json"))
	if err != nil {
		t.Fatalf("parsing seeded sessions: %v", err)
	}

	var sealed, plain int
	for _, event := range events {
		if len(event.Protected) > 0 {
			sealed++
			if event.Content != "" {
				t.Errorf("session %s turn %d carries both content and protected payload", event.SessionID, event.SequenceNo)
			}
		} else {
			plain++
		}
	}
	if sealed != 2 {
		t.Fatalf("protected seed sealed %d turns, want 2", sealed)
	}
	if plain != 4 {
		t.Errorf("protected seed left %d plaintext turns, want 4", plain)
	}

	// The seeded vault files must open the turns the seeder sealed.
	v, err := vault.LoadFromFiles(filepath.Join(dir, "vault.key"), filepath.Join(dir, "vault.identity"))
	if err != nil {
		t.Fatalf("loading seeded vault: %v", err)
	}
	defer v.Close()

	for _, event := range events {
		if len(event.Protected) == 0 {
			continue
		}
		plaintext, err := v.Open(context.Background(), event.SessionID, event.Protected)
		if err != nil {
			t.Fatalf("opening session %s turn %d: %v", event.SessionID, event.SequenceNo, err)
		}
		if event.SequenceNo == 0 && !strings.Contains(string(plaintext), "refund of order #18240") {
			t.Errorf("opened turn 0 reads %q, want the refund request", plaintext)
		}
	}
}
