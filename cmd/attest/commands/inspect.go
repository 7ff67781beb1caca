// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/attest/cmd/attest/cli"
)

type inspectParams struct {
	cli.JSONOutput
}

// inspectResult is the JSON output for inspect: the envelope metadata
// plus aggregate counts over every package section.
type inspectResult struct {
	PackageID     string `json:"package_id"`
	SchemaVersion int    `json:"schema_version"`
	GeneratedAt   string `json:"generated_at"`
	SealedAt      string `json:"sealed_at"`
	KeyID         string `json:"key_id"`

	Agent        string `json:"agent"`
	AgentVersion string `json:"agent_version,omitempty"`
	Model        string `json:"model"`
	Environment  string `json:"environment,omitempty"`

	Overall         string `json:"overall"`
	Requirements    int    `json:"requirements"`
	CoveredPassed   int    `json:"covered_passed"`
	CoveredFailed   int    `json:"covered_failed"`
	Uncovered       int    `json:"uncovered"`
	CriticalFailing int    `json:"critical_failing"`

	Components         int    `json:"components"`
	Deviations         int    `json:"deviations"`
	DeviationThreshold string `json:"deviation_threshold"`
	Interventions      int    `json:"interventions"`
	Sessions           int    `json:"sessions"`
	Turns              int    `json:"turns"`

	Warnings []string `json:"warnings"`
}

func inspectCommand() *cli.Command {
	var params inspectParams

	return &cli.Command{
		Name:    "inspect",
		Summary: "Summarize a bundle's contents",
		Description: `Decode a sealed bundle and print a summary of the package it
carries: subject, coverage counts, inventory size, retained
deviations, and session transcripts. Inspect decodes without
verifying; run verify to check digests and the signature.`,
		Usage: "attest inspect <bundle> [flags]",
		Examples: []cli.Example{
			{
				Description: "Human-readable summary",
				Command:     "attest inspect audit.bundle",
			},
			{
				Description: "Machine-readable summary",
				Command:     "attest inspect audit.bundle --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("inspect", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one bundle argument")
			}
			return runInspect(args[0], &params)
		},
	}
}

func runInspect(bundlePath string, params *inspectParams) error {
	sealed, err := readBundleFile(bundlePath)
	if err != nil {
		return err
	}
	doc, err := sealed.Document()
	if err != nil {
		return err
	}

	summary := doc.Coverage.Summary()
	turns := 0
	for _, t := range doc.Transcripts {
		turns += len(t.Turns)
	}

	result := inspectResult{
		PackageID:     doc.PackageID,
		SchemaVersion: doc.SchemaVersion,
		GeneratedAt:   doc.GeneratedAt,
		SealedAt:      sealed.SealedAt,
		KeyID:         sealed.Signature.KeyID,

		Agent:        doc.Subject.Agent,
		AgentVersion: doc.Subject.Version,
		Model:        doc.Subject.ModelIdentity(),
		Environment:  doc.Subject.Environment,

		Overall:         string(doc.Coverage.Overall),
		Requirements:    summary.Requirements,
		CoveredPassed:   summary.CoveredPassed,
		CoveredFailed:   summary.CoveredFailed,
		Uncovered:       summary.Uncovered,
		CriticalFailing: summary.CriticalFailing,

		Components:         len(doc.Inventory),
		Deviations:         len(doc.Deviations.Events),
		DeviationThreshold: string(doc.Deviations.Threshold),
		Interventions:      doc.Deviations.InterventionCount,
		Sessions:           len(doc.Transcripts),
		Turns:              turns,

		Warnings: doc.Warnings,
	}

	if done, err := params.EmitJSON(result); done {
		return err
	}

	fmt.Printf("Package:    %s\n", result.PackageID)
	fmt.Printf("Generated:  %s (sealed %s)\n", result.GeneratedAt, result.SealedAt)
	fmt.Printf("Signed by:  %s (%s)\n", result.KeyID, sealed.Signature.Scheme)

	subject := result.Agent
	if result.AgentVersion != "" {
		subject += " v" + result.AgentVersion
	}
	if result.Environment != "" {
		subject += " (" + result.Environment + ")"
	}
	fmt.Printf("Subject:    %s\n", subject)
	fmt.Printf("Model:      %s\n", result.Model)

	fmt.Printf("Overall:    %s\n", result.Overall)
	fmt.Printf("Coverage:   %d requirements (%d passed, %d failed, %d uncovered)\n",
		result.Requirements, result.CoveredPassed, result.CoveredFailed, result.Uncovered)
	if result.CriticalFailing > 0 {
		fmt.Printf("Critical:   %d critical requirement(s) not covered and passing\n", result.CriticalFailing)
	}
	fmt.Printf("Inventory:  %d components\n", result.Components)
	fmt.Printf("Deviations: %d at %s and above (%d observed, %d interventions)\n",
		result.Deviations, result.DeviationThreshold, doc.Deviations.TotalObserved, result.Interventions)
	fmt.Printf("Sessions:   %d transcripts, %d turns\n", result.Sessions, result.Turns)
	if len(result.Warnings) > 0 {
		fmt.Printf("Warnings:   %d\n", len(result.Warnings))
		for _, warning := range result.Warnings {
			fmt.Printf("  - %s\n", warning)
		}
	}
	return nil
}
