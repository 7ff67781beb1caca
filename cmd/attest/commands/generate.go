// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/attest/cmd/attest/cli"
	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/coverage"
	"github.com/bureau-foundation/attest/lib/deviation"
	"github.com/bureau-foundation/attest/lib/export"
	"github.com/bureau-foundation/attest/lib/intake"
	"github.com/bureau-foundation/attest/lib/pipeline"
	"github.com/bureau-foundation/attest/lib/secret"
	"github.com/bureau-foundation/attest/lib/vault"
)

type generateParams struct {
	Requirements string `flag:"requirements" desc:"JSONC requirements catalog (required)"`
	Subject      string `flag:"subject"      desc:"YAML subject descriptor (required)"`
	Results      string `flag:"results"      desc:"JSON test results file (required)"`
	Inventory    string `flag:"inventory"    desc:"JSON inventory components file"`
	Libraries    string `flag:"libraries"    desc:"plain-text dependency snapshot, one name==version per line"`
	Deviations   string `flag:"deviations"   desc:"JSON deviation events file"`
	Sessions     string `flag:"sessions"     desc:"JSON session events file"`
	Annotations  string `flag:"annotations"  desc:"JSON turn annotations file"`

	SigningKey string `flag:"signing-key" desc:"ed25519 signing seed file, raw 32 bytes or 64 hex chars ('-' for stdin) (required)"`
	KeyID      string `flag:"key-id"      desc:"key id recorded in the signature (derived from the public key if empty)"`

	VaultIdentity  string `flag:"vault-identity"   desc:"age identity file for opening protected session content"`
	VaultMasterKey string `flag:"vault-master-key" desc:"age-wrapped vault master key file"`

	RiskThreshold string `flag:"risk-threshold" desc:"minimum deviation risk level retained in the package" default:"high"`
	Strict        bool   `flag:"strict"         desc:"block release on any requirement that is not covered and passing"`

	Out         string `flag:"out,o"       desc:"bundle output path ('-' for stdout)" default:"audit.bundle"`
	Compression string `flag:"compression" desc:"bundle compression: none, lz4, or zstd" default:"zstd"`
}

func generateCommand() *cli.Command {
	var params generateParams

	return &cli.Command{
		Name:    "generate",
		Summary: "Generate a sealed audit package from input files",
		Description: `Run the full audit pipeline over local input files: validate the
submission, build and gate the coverage matrix, assemble the component
inventory, filter deviations, reconstruct session transcripts, then
seal and sign the package and write it as a bundle.

The requirements catalog is JSONC and carries both the requirements
and the links mapping test ids onto them. Subject is a YAML
descriptor. A dependency snapshot given with --libraries is plain
text, one name==version per line; everything else is a JSON array.

Protected session content requires both --vault-identity and
--vault-master-key; a submission carrying protected turns without
them is rejected.

Exit codes: 1 when the submission fails validation, 2 when the
release gate blocks, 3 on unexpected failure.`,
		Usage: "attest generate --requirements <file> --subject <file> --results <file> --signing-key <file> [flags]",
		Examples: []cli.Example{
			{
				Description: "Generate from the demo input set",
				Command:     "attest generate --requirements demo/requirements.jsonc --subject demo/subject.yaml --results demo/results.json --signing-key demo/signing.key --out audit.bundle",
			},
			{
				Description: "Include deviations and transcripts, blocking on every gap",
				Command:     "attest generate --requirements reqs.jsonc --subject subject.yaml --results results.json --deviations deviations.json --sessions sessions.json --signing-key signing.key --strict",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("generate", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return runGenerate(&params)
		},
	}
}

func runGenerate(params *generateParams) error {
	if params.Requirements == "" {
		return fmt.Errorf("--requirements is required")
	}
	if params.Subject == "" {
		return fmt.Errorf("--subject is required")
	}
	if params.Results == "" {
		return fmt.Errorf("--results is required")
	}
	if params.SigningKey == "" {
		return fmt.Errorf("--signing-key is required")
	}
	if (params.VaultIdentity == "") != (params.VaultMasterKey == "") {
		return fmt.Errorf("--vault-identity and --vault-master-key must be given together")
	}

	threshold, err := deviation.ParseRiskLevel(params.RiskThreshold)
	if err != nil {
		return err
	}
	tag, err := export.ParseCompressionTag(params.Compression)
	if err != nil {
		return err
	}

	submission, err := loadSubmission(params)
	if err != nil {
		return err
	}

	seed, err := secret.ReadFromPath(params.SigningKey)
	if err != nil {
		return fmt.Errorf("reading signing key: %w", err)
	}
	signer, err := audit.NewLocalSigner(seed, params.KeyID)
	seed.Close()
	if err != nil {
		return err
	}

	logger := cli.NewCommandLogger().With("command", "generate")

	options := pipeline.Options{
		Threshold: threshold,
		Strict:    params.Strict,
		Sealer:    audit.NewSealer(audit.SealerConfig{Signer: signer, Logger: logger}),
		Logger:    logger,
	}
	if params.VaultIdentity != "" {
		decryptor, err := vault.LoadFromFiles(params.VaultMasterKey, params.VaultIdentity)
		if err != nil {
			return err
		}
		defer decryptor.Close()
		options.Decryptor = decryptor
	}

	sealed, err := pipeline.Run(context.Background(), submission, options)
	if err != nil {
		return reportGenerateFailure(err)
	}

	if err := writeBundleFile(params.Out, sealed, tag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return &cli.ExitError{Code: exitUnexpected}
	}

	printGenerateSummary(sealed, params.Out)
	return nil
}

// loadSubmission reads every input file into a submission. The
// catalog carries requirements and links; the optional sections are
// loaded only when a path was given.
func loadSubmission(params *generateParams) (*intake.Submission, error) {
	catalog, err := intake.ReadRequirementsDoc(params.Requirements)
	if err != nil {
		return nil, err
	}
	subject, err := intake.ReadSubject(params.Subject)
	if err != nil {
		return nil, err
	}
	results, err := intake.ReadTestResults(params.Results)
	if err != nil {
		return nil, err
	}

	submission := &intake.Submission{
		Subject:      subject,
		Requirements: catalog.Requirements,
		TestResults:  results,
		Links:        catalog.Links,
	}

	if params.Inventory != "" {
		if submission.Inventory, err = intake.ReadInventory(params.Inventory); err != nil {
			return nil, err
		}
	}
	if params.Libraries != "" {
		libraries, err := intake.ReadLibrarySnapshot(params.Libraries)
		if err != nil {
			return nil, err
		}
		// Appended after the JSON inventory so explicitly declared
		// components win deduplication over snapshot lines.
		submission.Inventory = append(submission.Inventory, libraries...)
	}
	if params.Deviations != "" {
		if submission.Deviations, err = intake.ReadDeviations(params.Deviations); err != nil {
			return nil, err
		}
	}
	if params.Sessions != "" {
		if submission.SessionEvents, err = intake.ReadSessionEvents(params.Sessions); err != nil {
			return nil, err
		}
	}
	if params.Annotations != "" {
		if submission.Annotations, err = intake.ReadAnnotations(params.Annotations); err != nil {
			return nil, err
		}
	}
	return submission, nil
}

// reportGenerateFailure prints the pipeline failure and maps it to the
// exit code contract: validation problems exit 1, a blocked release
// gate exits 2, anything else exits 3.
func reportGenerateFailure(err error) error {
	var invalid *intake.ValidationError
	if errors.As(err, &invalid) {
		fmt.Fprintln(os.Stderr, "submission is invalid:")
		for _, problem := range invalid.Problems {
			fmt.Fprintf(os.Stderr, "  - %s\n", problem)
		}
		return &cli.ExitError{Code: exitValidation}
	}

	var violation *coverage.ComplianceViolation
	if errors.As(err, &violation) {
		fmt.Fprintf(os.Stderr, "release gate blocked: %d requirement(s) not covered and passing:\n",
			len(violation.FailingRequirementIDs))
		for _, id := range violation.FailingRequirementIDs {
			fmt.Fprintf(os.Stderr, "  - %s\n", id)
		}
		return &cli.ExitError{Code: exitViolation}
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return &cli.ExitError{Code: exitUnexpected}
}

// writeBundleFile writes the sealed envelope as a bundle to path, or
// to stdout when path is "-".
func writeBundleFile(path string, sealed *audit.Sealed, tag export.CompressionTag) error {
	if path == "-" {
		return export.WriteBundle(os.Stdout, sealed, tag)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating bundle file: %w", err)
	}
	if err := export.WriteBundle(file, sealed, tag); err != nil {
		file.Close()
		return fmt.Errorf("writing bundle %s: %w", path, err)
	}
	return file.Close()
}

// printGenerateSummary reports the sealed package on stderr, keeping
// stdout clean for `--out -`.
func printGenerateSummary(sealed *audit.Sealed, out string) {
	fmt.Fprintf(os.Stderr, "Sealed audit package %s\n", sealed.PackageID)

	doc, err := sealed.Document()
	if err == nil {
		summary := doc.Coverage.Summary()
		fmt.Fprintf(os.Stderr, "  Overall: %s\n", doc.Coverage.Overall)
		fmt.Fprintf(os.Stderr, "  Coverage: %d requirements (%d passed, %d failed, %d uncovered)\n",
			summary.Requirements, summary.CoveredPassed, summary.CoveredFailed, summary.Uncovered)
		fmt.Fprintf(os.Stderr, "  Inventory: %d components\n", len(doc.Inventory))
		fmt.Fprintf(os.Stderr, "  Deviations: %d retained at %s and above (%d observed)\n",
			len(doc.Deviations.Events), doc.Deviations.Threshold, doc.Deviations.TotalObserved)
		fmt.Fprintf(os.Stderr, "  Sessions: %d transcripts\n", len(doc.Transcripts))
		for _, warning := range doc.Warnings {
			fmt.Fprintf(os.Stderr, "  Warning: %s\n", warning)
		}
	}

	if out == "-" {
		fmt.Fprintf(os.Stderr, "  Bundle: written to stdout\n")
	} else {
		fmt.Fprintf(os.Stderr, "  Bundle: %s\n", out)
	}
}
