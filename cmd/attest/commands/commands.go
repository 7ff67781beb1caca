// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete attest CLI command tree. The
// attest binary imports this package; keeping the tree out of main
// lets command tests execute the real dispatch path.
package commands

import (
	"fmt"

	"github.com/bureau-foundation/attest/cmd/attest/cli"
	"github.com/bureau-foundation/attest/lib/version"
)

// Exit codes for expected command outcomes. Usage errors (bad flags,
// missing arguments) surface as plain errors and exit 1 via main;
// unexpected failures after the command started doing real work exit 3
// so operators can tell them apart in scripts.
const (
	exitValidation = 1
	exitViolation  = 2
	exitUnexpected = 3
)

// Root builds and returns the complete attest CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "attest",
		Description: `Attest: compliance audit packages for AI agent deployments.

Generate sealed, independently verifiable audit packages from
requirement catalogs, test results, component inventories, deviation
logs, and session transcripts.`,
		Subcommands: []*cli.Command{
			generateCommand(),
			verifyCommand(),
			inspectCommand(),
			exportCommand(),
			keygenCommand(),
			vaultCommand(),
			seedCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("attest %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Seed a demo input set to experiment with",
				Command:     "attest seed --dir demo",
			},
			{
				Description: "Generate a sealed audit package from input files",
				Command:     "attest generate --requirements reqs.jsonc --subject subject.yaml --results results.json --signing-key signing.key --out audit.bundle",
			},
			{
				Description: "Verify a bundle against a verification key",
				Command:     "attest verify audit.bundle --public-key signing.key.pub",
			},
			{
				Description: "Summarize a bundle's contents",
				Command:     "attest inspect audit.bundle",
			},
			{
				Description: "Render the coverage matrix as CSV",
				Command:     "attest export audit.bundle --format csv --out coverage.csv",
			},
			{
				Description: "Generate a signing key pair",
				Command:     "attest keygen --out signing.key",
			},
		},
	}
}
