// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Attest is the operator CLI for compliance audit packages: generate
// a sealed package from local input files, verify and inspect bundles,
// render export formats, and manage signing and vault key material.
package main

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/attest/cmd/attest/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like generate and
		// verify) return an ExitError with the desired exit code. Don't
		// print a redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
