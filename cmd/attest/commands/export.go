// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/attest/cmd/attest/cli"
	"github.com/bureau-foundation/attest/lib/export"
)

type exportParams struct {
	Format string `flag:"format,f" desc:"export format: csv, cyclonedx-json, html, or bundle" default:"csv"`
	Out    string `flag:"out,o"    desc:"output path ('-' for stdout)" default:"-"`
}

func exportCommand() *cli.Command {
	var params exportParams

	return &cli.Command{
		Name:    "export",
		Summary: "Render a bundle into an export format",
		Description: `Render a sealed bundle into one of the built-in export formats: the
coverage matrix as CSV, the component inventory as a CycloneDX BOM,
a self-contained HTML report, or the archival bundle itself
(recompressed with zstd).

Rendering reads the sealed envelope without altering it; the bundle
verifies identically before and after any number of exports.`,
		Usage: "attest export <bundle> [flags]",
		Examples: []cli.Example{
			{
				Description: "Coverage matrix CSV to stdout",
				Command:     "attest export audit.bundle --format csv",
			},
			{
				Description: "HTML report for reviewers",
				Command:     "attest export audit.bundle --format html --out report.html",
			},
			{
				Description: "CycloneDX component BOM",
				Command:     "attest export audit.bundle --format cyclonedx-json --out bom.json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("export", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one bundle argument")
			}
			return runExport(args[0], &params)
		},
	}
}

func runExport(bundlePath string, params *exportParams) error {
	registry := export.NewBuiltinRegistry()
	renderer, ok := registry.Lookup(params.Format)
	if !ok {
		return fmt.Errorf("unknown format %q (available: %s)",
			params.Format, strings.Join(registry.Formats(), ", "))
	}

	sealed, err := readBundleFile(bundlePath)
	if err != nil {
		return err
	}

	rendered, err := renderer.Render(context.Background(), sealed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: rendering %s: %v\n", params.Format, err)
		return &cli.ExitError{Code: exitUnexpected}
	}

	if params.Out == "-" {
		if _, err := os.Stdout.Write(rendered); err != nil {
			return fmt.Errorf("writing to stdout: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(params.Out, rendered, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", params.Out, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s export to %s (%d bytes)\n", params.Format, params.Out, len(rendered))
	return nil
}
