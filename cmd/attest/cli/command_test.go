// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "attest",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "verify",
				Run: func(args []string) error {
					called = "verify"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"verify"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "verify" {
		t.Errorf("dispatched to %q, want %q", called, "verify")
	}
}

func TestCommand_Execute_PassesPositionalArgs(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "attest",
		Subcommands: []*Command{
			{
				Name: "export",
				Run: func(args []string) error {
					called = "export"
					receivedArgs = args
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"export", "audit.bundle"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "export" {
		t.Errorf("dispatched to %q, want %q", called, "export")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "audit.bundle" {
		t.Errorf("args = %v, want [audit.bundle]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var format string
	var target string

	command := &Command{
		Name: "export",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			flagSet.StringVar(&format, "format", "csv", "export format")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--format", "html", "audit.bundle"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if format != "html" {
		t.Errorf("format = %q, want %q", format, "html")
	}
	if target != "audit.bundle" {
		t.Errorf("target = %q, want %q", target, "audit.bundle")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "generate",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("generate", pflag.ContinueOnError)
			flagSet.Bool("strict", false, "strict gate mode")
			flagSet.String("signing-key", "", "signing key file")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--stirct"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --strict") {
		t.Errorf("error = %q, want suggestion for '--strict'", errStr)
	}
	// Suggestion should be on the same line as the error, not buried.
	if !strings.Contains(errStr, "stirct") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	// Should include a pointer to --help.
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "generate",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("generate", pflag.ContinueOnError)
			flagSet.Bool("strict", false, "strict gate mode")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "attest",
		Subcommands: []*Command{
			{Name: "generate"},
			{Name: "verify"},
			{Name: "version"},
		},
	}

	err := root.Execute([]string{"verfy"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"verify\"") {
		t.Errorf("error = %q, want suggestion for 'verify'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "attest",
		Subcommands: []*Command{
			{Name: "generate"},
			{Name: "verify"},
		},
	}

	err := root.Execute([]string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "attest",
				Summary: "Audit package tooling",
				Subcommands: []*Command{
					{Name: "generate", Summary: "Generate an audit package"},
				},
			}

			err := root.Execute([]string{helpArg})
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "attest",
		Subcommands: []*Command{
			{Name: "generate", Summary: "Generate an audit package"},
		},
	}

	err := root.Execute([]string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "attest",
		Description: "Compliance audit packages for agent deployments.",
		Subcommands: []*Command{
			{Name: "generate", Summary: "Generate a sealed audit package"},
			{Name: "verify", Summary: "Verify a bundle's digests and signature"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Generate from local input files",
				Command:     "attest generate --subject subject.yaml --requirements reqs.jsonc",
			},
			{
				Description: "Verify a downloaded bundle",
				Command:     "attest verify --public-key signing.pub audit.bundle",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	// Verify structural elements are present.
	for _, want := range []string{
		"Compliance audit packages for agent deployments.",
		"Usage:",
		"attest <command> [flags]",
		"Commands:",
		"generate",
		"Generate a sealed audit package",
		"verify",
		"Verify a bundle's digests and signature",
		"Examples:",
		"attest generate --subject subject.yaml",
		"attest verify --public-key signing.pub",
		"Run 'attest <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "export",
		Summary: "Render a bundle to an export format",
		Usage:   "attest export <bundle> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			flagSet.String("format", "csv", "export format")
			flagSet.String("out", "", "output file (stdout when empty)")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"attest export <bundle> [flags]",
		"Flags:",
		"format",
		"out",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "attest"}
	vault := &Command{Name: "vault", parent: root}
	keygen := &Command{Name: "keygen", parent: vault}

	if got := root.fullName(); got != "attest" {
		t.Errorf("root.fullName() = %q, want %q", got, "attest")
	}
	if got := vault.fullName(); got != "attest vault" {
		t.Errorf("vault.fullName() = %q, want %q", got, "attest vault")
	}
	if got := keygen.fullName(); got != "attest vault keygen" {
		t.Errorf("keygen.fullName() = %q, want %q", got, "attest vault keygen")
	}
}
