// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/attest/cmd/attest/cli"
	"github.com/bureau-foundation/attest/lib/vault"
)

func vaultCommand() *cli.Command {
	return &cli.Command{
		Name:    "vault",
		Summary: "Manage key material for protected session content",
		Description: `Manage the vault key material that protects sensitive session
transcript content. A deployment holds one age identity; the 32-byte
master key is generated once, age-encrypted to the identity (and
optionally to operator escrow keys), and distributed only in that
wrapped form. Per-session encryption keys are derived from the
master key, never stored.`,
		Subcommands: []*cli.Command{
			vaultKeygenCommand(),
			vaultWrapKeyCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Create an identity, then a master key wrapped to it",
				Command:     "attest vault keygen --out vault.identity | xargs -I{} attest vault wrap-key --recipient {} --out vault.key",
			},
		},
	}
}

type vaultKeygenParams struct {
	Out   string `flag:"out,o"  desc:"identity output path" default:"vault.identity"`
	Force bool   `flag:"force"  desc:"overwrite an existing identity file"`
}

func vaultKeygenCommand() *cli.Command {
	var params vaultKeygenParams

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an age identity for a vault deployment",
		Description: `Generate an age x25519 identity. The private key is written with
mode 0600; the matching recipient (public key) is printed to stdout
for use with wrap-key --recipient.`,
		Usage: "attest vault keygen [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("keygen", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return runVaultKeygen(&params)
		},
	}
}

func runVaultKeygen(params *vaultKeygenParams) error {
	if !params.Force {
		if _, err := os.Stat(params.Out); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", params.Out)
		}
	}

	identity, err := vault.GenerateIdentity()
	if err != nil {
		return err
	}
	defer identity.Close()

	if err := os.WriteFile(params.Out, []byte(identity.PrivateKey.String()+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing vault identity: %w", err)
	}

	fmt.Println(identity.PublicKey)
	fmt.Fprintf(os.Stderr, "Wrote vault identity to %s (mode 0600)\n", params.Out)
	return nil
}

type vaultWrapKeyParams struct {
	Recipients []string `flag:"recipient,r" desc:"age recipient public key (repeatable) (required)"`
	Out        string   `flag:"out,o"       desc:"wrapped master key output path" default:"vault.key"`
	Force      bool     `flag:"force"       desc:"overwrite an existing key file"`
}

func vaultWrapKeyCommand() *cli.Command {
	var params vaultWrapKeyParams

	return &cli.Command{
		Name:    "wrap-key",
		Summary: "Generate a master key wrapped for one or more recipients",
		Description: `Generate a fresh 32-byte vault master key and write it
age-encrypted to the given recipients. The plaintext key exists only
in guarded memory during this command; the file holds base64 age
ciphertext that generate unwraps with --vault-identity.

Wrapping to an extra operator escrow recipient keeps the key
recoverable if the deployment identity is lost.`,
		Usage: "attest vault wrap-key --recipient <age1...> [flags]",
		Examples: []cli.Example{
			{
				Description: "Wrap to the deployment identity and an escrow key",
				Command:     "attest vault wrap-key --recipient age1deploy... --recipient age1escrow... --out vault.key",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("wrap-key", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return runVaultWrapKey(&params)
		},
	}
}

func runVaultWrapKey(params *vaultWrapKeyParams) error {
	if len(params.Recipients) == 0 {
		return fmt.Errorf("--recipient is required")
	}
	if !params.Force {
		if _, err := os.Stat(params.Out); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", params.Out)
		}
	}

	masterKey, err := vault.GenerateMasterKey()
	if err != nil {
		return err
	}
	defer masterKey.Close()

	wrapped, err := vault.WrapMasterKey(masterKey, params.Recipients)
	if err != nil {
		return err
	}

	if err := os.WriteFile(params.Out, []byte(wrapped+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing wrapped master key: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Wrote master key wrapped for %d recipient(s) to %s\n",
		len(params.Recipients), params.Out)
	return nil
}
