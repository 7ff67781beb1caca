// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/attest/cmd/attest/cli"
	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/secret"
)

type keygenParams struct {
	Out       string `flag:"out,o"      desc:"signing seed output path" default:"signing.key"`
	PublicOut string `flag:"public-out" desc:"verification key output path (default: <out>.pub)"`
	Force     bool   `flag:"force"      desc:"overwrite existing key files"`
}

func keygenCommand() *cli.Command {
	var params keygenParams

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an ed25519 signing key pair",
		Description: `Generate a fresh ed25519 signing seed and the matching verification
key. The seed file is written hex-encoded with mode 0600 and is what
generate's --signing-key consumes; the verification key feeds
verify's --public-key and is safe to distribute.`,
		Usage: "attest keygen [flags]",
		Examples: []cli.Example{
			{
				Description: "Generate signing.key and signing.key.pub",
				Command:     "attest keygen",
			},
			{
				Description: "Generate into a key directory",
				Command:     "attest keygen --out keys/release.key",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("keygen", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return runKeygen(&params)
		},
	}
}

func runKeygen(params *keygenParams) error {
	publicOut := params.PublicOut
	if publicOut == "" {
		publicOut = params.Out + ".pub"
	}
	if !params.Force {
		for _, path := range []string{params.Out, publicOut} {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return fmt.Errorf("generating signing seed: %w", err)
	}
	defer secret.Zero(seed)

	// Route the seed through the signer so the key id and public key
	// written here are exactly what generate will derive later.
	seedBuffer, err := secret.NewFromBytes(seed)
	if err != nil {
		return err
	}
	signer, err := audit.NewLocalSigner(seedBuffer, "")
	if err != nil {
		seedBuffer.Close()
		return err
	}
	public := signer.PublicKey()

	seedHex := []byte(hex.EncodeToString(seedBuffer.Bytes()) + "\n")
	seedBuffer.Close()
	defer secret.Zero(seedHex)

	if err := os.WriteFile(params.Out, seedHex, 0o600); err != nil {
		return fmt.Errorf("writing signing seed: %w", err)
	}
	if err := os.WriteFile(publicOut, []byte(hex.EncodeToString(public)+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing verification key: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Wrote signing seed to %s (mode 0600)\n", params.Out)
	fmt.Fprintf(os.Stderr, "Wrote verification key to %s\n", publicOut)
	fmt.Fprintf(os.Stderr, "Key ID: %s\n", signer.KeyID())
	return nil
}
