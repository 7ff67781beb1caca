// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/inventory"
)

// CycloneDXRenderer renders the component inventory as a CycloneDX 1.5
// JSON BOM. The audited agent is the metadata component; inventory
// entries become BOM components with their kinds mapped onto CycloneDX
// component types. Attest-specific facts that have no CycloneDX field
// ride along as "attest:" properties.
type CycloneDXRenderer struct{}

// NewCycloneDXRenderer returns the cyclonedx-json renderer.
func NewCycloneDXRenderer() *CycloneDXRenderer { return &CycloneDXRenderer{} }

func (r *CycloneDXRenderer) Format() string { return "cyclonedx-json" }

func (r *CycloneDXRenderer) ContentType() string { return "application/vnd.cyclonedx+json" }

// CycloneDX 1.5 wire structures, limited to the fields this renderer
// emits.
type cycloneDXBOM struct {
	BOMFormat   string               `json:"bomFormat"`
	SpecVersion string               `json:"specVersion"`
	Version     int                  `json:"version"`
	Metadata    cycloneDXMetadata    `json:"metadata"`
	Components  []cycloneDXComponent `json:"components"`
}

type cycloneDXMetadata struct {
	Timestamp string             `json:"timestamp"`
	Component cycloneDXComponent `json:"component"`
}

type cycloneDXComponent struct {
	Type       string              `json:"type"`
	Name       string              `json:"name"`
	Version    string              `json:"version,omitempty"`
	Hashes     []cycloneDXHash     `json:"hashes,omitempty"`
	Properties []cycloneDXProperty `json:"properties,omitempty"`
}

type cycloneDXHash struct {
	Alg     string `json:"alg"`
	Content string `json:"content"`
}

type cycloneDXProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (r *CycloneDXRenderer) Render(ctx context.Context, sealed *audit.Sealed) ([]byte, error) {
	pkg, err := sealed.Document()
	if err != nil {
		return nil, err
	}

	subject := cycloneDXComponent{
		Type:    "application",
		Name:    pkg.Subject.Agent,
		Version: pkg.Subject.Version,
		// The document hash is BLAKE3-256 of the canonical bytes;
		// CycloneDX 1.5 carries BLAKE3 natively.
		Hashes: []cycloneDXHash{{Alg: "BLAKE3", Content: sealed.DocumentHash}},
		Properties: []cycloneDXProperty{
			{Name: "attest:package-id", Value: pkg.PackageID},
			{Name: "attest:overall-status", Value: string(pkg.Coverage.Overall)},
		},
	}
	if pkg.Subject.Environment != "" {
		subject.Properties = append(subject.Properties, cycloneDXProperty{
			Name: "attest:environment", Value: pkg.Subject.Environment,
		})
	}

	components := make([]cycloneDXComponent, 0, len(pkg.Inventory))
	for _, component := range pkg.Inventory {
		entry := cycloneDXComponent{
			Type:    componentType(component.Kind),
			Name:    component.Identifier,
			Version: component.Version,
			Properties: []cycloneDXProperty{
				{Name: "attest:kind", Value: string(component.Kind)},
			},
		}
		if component.Origin != "" {
			entry.Properties = append(entry.Properties, cycloneDXProperty{
				Name: "attest:origin", Value: component.Origin,
			})
		}
		if component.Digest != "" {
			if hash, ok := digestHash(component.Digest); ok {
				entry.Hashes = []cycloneDXHash{hash}
			} else {
				entry.Properties = append(entry.Properties, cycloneDXProperty{
					Name: "attest:digest", Value: component.Digest,
				})
			}
		}
		components = append(components, entry)
	}

	bom := cycloneDXBOM{
		BOMFormat:   "CycloneDX",
		SpecVersion: "1.5",
		Version:     1,
		Metadata: cycloneDXMetadata{
			Timestamp: pkg.GeneratedAt,
			Component: subject,
		},
		Components: components,
	}

	encoded, err := json.MarshalIndent(bom, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding CycloneDX BOM: %w", err)
	}
	return encoded, nil
}

// componentType maps an inventory kind onto the CycloneDX component
// type vocabulary. Datasets and configuration artifacts both land on
// "data"; the attest:kind property preserves the distinction.
func componentType(kind inventory.Kind) string {
	switch kind {
	case inventory.KindModel, inventory.KindAdapter:
		return "machine-learning-model"
	case inventory.KindDataset, inventory.KindConfig:
		return "data"
	case inventory.KindLibrary:
		return "library"
	default:
		return "data"
	}
}

// digestHash converts a declared component digest into a CycloneDX
// hash entry. Recognized forms are "sha256:<hex>", "blake3:<hex>", and
// a bare 64-character hex string (treated as SHA-256, the ecosystem
// default for published model digests). Anything else is not a valid
// CycloneDX hash and stays a property instead.
func digestHash(digest string) (cycloneDXHash, bool) {
	if content, ok := strings.CutPrefix(digest, "sha256:"); ok {
		return cycloneDXHash{Alg: "SHA-256", Content: content}, true
	}
	if content, ok := strings.CutPrefix(digest, "blake3:"); ok {
		return cycloneDXHash{Alg: "BLAKE3", Content: content}, true
	}
	if len(digest) == 64 && isHex(digest) {
		return cycloneDXHash{Alg: "SHA-256", Content: digest}, true
	}
	return cycloneDXHash{}, false
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
