// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package inventory assembles the deduplicated, deterministically
// ordered component inventory of an audited agent: its base model,
// adapters, training datasets, software libraries, and configuration
// artifacts. The ordering is required for hash stability downstream,
// not for display.
package inventory

import (
	"slices"
	"strings"
)

// Kind classifies an inventory component.
type Kind string

const (
	// KindModel is the base model the agent runs on.
	KindModel Kind = "model"

	// KindAdapter is a fine-tune or LoRA adapter applied to the model.
	KindAdapter Kind = "adapter"

	// KindDataset is a training or evaluation dataset lineage entry.
	KindDataset Kind = "dataset"

	// KindLibrary is a software dependency of the runtime.
	KindLibrary Kind = "library"

	// KindConfig is a configuration artifact (system prompt, policy
	// file) that shaped the agent's behavior.
	KindConfig Kind = "config"
)

// IsKnown reports whether k is one of the defined Kind values.
func (k Kind) IsKnown() bool {
	switch k {
	case KindModel, KindAdapter, KindDataset, KindLibrary, KindConfig:
		return true
	}
	return false
}

// Component is a single inventory item. Components are value types;
// identity for deduplication is the (kind, identifier) pair.
type Component struct {
	Kind       Kind   `json:"kind"`
	Identifier string `json:"identifier"`

	// Version is the component's declared version, or "unknown" when
	// the submission carried no version separator.
	Version string `json:"version,omitempty"`

	// Digest is the content hash of the component, when one was
	// declared (model weights SHA, adapter SHA).
	Digest string `json:"digest,omitempty"`

	// Origin notes where the component entry came from (submission
	// seed, subject descriptor, lineage record). Informational only;
	// it does not participate in deduplication.
	Origin string `json:"origin,omitempty"`
}

// Assemble merges component groups into one inventory: duplicates by
// (kind, identifier) are dropped keeping the first occurrence, and the
// result is sorted ascending by (kind, identifier). Pure function of
// its inputs.
func Assemble(groups ...[]Component) []Component {
	type key struct {
		kind       Kind
		identifier string
	}
	seen := make(map[key]bool)
	var assembled []Component

	for _, group := range groups {
		for _, component := range group {
			k := key{component.Kind, component.Identifier}
			if seen[k] {
				continue
			}
			seen[k] = true
			assembled = append(assembled, component)
		}
	}

	slices.SortFunc(assembled, func(a, b Component) int {
		if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
			return c
		}
		return strings.Compare(a.Identifier, b.Identifier)
	})
	return assembled
}

// ParseLibrary converts a dependency snapshot line ("name==version")
// into a library component. The split is on the first "==" only; a
// line without the separator keeps the whole string as the identifier
// with version "unknown".
func ParseLibrary(line string) Component {
	name, version, found := strings.Cut(line, "==")
	if !found {
		return Component{Kind: KindLibrary, Identifier: line, Version: "unknown"}
	}
	return Component{Kind: KindLibrary, Identifier: name, Version: version}
}
