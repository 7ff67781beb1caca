// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package export renders sealed audit packages into downloadable
// formats.
//
// Renderers consume the sealed envelope read-only: rendering never
// alters the canonical bytes, so a verifier accepts the package before
// and after any number of exports. The built-in renderers cover the
// coverage matrix as CSV, the component inventory as a CycloneDX BOM,
// a human-readable HTML report, and the archival bundle format.
// Additional renderers (a PDF generator, say) register alongside them.
package export

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bureau-foundation/attest/lib/audit"
)

// Renderer produces one export format from a sealed package.
type Renderer interface {
	// Format is the identifier used in download URLs and CLI flags
	// ("csv", "cyclonedx-json", "html", "bundle").
	Format() string

	// ContentType is the MIME type of the rendered bytes.
	ContentType() string

	// Render produces the output. Implementations must treat the
	// sealed envelope as immutable.
	Render(ctx context.Context, sealed *audit.Sealed) ([]byte, error)
}

// Registry maps format identifiers to renderers. Safe for concurrent
// use.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{renderers: make(map[string]Renderer)}
}

// NewBuiltinRegistry returns a registry with the built-in renderers:
// csv, cyclonedx-json, html, and bundle (zstd).
func NewBuiltinRegistry() *Registry {
	registry := NewRegistry()
	for _, renderer := range []Renderer{
		NewCSVRenderer(),
		NewCycloneDXRenderer(),
		NewHTMLRenderer(),
		NewBundleRenderer(CompressionZstd),
	} {
		if err := registry.Register(renderer); err != nil {
			panic("export.NewBuiltinRegistry: " + err.Error())
		}
	}
	return registry
}

// Register adds a renderer. The format identifier must be non-empty
// and not already taken.
func (r *Registry) Register(renderer Renderer) error {
	format := renderer.Format()
	if format == "" {
		return fmt.Errorf("renderer has an empty format identifier")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.renderers[format]; exists {
		return fmt.Errorf("format %q is already registered", format)
	}
	r.renderers[format] = renderer
	return nil
}

// Lookup returns the renderer for a format.
func (r *Registry) Lookup(format string) (Renderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[format]
	return renderer, ok
}

// Formats returns the registered format identifiers, sorted. Used by
// the download handler to report what is available.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]string, 0, len(r.renderers))
	for format := range r.renderers {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}
