// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bureau-foundation/attest/lib/audit"
)

// markdownInstance is initialized once and reused. The converter
// configuration never changes and goldmark is safe to share; each
// Convert call creates its own parse state.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownInstance
}

const htmlShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 60rem; padding: 0 1rem; color: #1a1a1a; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #d0d0d0; padding: 0.3rem 0.6rem; text-align: left; }
th { background: #f3f3f3; }
code { background: #f3f3f3; padding: 0.1rem 0.3rem; }
</style>
</head>
<body>
%s</body>
</html>
`

// HTMLRenderer renders a human-readable audit report. The report is
// built as Markdown section by section, then converted to HTML with
// GFM table support.
type HTMLRenderer struct{}

// NewHTMLRenderer returns the html renderer.
func NewHTMLRenderer() *HTMLRenderer { return &HTMLRenderer{} }

func (r *HTMLRenderer) Format() string { return "html" }

func (r *HTMLRenderer) ContentType() string { return "text/html; charset=utf-8" }

func (r *HTMLRenderer) Render(ctx context.Context, sealed *audit.Sealed) ([]byte, error) {
	pkg, err := sealed.Document()
	if err != nil {
		return nil, err
	}

	source := buildReportMarkdown(sealed, pkg)
	var body bytes.Buffer
	if err := getMarkdown().Convert([]byte(source), &body); err != nil {
		return nil, fmt.Errorf("rendering report markdown: %w", err)
	}

	title := html.EscapeString("Audit Package " + pkg.PackageID)
	return []byte(fmt.Sprintf(htmlShell, title, body.String())), nil
}

func buildReportMarkdown(sealed *audit.Sealed, pkg *audit.Package) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Audit Package %s\n\n", pkg.PackageID)
	fmt.Fprintf(&b, "Generated %s. Overall coverage status: **%s**.\n\n", pkg.GeneratedAt, pkg.Coverage.Overall)

	b.WriteString("## Subject\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	subjectRow(&b, "Agent", pkg.Subject.Agent)
	subjectRow(&b, "Version", pkg.Subject.Version)
	subjectRow(&b, "Model", pkg.Subject.Model)
	subjectRow(&b, "Model digest", pkg.Subject.ModelDigest)
	subjectRow(&b, "Adapter", pkg.Subject.Adapter)
	subjectRow(&b, "Adapter digest", pkg.Subject.AdapterDigest)
	subjectRow(&b, "Environment", pkg.Subject.Environment)
	b.WriteString("\n")

	b.WriteString("## Coverage\n\n")
	b.WriteString("| Requirement | Title | Critical | Status | Tests | Failing |\n|---|---|---|---|---|---|\n")
	for _, entry := range pkg.Coverage.Entries {
		fmt.Fprintf(&b, "| %s | %s | %t | %s | %s | %s |\n",
			escapeCell(entry.RequirementID),
			escapeCell(entry.Title),
			entry.Critical,
			entry.Status,
			escapeCell(strings.Join(entry.TestIDs, ", ")),
			escapeCell(strings.Join(entry.FailingTestIDs, ", ")),
		)
	}
	b.WriteString("\n")

	b.WriteString("## Inventory\n\n")
	if len(pkg.Inventory) == 0 {
		b.WriteString("No components were declared.\n\n")
	} else {
		b.WriteString("| Kind | Identifier | Version | Digest | Origin |\n|---|---|---|---|---|\n")
		for _, component := range pkg.Inventory {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				component.Kind,
				escapeCell(component.Identifier),
				escapeCell(component.Version),
				escapeCell(component.Digest),
				escapeCell(component.Origin),
			)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Deviations\n\n")
	fmt.Fprintf(&b, "%d of %d observed events met or exceeded the **%s** reporting threshold. Interventions: %d.\n\n",
		len(pkg.Deviations.Events),
		pkg.Deviations.TotalObserved,
		pkg.Deviations.Threshold,
		pkg.Deviations.InterventionCount,
	)
	if len(pkg.Deviations.Events) > 0 {
		b.WriteString("| ID | Kind | Risk | Occurred | Summary |\n|---|---|---|---|---|\n")
		for _, event := range pkg.Deviations.Events {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				escapeCell(event.ID),
				event.Kind,
				event.Risk,
				escapeCell(event.OccurredAt),
				escapeCell(event.Summary),
			)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Transcripts\n\n")
	if len(pkg.Transcripts) == 0 {
		b.WriteString("No session transcripts were included.\n\n")
	} else {
		b.WriteString("| Session | Turns | Annotations |\n|---|---|---|\n")
		for _, session := range pkg.Transcripts {
			annotations := 0
			for _, turn := range session.Turns {
				annotations += len(turn.Annotations)
			}
			fmt.Fprintf(&b, "| %s | %d | %d |\n", escapeCell(session.SessionID), len(session.Turns), annotations)
		}
		b.WriteString("\n")
	}

	if len(pkg.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, warning := range pkg.Warnings {
			fmt.Fprintf(&b, "- %s\n", escapeCell(warning))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Seal\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Document hash | `%s` |\n", sealed.DocumentHash)
	fmt.Fprintf(&b, "| Sections root | `%s` |\n", sealed.SectionsRoot)
	fmt.Fprintf(&b, "| Signature scheme | %s |\n", sealed.Signature.Scheme)
	fmt.Fprintf(&b, "| Key ID | %s |\n", escapeCell(sealed.Signature.KeyID))
	fmt.Fprintf(&b, "| Sealed at | %s |\n", sealed.SealedAt)

	return b.String()
}

func subjectRow(b *strings.Builder, field, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "| %s | %s |\n", field, escapeCell(value))
}

// escapeCell keeps free-form text from breaking GFM table structure.
func escapeCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}
