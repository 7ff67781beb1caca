// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/coverage"
)

// csvColumns is the coverage matrix column layout. Summary rows are
// padded to the same width so the file stays rectangular for
// spreadsheet imports.
var csvColumns = []string{"Requirement ID", "Title", "Critical", "Status", "Linked Tests", "Failing Tests"}

// CSVRenderer renders the coverage matrix as CSV: one row per
// requirement followed by summary rows with the overall gate result.
type CSVRenderer struct{}

// NewCSVRenderer returns the csv renderer.
func NewCSVRenderer() *CSVRenderer { return &CSVRenderer{} }

func (r *CSVRenderer) Format() string { return "csv" }

func (r *CSVRenderer) ContentType() string { return "text/csv" }

func (r *CSVRenderer) Render(ctx context.Context, sealed *audit.Sealed) ([]byte, error) {
	pkg, err := sealed.Document()
	if err != nil {
		return nil, err
	}
	matrix := pkg.Coverage

	var buffer bytes.Buffer
	writer := csv.NewWriter(&buffer)
	if err := writer.Write(csvColumns); err != nil {
		return nil, fmt.Errorf("writing coverage CSV header: %w", err)
	}

	passed, failed, uncovered := 0, 0, 0
	for _, entry := range matrix.Entries {
		switch entry.Status {
		case coverage.StatusCoveredPassed:
			passed++
		case coverage.StatusCoveredFailed:
			failed++
		case coverage.StatusUncovered:
			uncovered++
		}

		row := []string{
			entry.RequirementID,
			entry.Title,
			strconv.FormatBool(entry.Critical),
			string(entry.Status),
			strings.Join(entry.TestIDs, "; "),
			strings.Join(entry.FailingTestIDs, "; "),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("writing coverage CSV row %s: %w", entry.RequirementID, err)
		}
	}

	summary := [][]string{
		padRow(),
		padRow("Overall Status", string(matrix.Overall)),
		padRow("Requirements", strconv.Itoa(len(matrix.Entries))),
		padRow("Covered Passed", strconv.Itoa(passed)),
		padRow("Covered Failed", strconv.Itoa(failed)),
		padRow("Uncovered", strconv.Itoa(uncovered)),
		padRow("Generated At", pkg.GeneratedAt),
		padRow("Package ID", pkg.PackageID),
	}
	for _, row := range summary {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("writing coverage CSV summary: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flushing coverage CSV: %w", err)
	}
	return buffer.Bytes(), nil
}

// padRow widens a summary row to the matrix column count.
func padRow(columns ...string) []string {
	row := make([]string, len(csvColumns))
	copy(row, columns)
	return row
}
