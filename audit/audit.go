//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

package audit

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aaronlmathis/reviewetl/core"
	"github.com/aaronlmathis/reviewetl/writers"
)

// Package audit writes the per-stage audit files. Each run writes one file
// per stage and never rewrites it.

// FileName returns audit_<stage>_<runID>.csv.
func FileName(stage string, runID core.RunID) string {
	return fmt.Sprintf("audit_%s_%s.csv", stage, runID)
}

// WriteCSV writes rows under a header of columns to dir/FileName(stage,
// runID), creating dir as needed. An existing file is an error.
func WriteCSV(ctx context.Context, dir, stage string, runID core.RunID, columns []string, rows []core.Record) (string, error) {
	path := filepath.Join(dir, FileName(stage, runID))
	table := core.NewRawTableFromRecords(stage, columns, rows)
	if err := writers.WriteDatasetCSV(ctx, path, table); err != nil {
		return "", fmt.Errorf("write audit file: %w", err)
	}
	return path, nil
}
