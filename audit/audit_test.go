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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/reviewetl/core"
)

func TestWriteCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")
	rows := []core.Record{
		{"table": "buyer", "rows": 3, "null_values": int64(0), "duplicates": int64(1)},
		{"table": "review", "rows": 4, "null_values": int64(2), "duplicates": int64(0)},
	}

	path, err := WriteCSV(context.Background(), dir, "extract", "20250101_120000",
		[]string{"table", "rows", "null_values", "duplicates"}, rows)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "audit_extract_20250101_120000.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "table,rows,null_values,duplicates\nbuyer,3,0,1\nreview,4,2,0\n", string(data))
}

func TestWriteCSV_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	cols := []string{"table"}

	_, err := WriteCSV(context.Background(), dir, "load", "20250101_120000", cols, []core.Record{{"table": "a"}})
	require.NoError(t, err)

	_, err = WriteCSV(context.Background(), dir, "load", "20250101_120000", cols, []core.Record{{"table": "b"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrExist)

	data, err := os.ReadFile(filepath.Join(dir, "audit_load_20250101_120000.csv"))
	require.NoError(t, err)
	assert.Equal(t, "table\na\n", string(data))
}

func TestWriteCSV_UnknownColumnRemovesFile(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteCSV(context.Background(), dir, "extract", "20250101_120000",
		[]string{"table", "rows"}, []core.Record{{"table": "buyer", "row_count": 3}})
	require.Error(t, err)
	assert.Empty(t, path)
	assert.NoFileExists(t, filepath.Join(dir, "audit_extract_20250101_120000.csv"))
}

func TestWriteCSV_NoHeaderLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit_load_20250101_120000.csv")

	_, err := WriteCSV(context.Background(), dir, "load", "20250101_120000", nil, nil)
	require.Error(t, err)
	assert.NoFileExists(t, path)

	got, err := WriteCSV(context.Background(), dir, "load", "20250101_120000", []string{"table"}, nil)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}
