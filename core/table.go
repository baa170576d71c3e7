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

package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// RawTable is a named, row-oriented table fetched from a source store.
// It is immutable once handed to the transform engine.
type RawTable struct {
	Name    string
	columns []string
	rows    []Record
}

// NewRawTable creates an empty table. Columns may be nil, in which case they
// are taken from the first record written.
func NewRawTable(name string, columns []string) *RawTable {
	return &RawTable{Name: name, columns: append([]string(nil), columns...)}
}

// NewRawTableFromRecords builds a table from in-memory rows.
func NewRawTableFromRecords(name string, columns []string, rows []Record) *RawTable {
	t := NewRawTable(name, columns)
	for _, r := range rows {
		t.append(r)
	}
	return t
}

// Write implements DataSink, so a table can terminate a streaming pipeline.
func (t *RawTable) Write(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.append(record)
	return nil
}

// Flush implements DataSink.
func (t *RawTable) Flush() error { return nil }

// Close implements DataSink.
func (t *RawTable) Close() error { return nil }

func (t *RawTable) append(record Record) {
	if len(t.columns) == 0 {
		for k := range record {
			t.columns = append(t.columns, k)
		}
		sort.Strings(t.columns)
	}
	t.rows = append(t.rows, record.Clone())
}

// Columns returns the column names.
func (t *RawTable) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Records returns the rows.
func (t *RawTable) Records() []Record {
	return t.rows
}

// Len returns the number of rows.
func (t *RawTable) Len() int {
	return len(t.rows)
}

// HasColumn reports whether the table declares the column.
func (t *RawTable) HasColumn(name string) bool {
	for _, c := range t.columns {
		if c == name {
			return true
		}
	}
	return false
}

// NullCount returns the total number of null cells across all columns.
func (t *RawTable) NullCount() int64 {
	var n int64
	for _, row := range t.rows {
		for _, c := range t.columns {
			if v, ok := row[c]; !ok || v == nil {
				n++
			}
		}
	}
	return n
}

// DuplicateCount returns the number of rows that repeat an earlier row on
// every column.
func (t *RawTable) DuplicateCount() int64 {
	seen := make(map[string]struct{}, len(t.rows))
	var n int64
	for _, row := range t.rows {
		key := t.rowKey(row)
		if _, dup := seen[key]; dup {
			n++
			continue
		}
		seen[key] = struct{}{}
	}
	return n
}

func (t *RawTable) rowKey(row Record) string {
	parts := make([]string, len(t.columns))
	for i, c := range t.columns {
		parts[i] = fmt.Sprintf("%T:%v", row[c], row[c])
	}
	return strings.Join(parts, "\x1f")
}
