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

package extract

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aaronlmathis/reviewetl/core"
)

type memTable struct {
	columns []string
	rows    []core.Record
	pos     int
	failAt  int // -1 never
}

func (m *memTable) Read(ctx context.Context) (core.Record, error) {
	if m.pos == m.failAt {
		return nil, errors.New("connection reset by peer")
	}
	if m.pos >= len(m.rows) {
		return nil, io.EOF
	}
	r := m.rows[m.pos]
	m.pos++
	return r, nil
}

func (m *memTable) Close() error      { return nil }
func (m *memTable) Columns() []string { return m.columns }

type fakeSource struct {
	pingErr error
	tables  map[string]*memTable
}

func (f *fakeSource) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeSource) OpenTable(ctx context.Context, table string) (core.DataSource, error) {
	t, ok := f.tables[table]
	if !ok {
		return nil, errors.New(`relation "` + table + `" does not exist`)
	}
	return t, nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{tables: map[string]*memTable{
		"buyer": {columns: []string{"buyer_id"}, failAt: -1, rows: []core.Record{
			{"buyer_id": "A"}, {"buyer_id": "A"}, {"buyer_id": nil},
		}},
		"review": {columns: []string{"review_id", "r_desc"}, failAt: -1, rows: []core.Record{
			{"review_id": int64(1), "r_desc": "Good"},
		}},
		"orders":        {columns: []string{"buyer_id"}, failAt: 1, rows: []core.Record{{"buyer_id": "A"}, {"buyer_id": "B"}}},
		"review_images": {columns: []string{"review_id"}, failAt: -1},
	}}
}

func TestExtractor_PartialSuccess(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	dir := t.TempDir()

	e := NewExtractor(newFakeSource(),
		WithTables("buyer", "review", "orders", "review_images", "product"),
		WithAuditDir(dir),
		WithExtractLogger(zap.New(obs)),
	)
	res, err := e.Extract(context.Background(), "20250101_120000")
	require.NoError(t, err)

	assert.Len(t, res.Tables, 3)
	assert.Contains(t, res.Skipped, "orders")
	assert.Contains(t, res.Skipped, "product")
	assert.Equal(t, 2, logs.FilterMessage("table skipped").Len())

	empty := res.Tables["review_images"]
	require.NotNil(t, empty)
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, []string{"review_id"}, empty.Columns())

	require.Len(t, res.Audit, 3)
	assert.Equal(t, TableAudit{Table: "buyer", Rows: 3, NullValues: 1, Duplicates: 1}, res.Audit[0])

	assert.Equal(t, filepath.Join(dir, "audit_extract_20250101_120000.csv"), res.AuditPath)
	data, err := os.ReadFile(res.AuditPath)
	require.NoError(t, err)
	assert.Equal(t, "table,rows,null_values,duplicates\nbuyer,3,1,1\nreview,1,0,0\nreview_images,0,0,0\n", string(data))
}

func TestExtractor_Unreachable(t *testing.T) {
	src := newFakeSource()
	src.pingErr = errors.New("dial tcp: connection refused")

	_, err := NewExtractor(src, WithExtractLogger(zap.NewNop())).Extract(context.Background(), "20250101_120000")
	require.Error(t, err)
	assert.Equal(t, core.KindConnectivity, core.KindOf(err))
}

func TestExtractor_NothingExtractedWritesNoAudit(t *testing.T) {
	dir := t.TempDir()
	e := NewExtractor(newFakeSource(), WithTables("product"), WithAuditDir(dir), WithExtractLogger(zap.NewNop()))

	res, err := e.Extract(context.Background(), "20250101_120000")
	require.NoError(t, err)
	assert.Empty(t, res.Tables)
	assert.Empty(t, res.AuditPath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnwrapData(t *testing.T) {
	rec, err := UnwrapData(core.Record{"_id": "x", "data": map[string]interface{}{"review_id": int64(1)}})
	require.NoError(t, err)
	assert.Equal(t, core.Record{"review_id": int64(1)}, rec)

	_, err = UnwrapData(core.Record{"_id": "x"})
	assert.Error(t, err)
}
