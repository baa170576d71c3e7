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

package writers

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/reviewetl/core"
	"github.com/aaronlmathis/reviewetl/readers"
)

func reviewSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "review_id", Type: arrow.BinaryTypes.String},
		{Name: "product_id", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "rating", Type: arrow.PrimitiveTypes.Int64},
		{Name: "has_image", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)
}

func readAll(t *testing.T, filename string) []core.Record {
	t.Helper()
	reader, err := readers.NewParquetReader(filename)
	require.NoError(t, err)
	defer reader.Close()

	var out []core.Record
	for {
		rec, err := reader.Read(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestParquetWriter_BasicFunctionality(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_basic.parquet")

	writer, err := NewParquetWriter(filename,
		WithBatchSize(2),
		WithCompression(compress.Codecs.Snappy),
	)
	require.NoError(t, err)

	records := []core.Record{
		{"id": int64(1), "name": "Alice", "active": true, "score": 95.5},
		{"id": int64(2), "name": "Bob", "active": false, "score": 87.2},
		{"id": int64(3), "name": "Charlie", "active": true, "score": 92.8},
	}
	ctx := context.Background()
	for _, record := range records {
		require.NoError(t, writer.Write(ctx, record))
	}

	stats := writer.Stats()
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(1), stats.BatchesWritten)

	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close())

	fileInfo, err := os.Stat(filename)
	require.NoError(t, err)
	assert.Greater(t, fileInfo.Size(), int64(0))

	rows := readAll(t, filename)
	require.Len(t, rows, 3)
	assert.Equal(t, "Charlie", rows[2]["name"])
	assert.Equal(t, int64(2), rows[1]["id"])
}

func TestParquetWriter_ExplicitSchemaRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "cleaned", "reviews.parquet")

	writer, err := NewParquetWriter(filename, WithSchema(reviewSchema()))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, writer.Write(ctx, core.Record{"review_id": "1", "product_id": "P1", "rating": int64(5), "has_image": true}))
	require.NoError(t, writer.Write(ctx, core.Record{"review_id": "2", "product_id": nil, "rating": 4, "has_image": false}))
	require.NoError(t, writer.Close())

	reader, err := readers.NewParquetReader(filename)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reader.NumRows())
	assert.Equal(t, []string{"review_id", "product_id", "rating", "has_image"}, reader.Columns())
	require.NoError(t, reader.Close())

	rows := readAll(t, filename)
	require.Len(t, rows, 2)
	assert.Equal(t, "P1", rows[0]["product_id"])
	assert.Nil(t, rows[1]["product_id"])
	assert.Equal(t, int64(4), rows[1]["rating"])
	assert.Equal(t, false, rows[1]["has_image"])
}

func TestParquetWriter_EmptyWithSchemaIsReadable(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "empty.parquet")
	writer, err := NewParquetWriter(filename, WithSchema(reviewSchema()))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	assert.Empty(t, readAll(t, filename))
}

func TestParquetWriter_ExclusiveCreate(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "exists.parquet")
	require.NoError(t, os.WriteFile(filename, []byte("keep"), 0644))

	_, err := NewParquetWriter(filename, WithExclusiveCreate(true))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrExist)

	content, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(content))
}

func TestParquetWriter_TypeInference(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected arrow.DataType
	}{
		{"bool", true, arrow.FixedWidthTypes.Boolean},
		{"int", 42, arrow.PrimitiveTypes.Int32},
		{"int64", int64(42), arrow.PrimitiveTypes.Int64},
		{"float32", float32(3.14), arrow.PrimitiveTypes.Float64},
		{"string", "hello", arrow.BinaryTypes.String},
		{"time", time.Now(), arrow.FixedWidthTypes.Timestamp_us},
		{"nil", nil, arrow.BinaryTypes.String},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := inferArrowType(tt.value)
			require.NoError(t, err)
			assert.True(t, arrow.TypeEqual(tt.expected, got), "got %s", got)
		})
	}

	_, err := inferArrowType(struct{}{})
	assert.Error(t, err)
}

func TestParquetWriter_TypeMismatchFails(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "mismatch.parquet")
	writer, err := NewParquetWriter(filename, WithSchema(reviewSchema()), WithBatchSize(1))
	require.NoError(t, err)
	defer writer.Close()

	err = writer.Write(context.Background(), core.Record{"review_id": "1", "rating": "five", "has_image": true})
	require.Error(t, err)

	var perr *ParquetWriterError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create_arrow_record", perr.Op)

	err = writer.Write(context.Background(), core.Record{"review_id": "2"})
	assert.Error(t, err)
}

func TestParquetReader_Verify(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "verify.parquet")
	writer, err := NewParquetWriter(filename, WithSchema(reviewSchema()))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, writer.Write(ctx, core.Record{"review_id": "1", "rating": int64(5), "has_image": true}))
	require.NoError(t, writer.Write(ctx, core.Record{"review_id": "2", "rating": int64(3), "has_image": false}))
	require.NoError(t, writer.Close())

	cols := []string{"review_id", "product_id", "rating", "has_image"}
	verify := func(columns []string, rows int64) error {
		reader, err := readers.NewParquetReader(filename)
		require.NoError(t, err)
		defer reader.Close()
		return reader.Verify(ctx, columns, rows)
	}

	assert.NoError(t, verify(cols, 2))
	assert.Error(t, verify(cols, 3))
	assert.Error(t, verify([]string{"review_id", "rating", "product_id", "has_image"}, 2))
	assert.Error(t, verify(cols[:3], 2))
}
