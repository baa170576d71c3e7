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
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/reviewetl/core"
	"go.uber.org/multierr"
)

// Package writers provides core.DataSink implementations for the review
// pipeline: the cleaned Parquet file, audit and reject CSVs, bootstrap
// tables in PostgreSQL and bronze documents in MongoDB.
//
// This file implements a batching Parquet writer with Arrow schema inference,
// compression and explicit field ordering.

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "open_file", "schema", "write_batch")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriter implements core.DataSink for Parquet files.
type ParquetWriter struct {
	file         *os.File
	writer       *pqarrow.FileWriter
	schema       *arrow.Schema
	closed       bool
	errorState   bool
	recordBuffer []core.Record
	fieldOrder   []string
	builders     []array.Builder
	allocator    memory.Allocator
	stats        WriterStats
	opts         *ParquetWriterOptions
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of records to buffer before writing
	Schema       *arrow.Schema        // Pre-defined schema (optional)
	Compression  compress.Compression // Compression algorithm
	FieldOrder   []string             // Explicit field ordering
	RowGroupSize int64                // Maximum rows per row group
	Exclusive    bool                 // Fail if the file already exists
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithFieldOrder sets the explicit field ordering for an inferred schema.
func WithFieldOrder(fields []string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.FieldOrder = make([]string, len(fields))
		copy(opts.FieldOrder, fields)
	}
}

// WithSchema fixes the Arrow schema up front. Field order follows the schema.
func WithSchema(schema *arrow.Schema) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Schema = schema
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithExclusiveCreate makes NewParquetWriter fail with os.ErrExist instead of
// truncating an existing file.
func WithExclusiveCreate(exclusive bool) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Exclusive = exclusive
	}
}

// NewParquetWriter creates a new Parquet writer for a file.
func NewParquetWriter(filename string, options ...WriterOption) (*ParquetWriter, error) {
	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	dir := filepath.Dir(filename)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &ParquetWriterError{
				Op:  "create_directory",
				Err: fmt.Errorf("failed to create directory %s: %w", dir, err),
			}
		}
	}

	flags := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	if opts.Exclusive {
		flags = os.O_RDWR | os.O_CREATE | os.O_EXCL
	}
	file, err := os.OpenFile(filename, flags, 0644)
	if err != nil {
		return nil, &ParquetWriterError{
			Op:  "open_file",
			Err: fmt.Errorf("failed to create parquet file %s: %w", filename, err),
		}
	}

	writer := &ParquetWriter{
		file:         file,
		fieldOrder:   opts.FieldOrder,
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		stats:        WriterStats{NullValueCounts: make(map[string]int64)},
		allocator:    memory.NewGoAllocator(),
		opts:         opts,
	}

	if opts.Schema != nil {
		if err := writer.useSchema(opts.Schema); err != nil {
			file.Close()
			return nil, err
		}
	}
	return writer, nil
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	return p.stats
}

// Write implements the core.DataSink interface. Records are buffered and
// written in batches.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if err := ctx.Err(); err != nil {
		return &ParquetWriterError{Op: "write", Err: err}
	}

	if p.schema == nil {
		schema, err := p.inferSchema(record)
		if err == nil {
			err = p.useSchema(schema)
		}
		if err != nil {
			p.errorState = true
			return &ParquetWriterError{Op: "schema", Err: fmt.Errorf("failed to initialize schema: %w", err)}
		}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			return err
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (p *ParquetWriter) Flush() error {
	if p.closed {
		return nil
	}
	return p.flushBatch()
}

// Close flushes buffered records, writes the footer and closes the file.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.flushBatch(); err != nil {
		errs = append(errs, err)
	}

	for _, builder := range p.builders {
		builder.Release()
	}
	p.builders = nil

	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			errs = append(errs, &ParquetWriterError{Op: "close_writer", Err: err})
		}
		p.writer = nil
	}
	// The file writer may already have closed the sink.
	if p.file != nil {
		if err := p.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, &ParquetWriterError{Op: "close_file", Err: err})
		}
		p.file = nil
	}
	return multierr.Combine(errs...)
}

func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 10000
	}
	if result.Compression == 0 {
		result.Compression = compress.Codecs.Snappy
	}
	return result
}

// inferSchema derives a nullable schema from the first record. Missing or
// nil values default to strings.
func (p *ParquetWriter) inferSchema(record core.Record) (*arrow.Schema, error) {
	fieldNames := p.fieldOrder
	if fieldNames == nil {
		fieldNames = make([]string, 0, len(record))
		for name := range record {
			fieldNames = append(fieldNames, name)
		}
		sort.Strings(fieldNames)
	}

	fields := make([]arrow.Field, 0, len(fieldNames))
	for _, name := range fieldNames {
		dataType, err := inferArrowType(record[name])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields = append(fields, arrow.Field{Name: name, Type: dataType, Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

func (p *ParquetWriter) useSchema(schema *arrow.Schema) error {
	p.schema = schema
	p.fieldOrder = make([]string, len(schema.Fields()))
	p.builders = make([]array.Builder, len(schema.Fields()))
	for i, field := range schema.Fields() {
		p.fieldOrder[i] = field.Name
		p.builders[i] = array.NewBuilder(p.allocator, field.Type)
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(schema, p.file, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return &ParquetWriterError{Op: "create_writer", Err: err}
	}
	p.writer = writer
	return nil
}

func inferArrowType(value interface{}) (arrow.DataType, error) {
	switch v := value.(type) {
	case nil, string:
		return arrow.BinaryTypes.String, nil
	case bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case int32:
		return arrow.PrimitiveTypes.Int32, nil
	case int64:
		return arrow.PrimitiveTypes.Int64, nil
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return arrow.PrimitiveTypes.Int32, nil
		}
		return arrow.PrimitiveTypes.Int64, nil
	case float32, float64:
		return arrow.PrimitiveTypes.Float64, nil
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case []byte:
		return arrow.BinaryTypes.Binary, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}

func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 || p.writer == nil {
		return nil
	}
	startTime := time.Now()

	record, err := p.createArrowRecord(p.recordBuffer)
	if err != nil {
		p.errorState = true
		return &ParquetWriterError{Op: "create_arrow_record", Err: err}
	}
	defer record.Release()

	if err := p.writer.Write(record); err != nil {
		p.errorState = true
		return &ParquetWriterError{Op: "write_batch", Err: err}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(startTime)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]
	return nil
}

func (p *ParquetWriter) createArrowRecord(records []core.Record) (arrow.Record, error) {
	for _, record := range records {
		for i, fieldName := range p.fieldOrder {
			value, exists := record[fieldName]
			if !exists || value == nil {
				p.builders[i].AppendNull()
				p.stats.NullValueCounts[fieldName]++
				continue
			}
			if err := appendValue(p.builders[i], value); err != nil {
				return nil, fmt.Errorf("field %s: %w", fieldName, err)
			}
		}
	}

	arrays := make([]arrow.Array, len(p.builders))
	for i, builder := range p.builders {
		arrays[i] = builder.NewArray()
		defer arrays[i].Release()
	}
	return array.NewRecord(p.schema, arrays, int64(len(records))), nil
}

// appendValue appends a non-nil value, rejecting values whose Go type does
// not fit the column.
func appendValue(builder array.Builder, value interface{}) error {
	mismatch := fmt.Errorf("cannot store %T in %s column", value, builder.Type())

	switch b := builder.(type) {
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return mismatch
		}
		b.Append(v)
	case *array.Int32Builder:
		switch v := value.(type) {
		case int32:
			b.Append(v)
		case int:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return fmt.Errorf("int value %d out of range for int32", v)
			}
			b.Append(int32(v))
		default:
			return mismatch
		}
	case *array.Int64Builder:
		switch v := value.(type) {
		case int64:
			b.Append(v)
		case int:
			b.Append(int64(v))
		case int32:
			b.Append(int64(v))
		default:
			return mismatch
		}
	case *array.Float64Builder:
		switch v := value.(type) {
		case float64:
			b.Append(v)
		case float32:
			b.Append(float64(v))
		case int:
			b.Append(float64(v))
		case int64:
			b.Append(float64(v))
		default:
			return mismatch
		}
	case *array.StringBuilder:
		if v, ok := value.(string); ok {
			b.Append(v)
		} else {
			b.Append(fmt.Sprintf("%v", value))
		}
	case *array.BinaryBuilder:
		v, ok := value.([]byte)
		if !ok {
			return mismatch
		}
		b.Append(v)
	case *array.TimestampBuilder:
		v, ok := value.(time.Time)
		if !ok {
			return mismatch
		}
		b.Append(arrow.Timestamp(v.UnixMicro()))
	default:
		return fmt.Errorf("unsupported column type %s", builder.Type())
	}
	return nil
}
