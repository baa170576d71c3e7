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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/aaronlmathis/reviewetl/core"
)

// CSVWriterError wraps CSV-specific write errors with context.
type CSVWriterError struct {
	Op  string
	Err error
}

func (e *CSVWriterError) Error() string {
	return fmt.Sprintf("csv writer %s: %v", e.Op, e.Err)
}

func (e *CSVWriterError) Unwrap() error {
	return e.Err
}

// CSVWriterStats holds CSV write performance statistics.
type CSVWriterStats struct {
	RecordsWritten  int64
	FlushCount      int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// CSVWriterOptions configures CSV output.
type CSVWriterOptions struct {
	Comma         rune
	UseCRLF       bool
	WriteHeader   bool
	Headers       []string
	BatchSize     int  // rows buffered before a flush; 0 flushes on Flush/Close only
	StrictColumns bool // reject records carrying keys outside Headers
}

// WriterOptionCSV is a functional option.
type WriterOptionCSV func(*CSVWriterOptions)

// WithHeaders fixes the column order. Without it, columns are the sorted
// keys of the first record.
func WithHeaders(headers []string) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Headers = append([]string(nil), headers...)
	}
}

// WithComma sets the field delimiter.
func WithComma(delim rune) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Comma = delim
	}
}

// WithWriteHeader controls whether the header row is written.
func WithWriteHeader(write bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.WriteHeader = write
	}
}

// WithCSVBatchSize sets how many rows are buffered between flushes.
func WithCSVBatchSize(size int) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.BatchSize = size
	}
}

// WithUseCRLF ends lines with \r\n.
func WithUseCRLF(useCRLF bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.UseCRLF = useCRLF
	}
}

// WithStrictColumns makes Write fail on a record key that has no column.
// Audit files use it so a renamed field cannot silently drop a value.
func WithStrictColumns(strict bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.StrictColumns = strict
	}
}

// CSVWriter implements DataSink for CSV output. The header row is written
// exactly once, before the first row or on Flush when headers are fixed.
type CSVWriter struct {
	writer      *csv.Writer
	closer      io.Closer
	options     CSVWriterOptions
	headers     []string
	columnSet   map[string]struct{}
	pending     [][]string
	stats       CSVWriterStats
	wroteHeader bool
	closed      bool
	errorState  bool
	mu          sync.Mutex
}

// NewCSVWriter creates a CSV writer over w. Close closes w.
func NewCSVWriter(w io.WriteCloser, opts ...WriterOptionCSV) (*CSVWriter, error) {
	options := CSVWriterOptions{
		Comma:       ',',
		WriteHeader: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.StrictColumns && len(options.Headers) == 0 {
		return nil, &CSVWriterError{Op: "validate", Err: fmt.Errorf("strict columns require explicit headers")}
	}

	cw := csv.NewWriter(w)
	cw.Comma = options.Comma
	cw.UseCRLF = options.UseCRLF

	c := &CSVWriter{
		writer:  cw,
		closer:  w,
		options: options,
		stats:   CSVWriterStats{NullValueCounts: make(map[string]int64)},
	}
	c.setHeaders(options.Headers)
	return c, nil
}

// WriteDatasetCSV writes ds to a new file at path under its own column
// header, creating parent directories. An existing file is an error and a
// failed write leaves no file behind.
func WriteDatasetCSV(ctx context.Context, path string, ds core.Dataset) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &CSVWriterError{Op: "mkdir", Err: err}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &CSVWriterError{Op: "create", Err: err}
	}

	w, err := NewCSVWriter(f, WithHeaders(ds.Columns()), WithStrictColumns(true))
	if err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	defer func() {
		err = multierr.Append(err, w.Close())
		if err != nil {
			os.Remove(path)
		}
	}()

	for _, rec := range ds.Records() {
		if err := w.Write(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (c *CSVWriter) setHeaders(headers []string) {
	c.headers = append([]string(nil), headers...)
	c.columnSet = make(map[string]struct{}, len(headers))
	for _, h := range headers {
		c.columnSet[h] = struct{}{}
	}
}

// Write implements the DataSink interface.
func (c *CSVWriter) Write(ctx context.Context, record core.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errorState || c.closed {
		return &CSVWriterError{Op: "write", Err: fmt.Errorf("writer is closed or in error state")}
	}
	if err := ctx.Err(); err != nil {
		return &CSVWriterError{Op: "write", Err: err}
	}

	if len(c.headers) == 0 {
		keys := make([]string, 0, len(record))
		for key := range record {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		c.setHeaders(keys)
	}
	if c.options.StrictColumns {
		for key := range record {
			if _, ok := c.columnSet[key]; !ok {
				return &CSVWriterError{Op: "write", Err: fmt.Errorf("unknown column %q", key)}
			}
		}
	}

	row := make([]string, len(c.headers))
	for i, key := range c.headers {
		v := record[key]
		if isNull(v) {
			c.stats.NullValueCounts[key]++
		}
		row[i] = formatCSVValue(v)
	}
	c.pending = append(c.pending, row)
	c.stats.RecordsWritten++

	if c.options.BatchSize > 0 && len(c.pending) >= c.options.BatchSize {
		if err := c.flushUnsafe(); err != nil {
			c.errorState = true
			return err
		}
	}
	return nil
}

// Flush implements the DataSink interface. With fixed headers the header row
// is written even when no record was.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	return c.flushUnsafe()
}

// Close flushes and closes the underlying writer. Later calls are no-ops.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	err := c.flushUnsafe()
	c.closed = true
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// flushUnsafe writes the header if due and every pending row (must hold mutex).
func (c *CSVWriter) flushUnsafe() error {
	start := time.Now()

	if !c.wroteHeader && c.options.WriteHeader && len(c.headers) > 0 {
		if err := c.writer.Write(c.headers); err != nil {
			return &CSVWriterError{Op: "write_header", Err: err}
		}
		c.wroteHeader = true
	}
	if err := c.writer.WriteAll(c.pending); err != nil {
		return &CSVWriterError{Op: "write_rows", Err: err}
	}
	if err := c.writer.Error(); err != nil {
		return &CSVWriterError{Op: "flush", Err: err}
	}

	if len(c.pending) > 0 {
		c.stats.FlushCount++
		c.stats.LastFlushTime = time.Now()
		c.stats.FlushDuration += time.Since(start)
		c.pending = c.pending[:0]
	}
	return nil
}

// Stats returns a copy of the write statistics.
func (c *CSVWriter) Stats() CSVWriterStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	statsCopy := c.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(c.stats.NullValueCounts))
	for k, v := range c.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

func isNull(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case *string:
		return val == nil
	case *int64:
		return val == nil
	case *float64:
		return val == nil
	}
	return false
}

// formatCSVValue renders a cell. Nulls are empty, times are RFC 3339 in UTC
// and floats use the shortest exact representation.
func formatCSVValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case *int64:
		if val == nil {
			return ""
		}
		return strconv.FormatInt(*val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case *float64:
		if val == nil {
			return ""
		}
		return strconv.FormatFloat(*val, 'f', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}
