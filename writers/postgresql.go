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
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/aaronlmathis/reviewetl/core"
)

// This file implements a batching PostgreSQL writer over an injected pool.
// The bootstrap uses it to load raw CSV objects into freshly replaced tables.

// PostgresWriterError wraps PostgreSQL-specific write errors with context about the operation.
type PostgresWriterError struct {
	Op  string // The operation being performed (e.g., "write", "create_table")
	Err error  // The underlying error
}

// Error returns the error string for PostgresWriterError.
func (e *PostgresWriterError) Error() string {
	return fmt.Sprintf("postgres writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for PostgresWriterError.
func (e *PostgresWriterError) Unwrap() error {
	return e.Err
}

// PostgresWriterStats holds PostgreSQL write performance statistics.
type PostgresWriterStats struct {
	RecordsWritten   int64            // Total records inserted
	BatchesWritten   int64            // Number of batches written
	TransactionCount int64            // Number of transactions committed
	LastWriteTime    time.Time        // Time of last write
	WriteDuration    time.Duration    // Total time spent writing
	NullValueCounts  map[string]int64 // Count of null values per column
}

// TableMode selects what the writer does to the target table before the first insert.
type TableMode int

const (
	// TableAppend inserts into an existing table.
	TableAppend TableMode = iota
	// TableCreate creates the table if it does not exist.
	TableCreate
	// TableReplace drops any existing table and creates it from the data.
	TableReplace
)

// PostgresWriterOptions configures the PostgreSQL writer.
type PostgresWriterOptions struct {
	DB              *sql.DB
	TableName       string        // Target table name, quoted on use
	Columns         []string      // Columns to write (order matters)
	BatchSize       int           // Number of records per batch
	Mode            TableMode     // Table preparation before the first insert
	TransactionMode bool          // Wrap batches in transactions
	QueryTimeout    time.Duration // Timeout for Flush and Close
}

// PostgresWriterOption represents a configuration function for PostgresWriterOptions.
type PostgresWriterOption func(*PostgresWriterOptions)

// WithPostgresWriterDB sets the connection pool the writer inserts through.
func WithPostgresWriterDB(db *sql.DB) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DB = db
	}
}

// WithTableName sets the target table name.
func WithTableName(tableName string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TableName = tableName
	}
}

// WithColumns sets the columns to write.
func WithColumns(columns []string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

// WithPostgresBatchSize sets the batch size for writes.
func WithPostgresBatchSize(size int) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCreateTable creates the table if it does not exist.
func WithCreateTable() PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.Mode = TableCreate
	}
}

// WithReplaceTable drops and recreates the table before the first insert.
func WithReplaceTable() PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.Mode = TableReplace
	}
}

// WithTransactionMode enables or disables transaction wrapping for batches.
func WithTransactionMode(enabled bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TransactionMode = enabled
	}
}

// WithPostgresQueryTimeout sets the query timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.QueryTimeout = timeout
	}
}

// PostgresWriter implements core.DataSink for PostgreSQL output. Column
// types are inferred from the first batch. The pool is borrowed and left
// open on Close.
type PostgresWriter struct {
	db          *sql.DB
	options     PostgresWriterOptions
	columns     []string
	recordBuf   []core.Record
	stats       PostgresWriterStats
	insertSQL   string
	initialized bool
	errorState  bool
	mu          sync.Mutex
}

// NewPostgresWriter creates a new PostgreSQL writer with the given options.
func NewPostgresWriter(opts ...PostgresWriterOption) (*PostgresWriter, error) {
	options := (&PostgresWriterOptions{}).withDefaults()
	for _, opt := range opts {
		opt(options)
	}

	if options.DB == nil {
		return nil, &PostgresWriterError{Op: "validate", Err: fmt.Errorf("db is required")}
	}
	if options.TableName == "" {
		return nil, &PostgresWriterError{Op: "validate", Err: fmt.Errorf("table name is required")}
	}

	return &PostgresWriter{
		db:        options.DB,
		options:   *options,
		columns:   append([]string(nil), options.Columns...),
		recordBuf: make([]core.Record, 0, options.BatchSize),
		stats:     PostgresWriterStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Stats returns a copy of the current write statistics.
func (w *PostgresWriter) Stats() PostgresWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	statsCopy := w.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(w.stats.NullValueCounts))
	for k, v := range w.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Write implements the core.DataSink interface.
func (w *PostgresWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return &PostgresWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}

	if len(w.columns) == 0 {
		for key := range record {
			w.columns = append(w.columns, key)
		}
		sort.Strings(w.columns)
	}

	w.recordBuf = append(w.recordBuf, record)
	if len(w.recordBuf) >= w.options.BatchSize {
		if err := w.flushBufferUnsafe(ctx); err != nil {
			w.errorState = true
			return err
		}
	}
	return nil
}

// Flush implements the core.DataSink interface. When no record was ever
// written but columns are known, the table is still prepared.
func (w *PostgresWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	if err := w.flushBufferUnsafe(ctx); err != nil {
		w.errorState = true
		return err
	}
	if !w.initialized && len(w.columns) > 0 {
		if err := w.initializeUnsafe(ctx); err != nil {
			w.errorState = true
			return err
		}
	}
	return nil
}

// Close implements the core.DataSink interface.
func (w *PostgresWriter) Close() error {
	return w.Flush()
}

func (opts *PostgresWriterOptions) withDefaults() *PostgresWriterOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	return opts
}

// initializeUnsafe prepares the table using the buffered batch for type
// inference (must hold mutex).
func (w *PostgresWriter) initializeUnsafe(ctx context.Context) error {
	table := pq.QuoteIdentifier(w.options.TableName)

	if w.options.Mode == TableReplace {
		if _, err := w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return &PostgresWriterError{Op: "drop_table", Err: err}
		}
	}
	if w.options.Mode != TableAppend {
		query := createTableSQL(w.options.TableName, w.columns, inferColumnTypes(w.columns, w.recordBuf))
		if _, err := w.db.ExecContext(ctx, query); err != nil {
			return &PostgresWriterError{Op: "create_table", Err: err}
		}
	}

	w.insertSQL = insertSQL(w.options.TableName, w.columns)
	w.initialized = true
	return nil
}

// flushBufferUnsafe writes buffered records to PostgreSQL (must hold mutex).
func (w *PostgresWriter) flushBufferUnsafe(ctx context.Context) (err error) {
	if len(w.recordBuf) == 0 {
		return nil
	}
	if !w.initialized {
		if err := w.initializeUnsafe(ctx); err != nil {
			return err
		}
	}

	start := time.Now()

	var tx *sql.Tx
	var stmt *sql.Stmt
	if w.options.TransactionMode {
		tx, err = w.db.BeginTx(ctx, nil)
		if err != nil {
			return &PostgresWriterError{Op: "begin", Err: err}
		}
		defer func() {
			if err != nil {
				tx.Rollback()
			}
		}()
		stmt, err = tx.PrepareContext(ctx, w.insertSQL)
	} else {
		stmt, err = w.db.PrepareContext(ctx, w.insertSQL)
	}
	if err != nil {
		return &PostgresWriterError{Op: "prepare", Err: err}
	}
	defer stmt.Close()

	for _, record := range w.recordBuf {
		values := make([]interface{}, len(w.columns))
		for i, col := range w.columns {
			val := record[col]
			if val == nil {
				w.stats.NullValueCounts[col]++
			}
			values[i] = convertValue(val)
		}
		if _, err = stmt.ExecContext(ctx, values...); err != nil {
			return &PostgresWriterError{Op: "insert", Err: err}
		}
	}

	if tx != nil {
		if err = tx.Commit(); err != nil {
			return &PostgresWriterError{Op: "commit", Err: err}
		}
		w.stats.TransactionCount++
	}

	w.stats.RecordsWritten += int64(len(w.recordBuf))
	w.stats.BatchesWritten++
	w.stats.LastWriteTime = time.Now()
	w.stats.WriteDuration += time.Since(start)
	w.recordBuf = w.recordBuf[:0]
	return nil
}

func createTableSQL(table string, columns, types []string) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = pq.QuoteIdentifier(col) + " " + types[i]
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pq.QuoteIdentifier(table), strings.Join(defs, ", "))
}

func insertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pq.QuoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}

// inferColumnTypes picks one SQL type per column from every non-nil value in
// records. Integers widen to DOUBLE PRECISION when floats are present, and any
// other mix falls back to TEXT.
func inferColumnTypes(columns []string, records []core.Record) []string {
	types := make([]string, len(columns))
	for i, col := range columns {
		current := ""
		for _, record := range records {
			t := inferSQLType(record[col])
			if t == "" {
				continue
			}
			switch {
			case current == "" || current == t:
				current = t
			case isNumericSQL(current) && isNumericSQL(t):
				current = "DOUBLE PRECISION"
			default:
				current = "TEXT"
			}
		}
		if current == "" {
			current = "TEXT"
		}
		types[i] = current
	}
	return types
}

func isNumericSQL(t string) bool {
	return t == "BIGINT" || t == "DOUBLE PRECISION"
}

// inferSQLType infers PostgreSQL column type from Go value. nil yields "".
func inferSQLType(value interface{}) string {
	switch value.(type) {
	case nil:
		return ""
	case bool:
		return "BOOLEAN"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "BIGINT"
	case float32, float64:
		return "DOUBLE PRECISION"
	case time.Time:
		return "TIMESTAMP"
	case []byte:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

// convertValue converts Go values to PostgreSQL-compatible types.
func convertValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time, bool, int64, float64, string, []byte:
		return v
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
			return rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint())
		case reflect.Float32:
			return rv.Float()
		default:
			return fmt.Sprintf("%v", v)
		}
	}
}
