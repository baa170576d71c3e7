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

package readers

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/aaronlmathis/reviewetl/core"
	"github.com/lib/pq"
)

// Package readers provides core.DataSource implementations for the stores the
// review pipeline reads from: the relational source, the bronze document
// store, raw CSV objects in S3, and Parquet files written by the load stage.
//
// This file implements a PostgreSQL reader over an injected connection pool.

// PostgresReaderError provides structured error information for Postgres reader operations
type PostgresReaderError struct {
	Op  string // Operation that failed (e.g., "connect", "query", "scan", "read")
	Err error  // Underlying error
}

func (e *PostgresReaderError) Error() string {
	return fmt.Sprintf("postgres reader %s: %v", e.Op, e.Err)
}

func (e *PostgresReaderError) Unwrap() error {
	return e.Err
}

// PostgresReader implements core.DataSource for a single query result.
// The *sql.DB is borrowed; Close releases the result set but leaves the pool open.
type PostgresReader struct {
	mu          sync.Mutex
	db          *sql.DB
	rows        *sql.Rows
	columnNames []string
	columnTypes []*sql.ColumnType
	scanBuffer  []interface{}
	values      []interface{}
	stats       PostgresReaderStats
	opts        *PostgresReaderOptions
	isFinished  bool
}

// PostgresReaderStats holds statistics about the Postgres reader's performance
type PostgresReaderStats struct {
	RecordsRead     int64
	QueryDuration   time.Duration
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// PostgresReaderOptions configures the Postgres reader
type PostgresReaderOptions struct {
	DB           *sql.DB
	Table        string        // Table to scan with SELECT *
	Query        string        // Explicit query; takes precedence over Table
	Params       []interface{} // Optional query parameters
	QueryTimeout time.Duration // Applies to query execution only
}

// PostgresReaderOption represents a configuration function for PostgresReaderOptions
type PostgresReaderOption func(*PostgresReaderOptions)

// WithPostgresDB sets the connection pool the reader queries through.
func WithPostgresDB(db *sql.DB) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DB = db
	}
}

// WithPostgresTable reads every row of an unqualified table.
func WithPostgresTable(table string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Table = table
	}
}

// WithPostgresQuery sets the SQL query and optional parameters.
func WithPostgresQuery(query string, params ...interface{}) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Query = query
		if len(params) > 0 {
			opts.Params = make([]interface{}, len(params))
			copy(opts.Params, params)
		}
	}
}

// WithPostgresQueryTimeout sets the query execution timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

// PostgresPoolOptions configures OpenPostgresDB.
type PostgresPoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// PostgresPoolOption represents a configuration function for PostgresPoolOptions
type PostgresPoolOption func(*PostgresPoolOptions)

// WithPostgresConnectionPool configures the connection pool.
func WithPostgresConnectionPool(maxOpen, maxIdle int) PostgresPoolOption {
	return func(opts *PostgresPoolOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
	}
}

// WithPostgresConnectionTimeout sets connection lifetime and idle timeouts.
func WithPostgresConnectionTimeout(lifetime, idleTime time.Duration) PostgresPoolOption {
	return func(opts *PostgresPoolOptions) {
		opts.ConnMaxLifetime = lifetime
		opts.ConnMaxIdleTime = idleTime
	}
}

// WithPostgresPingTimeout bounds the initial connectivity check.
func WithPostgresPingTimeout(timeout time.Duration) PostgresPoolOption {
	return func(opts *PostgresPoolOptions) {
		opts.PingTimeout = timeout
	}
}

func (opts *PostgresPoolOptions) withDefaults() *PostgresPoolOptions {
	result := &PostgresPoolOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.MaxOpenConns <= 0 {
		result.MaxOpenConns = 10
	}
	if result.MaxIdleConns <= 0 {
		result.MaxIdleConns = 5
	}
	if result.ConnMaxLifetime <= 0 {
		result.ConnMaxLifetime = 5 * time.Minute
	}
	if result.ConnMaxIdleTime <= 0 {
		result.ConnMaxIdleTime = 1 * time.Minute
	}
	if result.PingTimeout <= 0 {
		result.PingTimeout = 10 * time.Second
	}
	return result
}

// OpenPostgresDB opens a pool for dsn and verifies it with a ping.
// The caller owns the returned pool.
func OpenPostgresDB(ctx context.Context, dsn string, options ...PostgresPoolOption) (*sql.DB, error) {
	if dsn == "" {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("dsn is required")}
	}
	opts := (&PostgresPoolOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &PostgresReaderError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &PostgresReaderError{Op: "ping", Err: err}
	}
	return db, nil
}

func (opts *PostgresReaderOptions) withDefaults() *PostgresReaderOptions {
	result := &PostgresReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.QueryTimeout <= 0 {
		result.QueryTimeout = 30 * time.Second
	}
	return result
}

// statement returns the query to run, building a quoted SELECT * for tables.
func (opts *PostgresReaderOptions) statement() (string, error) {
	if opts.Query != "" {
		return opts.Query, nil
	}
	if opts.Table != "" {
		return "SELECT * FROM " + pq.QuoteIdentifier(opts.Table), nil
	}
	return "", fmt.Errorf("query or table is required")
}

// NewPostgresReader runs the configured query and returns a reader positioned
// before the first row.
func NewPostgresReader(ctx context.Context, options ...PostgresReaderOption) (*PostgresReader, error) {
	opts := (&PostgresReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	if opts.DB == nil {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("db is required")}
	}
	query, err := opts.statement()
	if err != nil {
		return nil, &PostgresReaderError{Op: "validate", Err: err}
	}

	reader := &PostgresReader{
		db:    opts.DB,
		opts:  opts,
		stats: PostgresReaderStats{NullValueCounts: make(map[string]int64)},
	}
	if err := reader.executeQuery(ctx, query); err != nil {
		reader.Close()
		return nil, err
	}
	return reader, nil
}

// Stats returns a copy of the reader statistics.
func (p *PostgresReader) Stats() PostgresReaderStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	statsCopy := p.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Columns returns the result column names in query order.
func (p *PostgresReader) Columns() []string {
	return append([]string(nil), p.columnNames...)
}

// Read implements the core.DataSource interface.
func (p *PostgresReader) Read(ctx context.Context) (core.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
		p.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &PostgresReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if p.isFinished || p.rows == nil {
		return nil, io.EOF
	}

	if !p.rows.Next() {
		if err := p.rows.Err(); err != nil {
			return nil, &PostgresReaderError{Op: "read", Err: err}
		}
		p.isFinished = true
		return nil, io.EOF
	}

	if err := p.rows.Scan(p.scanBuffer...); err != nil {
		return nil, &PostgresReaderError{Op: "scan", Err: err}
	}

	record := p.convertRowToRecord()
	p.stats.RecordsRead++
	return record, nil
}

// Close releases the result set.
func (p *PostgresReader) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.scanBuffer = nil
	p.values = nil
	if p.rows != nil {
		err := p.rows.Close()
		p.rows = nil
		if err != nil {
			return &PostgresReaderError{Op: "close", Err: err}
		}
	}
	return nil
}

// Schema returns a map of column name to database type name.
func (p *PostgresReader) Schema() map[string]string {
	schema := make(map[string]string)
	for i, name := range p.columnNames {
		if i < len(p.columnTypes) {
			schema[name] = p.columnTypes[i].DatabaseTypeName()
		}
	}
	return schema
}

func (p *PostgresReader) executeQuery(ctx context.Context, query string) error {
	startTime := time.Now()

	// The timeout bounds the liveness check; rows stream under ctx.
	qctx, cancel := context.WithTimeout(ctx, p.opts.QueryTimeout)
	defer cancel()
	if err := p.db.PingContext(qctx); err != nil {
		return &PostgresReaderError{Op: "ping", Err: err}
	}

	rows, err := p.db.QueryContext(ctx, query, p.opts.Params...)
	if err != nil {
		return &PostgresReaderError{Op: "query", Err: err}
	}
	p.rows = rows
	p.stats.QueryDuration = time.Since(startTime)

	columnNames, err := rows.Columns()
	if err != nil {
		return &PostgresReaderError{Op: "columns", Err: err}
	}
	p.columnNames = columnNames

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return &PostgresReaderError{Op: "column_types", Err: err}
	}
	p.columnTypes = columnTypes

	p.scanBuffer = make([]interface{}, len(columnNames))
	p.values = make([]interface{}, len(columnNames))
	for i := range p.scanBuffer {
		p.scanBuffer[i] = &p.values[i]
	}
	return nil
}

// convertSQLValue converts SQL driver values to plain Go types.
// dbType is the driver's DatabaseTypeName for the column.
func convertSQLValue(value interface{}, dbType string) interface{} {
	if b, ok := value.([]byte); ok {
		switch dbType {
		case "TEXT", "VARCHAR", "CHAR", "BPCHAR", "NUMERIC", "UUID", "JSON", "JSONB":
			return string(b)
		default:
			// BYTEA and unknown binary types
			return b
		}
	}

	switch v := value.(type) {
	case time.Time, bool, int64, float64, string:
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

func (p *PostgresReader) convertRowToRecord() core.Record {
	record := make(core.Record, len(p.columnNames))
	for i, columnName := range p.columnNames {
		value := p.values[i]
		if value == nil {
			p.stats.NullValueCounts[columnName]++
			record[columnName] = nil
			continue
		}
		record[columnName] = convertSQLValue(value, p.columnTypes[i].DatabaseTypeName())
	}
	return record
}
