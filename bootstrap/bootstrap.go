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

package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/aaronlmathis/reviewetl"
	"github.com/aaronlmathis/reviewetl/core"
	"github.com/aaronlmathis/reviewetl/extract"
	"github.com/aaronlmathis/reviewetl/filter"
	"github.com/aaronlmathis/reviewetl/readers"
	"github.com/aaronlmathis/reviewetl/storage"
	"github.com/aaronlmathis/reviewetl/writers"
)

// Package bootstrap recreates the source database from the raw CSV exports
// kept in object storage. It is a setup tool and not part of a pipeline run.

// RawPrefix is the key prefix of the raw table exports.
const RawPrefix = "raw/"

// rawNullValues are the missing-value markers found in the raw exports.
var rawNullValues = []string{"NA", "N/A", "NaN", "nan", "NULL", "null"}

var databaseNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateDatabaseName rejects names that are not plain identifiers.
func ValidateDatabaseName(name string) error {
	if !databaseNamePattern.MatchString(name) {
		return core.NewError(core.KindConfig, "bootstrap", "validate",
			fmt.Errorf("invalid database name %q", name))
	}
	return nil
}

// ObjectKey returns raw/<table>.csv.
func ObjectKey(table string) string {
	return RawPrefix + table + ".csv"
}

// Execer runs statements on the administrative connection.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Connector opens the freshly created database.
type Connector func(ctx context.Context) (*sql.DB, error)

// ImportStatus describes what happened to one table.
type ImportStatus string

const (
	StatusImported ImportStatus = "imported"
	StatusMissing  ImportStatus = "missing"
	StatusEmpty    ImportStatus = "empty"
	StatusFailed   ImportStatus = "failed"
)

// TableReport is the outcome of one table import.
type TableReport struct {
	Table  string
	Key    string
	Status ImportStatus
	Rows   int64
	Err    error
}

// Report lists the table outcomes in import order.
type Report struct {
	Database string
	Tables   []TableReport
	Duration time.Duration
}

// Imported counts the tables that were loaded and verified.
func (r *Report) Imported() int {
	n := 0
	for _, t := range r.Tables {
		if t.Status == StatusImported {
			n++
		}
	}
	return n
}

// Bootstrapper drops and recreates a database and fills it from S3.
type Bootstrapper struct {
	admin    Execer
	connect  Connector
	objects  readers.S3ObjectAPI
	bucket   string
	database string
	tables   []string
	logger   *zap.Logger
}

// BootstrapOption configures a Bootstrapper.
type BootstrapOption func(*Bootstrapper)

// WithImportTables overrides the list of tables to import.
func WithImportTables(tables ...string) BootstrapOption {
	return func(b *Bootstrapper) {
		b.tables = append([]string(nil), tables...)
	}
}

// WithBootstrapLogger sets the logger. The default is the global zap logger.
func WithBootstrapLogger(logger *zap.Logger) BootstrapOption {
	return func(b *Bootstrapper) {
		b.logger = logger
	}
}

// New returns a Bootstrapper. admin must be connected to a database other
// than the one being recreated.
func New(admin Execer, connect Connector, objects readers.S3ObjectAPI, bucket, database string, opts ...BootstrapOption) *Bootstrapper {
	b := &Bootstrapper{
		admin:    admin,
		connect:  connect,
		objects:  objects,
		bucket:   bucket,
		database: database,
		tables:   append([]string(nil), extract.DefaultTables...),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = zap.L().Named("bootstrap")
	}
	return b
}

// Run recreates the database and imports every table. Database creation and
// connection failures are returned; per-table failures are logged and
// recorded in the report.
func (b *Bootstrapper) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	if err := ValidateDatabaseName(b.database); err != nil {
		b.logger.Error("refusing to create database", zap.Error(err))
		return nil, err
	}

	name := pq.QuoteIdentifier(b.database)
	for _, stmt := range []string{"DROP DATABASE IF EXISTS " + name, "CREATE DATABASE " + name} {
		if _, err := b.admin.ExecContext(ctx, stmt); err != nil {
			b.logger.Error("database creation failed", zap.String("database", b.database), zap.Error(err))
			return nil, core.NewError(core.KindWrite, "bootstrap", "create_database", err)
		}
	}
	b.logger.Info("database recreated", zap.String("database", b.database))

	db, err := b.connect(ctx)
	if err != nil {
		b.logger.Error("cannot connect to new database", zap.String("database", b.database), zap.Error(err))
		return nil, core.NewError(core.KindConnectivity, "bootstrap", "connect", err)
	}
	defer db.Close()

	report := &Report{Database: b.database}
	b.logger.Info("importing raw tables", zap.String("bucket", b.bucket), zap.Int("tables", len(b.tables)))
	for _, table := range b.tables {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		tr := b.importTable(ctx, db, table)
		switch tr.Status {
		case StatusImported:
			b.logger.Info("table imported", zap.String("table", table), zap.Int64("rows", tr.Rows))
		case StatusMissing:
			b.logger.Warn("raw object not found", zap.String("key", tr.Key))
		case StatusEmpty:
			b.logger.Warn("raw object has no rows", zap.String("key", tr.Key))
		default:
			b.logger.Error("table import failed", zap.String("key", tr.Key), zap.Error(tr.Err))
		}
		report.Tables = append(report.Tables, tr)
	}

	report.Duration = time.Since(start)
	b.logger.Info("bootstrap finished",
		zap.String("database", b.database),
		zap.Int("imported", report.Imported()),
		zap.Int("tables", len(report.Tables)),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// importTable streams raw/<table>.csv into a replaced table and verifies
// the row count.
func (b *Bootstrapper) importTable(ctx context.Context, db *sql.DB, table string) TableReport {
	tr := TableReport{Table: table, Key: ObjectKey(table)}
	fail := func(err error) TableReport {
		tr.Err = err
		tr.Status = StatusFailed
		if storage.IsNotFound(err) {
			tr.Status = StatusMissing
		}
		return tr
	}

	reader, err := readers.NewS3Reader(ctx,
		readers.WithS3Client(b.objects),
		readers.WithS3Bucket(b.bucket),
		readers.WithS3Keys(tr.Key),
		readers.WithS3CSVOptions(
			readers.WithCSVHasHeaders(true),
			readers.WithCSVInferTypes(true),
			readers.WithCSVNullValues(rawNullValues...)),
	)
	if err != nil {
		return fail(err)
	}
	writer, err := writers.NewPostgresWriter(
		writers.WithPostgresWriterDB(db),
		writers.WithTableName(table),
		writers.WithReplaceTable(),
		writers.WithTransactionMode(true),
	)
	if err != nil {
		reader.Close()
		return fail(err)
	}

	p, err := reviewetl.NewPipeline().
		From(reader).
		Filter(filter.AnyPresent()).
		To(writer).
		Build()
	if err != nil {
		reader.Close()
		return fail(err)
	}
	stats, err := p.Execute(ctx)
	if err != nil {
		return fail(err)
	}
	if stats.Written == 0 {
		tr.Status = StatusEmpty
		return tr
	}

	count, err := countRows(ctx, db, table)
	if err != nil {
		return fail(err)
	}
	if count != stats.Written {
		return fail(fmt.Errorf("table %s holds %d rows after importing %d", table, count, stats.Written))
	}
	tr.Rows = count
	tr.Status = StatusImported
	return tr
}

func countRows(ctx context.Context, db *sql.DB, table string) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + pq.QuoteIdentifier(table)
	if err := sqlx.NewDb(db, "postgres").GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// ErrNoTables is returned by the command when nothing could be imported.
var ErrNoTables = errors.New("no table was imported")
