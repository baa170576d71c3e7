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
	"time"

	"go.uber.org/zap"

	"github.com/aaronlmathis/reviewetl"
	"github.com/aaronlmathis/reviewetl/audit"
	"github.com/aaronlmathis/reviewetl/core"
)

// DefaultTables is the relational source schema, in extraction order.
var DefaultTables = []string{
	core.TableBuyer,
	core.TableSubscription,
	core.TableProduct,
	core.TableOrders,
	core.TableReview,
	core.TableReviewImages,
	core.TableProductReviews,
}

// AuditColumns is the header of the extract audit file.
var AuditColumns = []string{"table", "rows", "null_values", "duplicates"}

// TableAudit is one row of the extract audit.
type TableAudit struct {
	Table      string
	Rows       int
	NullValues int64
	Duplicates int64
}

func (a TableAudit) Record() core.Record {
	return core.Record{
		"table":       a.Table,
		"rows":        a.Rows,
		"null_values": a.NullValues,
		"duplicates":  a.Duplicates,
	}
}

// Result is the output of one extraction.
type Result struct {
	Tables    map[string]*core.RawTable
	Audit     []TableAudit
	AuditPath string           // empty when no table succeeded
	Skipped   map[string]error // tables whose fetch failed
}

// Extractor copies a fixed list of tables into memory.
type Extractor struct {
	source     TableSource
	tables     []string
	auditDir   string
	auditStage string
	logger     *zap.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithTables overrides DefaultTables.
func WithTables(tables ...string) ExtractorOption {
	return func(e *Extractor) {
		e.tables = append([]string(nil), tables...)
	}
}

// WithAuditDir sets where the audit file is written. Empty disables it.
func WithAuditDir(dir string) ExtractorOption {
	return func(e *Extractor) {
		e.auditDir = dir
	}
}

// WithAuditStage sets the stage name used in the audit file name.
func WithAuditStage(stage string) ExtractorOption {
	return func(e *Extractor) {
		e.auditStage = stage
	}
}

// WithExtractLogger sets the logger. The default is the global zap logger.
func WithExtractLogger(logger *zap.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor returns an extractor reading from source.
func NewExtractor(source TableSource, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		source:     source,
		tables:     DefaultTables,
		auditStage: "extract",
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.L().Named("extract")
	}
	return e
}

// Extract fetches every configured table. An unreachable source is fatal;
// a table that fails to load is logged and skipped.
func (e *Extractor) Extract(ctx context.Context, runID core.RunID) (*Result, error) {
	start := time.Now()
	e.logger.Info("extraction started", zap.Stringer("run_id", runID), zap.Strings("tables", e.tables))

	if err := e.source.Ping(ctx); err != nil {
		e.logger.Error("source unreachable", zap.Error(err))
		return nil, core.NewError(core.KindConnectivity, "extract", "ping", err)
	}

	res := &Result{
		Tables:  make(map[string]*core.RawTable, len(e.tables)),
		Skipped: make(map[string]error),
	}
	for _, name := range e.tables {
		table, err := e.fetch(ctx, name)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			e.logger.Warn("table skipped", zap.String("table", name), zap.Error(err))
			res.Skipped[name] = core.NewError(core.KindPartial, "extract", "fetch_"+name, err)
			continue
		}

		entry := TableAudit{
			Table:      name,
			Rows:       table.Len(),
			NullValues: table.NullCount(),
			Duplicates: table.DuplicateCount(),
		}
		res.Tables[name] = table
		res.Audit = append(res.Audit, entry)
		e.logger.Info("table extracted",
			zap.String("table", name),
			zap.Int("rows", entry.Rows),
			zap.Int64("null_values", entry.NullValues),
			zap.Int64("duplicates", entry.Duplicates))
	}

	if len(res.Audit) == 0 {
		e.logger.Error("no table could be extracted")
		return res, nil
	}

	if e.auditDir != "" {
		rows := make([]core.Record, len(res.Audit))
		for i, a := range res.Audit {
			rows[i] = a.Record()
		}
		path, err := audit.WriteCSV(ctx, e.auditDir, e.auditStage, runID, AuditColumns, rows)
		if err != nil {
			e.logger.Error("audit write failed", zap.Error(err))
			return nil, core.NewError(core.KindWrite, "extract", "write_audit", err)
		}
		res.AuditPath = path
		e.logger.Info("audit written", zap.String("path", path))
	}

	e.logger.Info("extraction finished",
		zap.Int("tables", len(res.Tables)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

// columnLister is implemented by readers that know their columns before
// the first row.
type columnLister interface {
	Columns() []string
}

func (e *Extractor) fetch(ctx context.Context, name string) (*core.RawTable, error) {
	src, err := e.source.OpenTable(ctx, name)
	if err != nil {
		return nil, err
	}

	var columns []string
	if cl, ok := src.(columnLister); ok {
		columns = cl.Columns()
	}
	table := core.NewRawTable(name, columns)

	p, err := reviewetl.NewPipeline().From(src).To(table).Build()
	if err != nil {
		src.Close()
		return nil, err
	}
	stats, err := p.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if stats.Skipped > 0 {
		e.logger.Warn("empty rows ignored", zap.String("table", name), zap.Int64("rows", stats.Skipped))
	}
	return table, nil
}
