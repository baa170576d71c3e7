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

package load

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"go.uber.org/zap"

	"github.com/aaronlmathis/reviewetl/aggregate"
	"github.com/aaronlmathis/reviewetl/audit"
	"github.com/aaronlmathis/reviewetl/core"
	"github.com/aaronlmathis/reviewetl/readers"
	"github.com/aaronlmathis/reviewetl/writers"
)

// ObjectStore uploads finished files. *storage.S3Store satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.ReadSeeker) (string, error)
}

// CleanSchema is the columnar layout of the published clean dataset.
var CleanSchema = arrow.NewSchema([]arrow.Field{
	{Name: "review_id", Type: arrow.BinaryTypes.String},
	{Name: "buyer_id", Type: arrow.BinaryTypes.String},
	{Name: "product_id", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "review_text", Type: arrow.BinaryTypes.String},
	{Name: "rating", Type: arrow.PrimitiveTypes.Int64},
	{Name: "has_image", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "has_subscription", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "verified_buyer", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

// CleanFileName returns reviews_cleaned_<runID>.parquet.
func CleanFileName(runID core.RunID) string {
	return fmt.Sprintf("reviews_cleaned_%s.parquet", runID)
}

// RejectsFileName returns reviews_rejects_<runID>.csv.
func RejectsFileName(runID core.RunID) string {
	return fmt.Sprintf("reviews_rejects_%s.csv", runID)
}

// Result describes a publish.
type Result struct {
	LocalPath   string
	RemoteURI   string // empty when the upload failed or no store is set
	RejectsPath string // empty when there were no rejects
	RejectsURI  string
	AuditPath   string
	Audit       LoadAudit
}

// Publisher writes the clean dataset and the reject ledger to the local
// datalake and uploads both.
type Publisher struct {
	store       ObjectStore
	cleanedDir  string
	rejectsDir  string
	compression compress.Compression
	now         func() time.Time
	logger      *zap.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithStore sets the object store. Without one, uploads are skipped and
// reported as failed.
func WithStore(store ObjectStore) PublisherOption {
	return func(p *Publisher) {
		p.store = store
	}
}

// WithCleanedDir sets where the Parquet file and the load audit are written.
func WithCleanedDir(dir string) PublisherOption {
	return func(p *Publisher) {
		p.cleanedDir = dir
	}
}

// WithRejectsDir sets where the reject ledger is written.
func WithRejectsDir(dir string) PublisherOption {
	return func(p *Publisher) {
		p.rejectsDir = dir
	}
}

// WithCompression sets the Parquet codec. The default is Snappy.
func WithCompression(c compress.Compression) PublisherOption {
	return func(p *Publisher) {
		p.compression = c
	}
}

// WithPublishLogger sets the logger. The default is the global zap logger.
func WithPublishLogger(logger *zap.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithPublishClock sets the time source for the audit timestamp.
func WithPublishClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher returns a publisher writing under datalake/ by default.
func NewPublisher(opts ...PublisherOption) *Publisher {
	p := &Publisher{
		cleanedDir:  filepath.Join("datalake", "cleaned"),
		rejectsDir:  filepath.Join("datalake", "rejects"),
		compression: compress.Codecs.Snappy,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.L().Named("load")
	}
	return p
}

// Publish writes clean as Parquet and any rejects as CSV, uploads both, and
// records the load audit. An empty clean set or a local write failure is
// fatal; upload failures are logged and leave the matching URI empty.
func (p *Publisher) Publish(ctx context.Context, runID core.RunID, clean *core.CleanDataset, rejects *core.RejectDataset) (*Result, error) {
	if clean.Len() == 0 {
		p.logger.Error("clean dataset is empty, nothing to publish")
		return nil, core.NewError(core.KindNoData, "load", "publish", errors.New("clean dataset is empty"))
	}
	if rejects == nil {
		rejects = &core.RejectDataset{}
	}
	start := time.Now()

	name := CleanFileName(runID)
	path := filepath.Join(p.cleanedDir, name)
	records := clean.Records()
	if err := p.writeParquet(ctx, path, records); err != nil {
		p.logger.Error("parquet write failed", zap.String("path", path), zap.Error(err))
		return nil, core.NewError(core.KindWrite, "load", "write_parquet", err)
	}
	p.logger.Info("clean dataset written", zap.String("path", path), zap.Int("rows", len(records)))

	info, err := os.Stat(path)
	if err != nil {
		return nil, core.NewError(core.KindWrite, "load", "stat", err)
	}

	res := &Result{LocalPath: path}
	if rejects.Len() > 0 {
		rejectsName := RejectsFileName(runID)
		res.RejectsPath = filepath.Join(p.rejectsDir, rejectsName)
		if err := writers.WriteDatasetCSV(ctx, res.RejectsPath, rejects); err != nil {
			p.logger.Error("reject ledger write failed", zap.String("path", res.RejectsPath), zap.Error(err))
			return nil, core.NewError(core.KindWrite, "load", "write_rejects", err)
		}
		p.logger.Warn("rejected rows written", zap.Int("rejects", rejects.Len()), zap.String("path", res.RejectsPath))
	}

	res.RemoteURI = p.uploadFile(ctx, "cleaned/"+name, path)
	if res.RejectsPath != "" {
		res.RejectsURI = p.uploadFile(ctx, "rejects/"+filepath.Base(res.RejectsPath), res.RejectsPath)
	}

	stats, err := aggregate.Run(ctx, records,
		&aggregate.CountAggregator{Output: "rows_loaded"},
		&aggregate.AvgAggregator{Field: "rating", Output: "avg_rating"},
		&aggregate.CountTrueAggregator{Field: "has_image", Output: "nb_with_images"},
		&aggregate.CountTrueAggregator{Field: "verified_buyer", Output: "nb_verified_buyers"},
	)
	if err != nil {
		return nil, err
	}

	rowsLoaded, _ := stats["rows_loaded"].(int64)
	res.Audit = LoadAudit{
		Timestamp:    p.now().UTC(),
		RowsLoaded:   int(rowsLoaded),
		RowsRejected: rejects.Len(),
		Columns:      clean.Columns(),
		FileName:     name,
		FileSizeMB:   math.Round(float64(info.Size())/(1024*1024)*1000) / 1000,
		S3URI:        res.RemoteURI,
	}
	if v, ok := stats["avg_rating"].(float64); ok {
		res.Audit.AvgRating = &v
	}
	if v, ok := stats["nb_with_images"].(int64); ok {
		res.Audit.NbWithImages = &v
	}
	if v, ok := stats["nb_verified_buyers"].(int64); ok {
		res.Audit.NbVerifiedBuyers = &v
	}

	auditPath, err := audit.WriteCSV(ctx, p.cleanedDir, "load", runID, LoadAuditColumns, []core.Record{res.Audit.Record()})
	if err != nil {
		p.logger.Error("load audit write failed", zap.Error(err))
		return nil, core.NewError(core.KindWrite, "load", "write_audit", err)
	}
	res.AuditPath = auditPath

	p.logger.Info("publish finished",
		zap.String("local_path", res.LocalPath),
		zap.String("s3_uri", res.RemoteURI),
		zap.Int("rows_loaded", res.Audit.RowsLoaded),
		zap.Int("rows_rejected", res.Audit.RowsRejected),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

// writeParquet refuses to replace an existing file and removes its own
// partial output on failure. The written file is read back in full.
func (p *Publisher) writeParquet(ctx context.Context, path string, records []core.Record) (err error) {
	w, err := writers.NewParquetWriter(path,
		writers.WithSchema(CleanSchema),
		writers.WithFieldOrder(core.CleanColumns),
		writers.WithCompression(p.compression),
		writers.WithExclusiveCreate(true),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(path)
		}
	}()

	for _, rec := range records {
		if err := w.Write(ctx, rec); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	r, err := readers.NewParquetReader(path)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	defer r.Close()
	return r.Verify(ctx, core.CleanColumns, int64(len(records)))
}

func (p *Publisher) uploadFile(ctx context.Context, key, path string) string {
	if p.store == nil {
		p.logger.Warn("no object store configured, upload skipped", zap.String("key", key))
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		p.logger.Error("upload failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	defer f.Close()

	uri, err := p.store.Upload(ctx, key, f)
	if err != nil {
		p.logger.Error("upload failed", zap.String("key", key),
			zap.Error(core.NewError(core.KindPublish, "load", "upload", err)))
		return ""
	}
	return uri
}

// LoadAuditColumns is the header of the load audit file.
var LoadAuditColumns = []string{
	"timestamp",
	"rows_loaded",
	"rows_rejected",
	"columns",
	"file_name",
	"file_size_MB",
	"avg_rating",
	"nb_with_images",
	"nb_verified_buyers",
	"s3_uri",
}

// LoadAudit is the single row of the load audit file.
type LoadAudit struct {
	Timestamp        time.Time
	RowsLoaded       int
	RowsRejected     int
	Columns          []string
	FileName         string
	FileSizeMB       float64
	AvgRating        *float64
	NbWithImages     *int64
	NbVerifiedBuyers *int64
	S3URI            string
}

// Record renders the audit row. Columns are joined with '|'; absent
// aggregates and a failed upload are empty cells.
func (a LoadAudit) Record() core.Record {
	rec := core.Record{
		"timestamp":          a.Timestamp,
		"rows_loaded":        a.RowsLoaded,
		"rows_rejected":      a.RowsRejected,
		"columns":            strings.Join(a.Columns, "|"),
		"file_name":          a.FileName,
		"file_size_MB":       a.FileSizeMB,
		"avg_rating":         nil,
		"nb_with_images":     nil,
		"nb_verified_buyers": nil,
		"s3_uri":             nil,
	}
	if a.AvgRating != nil {
		rec["avg_rating"] = *a.AvgRating
	}
	if a.NbWithImages != nil {
		rec["nb_with_images"] = *a.NbWithImages
	}
	if a.NbVerifiedBuyers != nil {
		rec["nb_verified_buyers"] = *a.NbVerifiedBuyers
	}
	if a.S3URI != "" {
		rec["s3_uri"] = a.S3URI
	}
	return rec
}
