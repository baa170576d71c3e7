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

package staging

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aaronlmathis/reviewetl/core"
)

// CollectionPrefix names the bronze layer collections.
const CollectionPrefix = "bronze_"

// CollectionName returns the bronze collection for a source table.
func CollectionName(table string) string {
	return CollectionPrefix + table
}

// DocumentStore replaces the documents of one run in a collection.
// *writers.MongoWriter satisfies it.
type DocumentStore interface {
	ReplaceRun(ctx context.Context, collection, runID string, docs []interface{}) (int, error)
}

// Document is a raw row as staged in the bronze layer.
type Document struct {
	ID          string                 `bson:"_id"`
	RunID       string                 `bson:"run_id"`
	SourceTable string                 `bson:"source_table"`
	ExtractedAt time.Time              `bson:"extracted_at"`
	Data        map[string]interface{} `bson:"data"`
}

var bronzeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("reviewetl/bronze"))

// DocumentID derives a stable id from the run, table and row position, so
// replaying a run produces the same ids.
func DocumentID(runID core.RunID, table string, row int) string {
	return uuid.NewSHA1(bronzeNamespace, []byte(fmt.Sprintf("%s/%s/%d", runID, table, row))).String()
}

// BuildDocument wraps row for staging. extractedAt is stored in UTC.
func BuildDocument(runID core.RunID, table string, extractedAt time.Time, row int, record core.Record) Document {
	return Document{
		ID:          DocumentID(runID, table, row),
		RunID:       string(runID),
		SourceTable: table,
		ExtractedAt: extractedAt.UTC(),
		Data:        map[string]interface{}(record.Clone()),
	}
}

// CollectionSummary reports what happened to one table.
type CollectionSummary struct {
	Table      string
	Collection string
	Documents  int
	Skipped    bool
}

// Summary is the result of one staging run.
type Summary struct {
	RunID       core.RunID
	Collections []CollectionSummary
}

// Documents returns the total number of staged documents.
func (s *Summary) Documents() int {
	n := 0
	for _, c := range s.Collections {
		n += c.Documents
	}
	return n
}

// RefetchFunc produces the raw tables when the caller has none.
type RefetchFunc func(ctx context.Context) (map[string]*core.RawTable, error)

// Stager persists raw tables into the bronze layer.
type Stager struct {
	store   DocumentStore
	refetch RefetchFunc
	now     func() time.Time
	logger  *zap.Logger
}

// StagerOption configures a Stager.
type StagerOption func(*Stager)

// WithRefetch sets how tables are obtained when Stage receives none.
func WithRefetch(fn RefetchFunc) StagerOption {
	return func(s *Stager) {
		s.refetch = fn
	}
}

// WithStagingClock sets the time source for the ingestion timestamp.
func WithStagingClock(now func() time.Time) StagerOption {
	return func(s *Stager) {
		s.now = now
	}
}

// WithStagingLogger sets the logger. The default is the global zap logger.
func WithStagingLogger(logger *zap.Logger) StagerOption {
	return func(s *Stager) {
		s.logger = logger
	}
}

// NewStager returns a stager writing bronze documents to store.
func NewStager(store DocumentStore, opts ...StagerOption) *Stager {
	s := &Stager{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.L().Named("staging")
	}
	return s
}

// Stage writes every non-empty table to its bronze collection, replacing
// documents already staged under runID. A nil tables map triggers the
// refetch function. Any write failure aborts staging.
func (s *Stager) Stage(ctx context.Context, runID core.RunID, tables map[string]*core.RawTable) (*Summary, error) {
	if tables == nil {
		if s.refetch == nil {
			return nil, core.NewError(core.KindConfig, "staging", "refetch", fmt.Errorf("no tables supplied and no refetch configured"))
		}
		s.logger.Info("no tables supplied, fetching from source")
		var err error
		if tables, err = s.refetch(ctx); err != nil {
			return nil, err
		}
	}
	if len(tables) == 0 {
		return nil, core.NewError(core.KindNoData, "staging", "stage", fmt.Errorf("no tables to stage"))
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	extractedAt := s.now().UTC()
	summary := &Summary{RunID: runID}
	for _, name := range names {
		table := tables[name]
		coll := CollectionName(name)
		if table == nil || table.Len() == 0 {
			s.logger.Warn("empty table skipped", zap.String("table", name))
			summary.Collections = append(summary.Collections, CollectionSummary{Table: name, Collection: coll, Skipped: true})
			continue
		}

		docs := make([]interface{}, 0, table.Len())
		for i, rec := range table.Records() {
			docs = append(docs, BuildDocument(runID, name, extractedAt, i, rec))
		}

		n, err := s.store.ReplaceRun(ctx, coll, string(runID), docs)
		if err != nil {
			s.logger.Error("staging write failed", zap.String("collection", coll), zap.Error(err))
			return nil, core.NewError(core.KindWrite, "staging", "write_"+coll, err)
		}
		s.logger.Info("collection staged", zap.String("collection", coll), zap.Int("documents", n))
		summary.Collections = append(summary.Collections, CollectionSummary{Table: name, Collection: coll, Documents: n})
	}

	s.logger.Info("staging finished", zap.Stringer("run_id", runID), zap.Int("documents", summary.Documents()))
	return summary, nil
}
