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
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoWriterError wraps MongoDB write errors with the collection involved.
type MongoWriterError struct {
	Op         string // delete, insert, validate
	Collection string
	Err        error
}

func (e *MongoWriterError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo writer %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo writer %s: %v", e.Op, e.Err)
}

func (e *MongoWriterError) Unwrap() error {
	return e.Err
}

// MongoWriterStats holds document write statistics.
type MongoWriterStats struct {
	DocumentsInserted  int64
	DocumentsDeleted   int64
	CollectionsWritten int64
	LastWriteTime      time.Time
	WriteDuration      time.Duration
}

// collection is the subset of *mongo.Collection the writer needs.
type collection interface {
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// MongoWriter replaces per-run document sets in a MongoDB database.
type MongoWriter struct {
	collection func(name string) collection
	stats      MongoWriterStats
	mu         sync.Mutex
}

// NewMongoWriter returns a writer for database on a connected client. The
// client stays owned by the caller.
func NewMongoWriter(client *mongo.Client, database string) (*MongoWriter, error) {
	if client == nil {
		return nil, &MongoWriterError{Op: "validate", Err: fmt.Errorf("client is required")}
	}
	if database == "" {
		return nil, &MongoWriterError{Op: "validate", Err: fmt.Errorf("database is required")}
	}
	db := client.Database(database)
	return &MongoWriter{
		collection: func(name string) collection { return db.Collection(name) },
	}, nil
}

// ReplaceRun deletes every document in coll whose run_id equals runID and
// inserts docs in order. It returns the number of documents inserted.
func (w *MongoWriter) ReplaceRun(ctx context.Context, coll, runID string, docs []interface{}) (int, error) {
	if runID == "" {
		return 0, &MongoWriterError{Op: "validate", Collection: coll, Err: fmt.Errorf("run id is required")}
	}
	start := time.Now()
	c := w.collection(coll)

	del, err := c.DeleteMany(ctx, bson.M{"run_id": runID})
	if err != nil {
		return 0, &MongoWriterError{Op: "delete", Collection: coll, Err: err}
	}

	inserted := 0
	if len(docs) > 0 {
		res, err := c.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
		if err != nil {
			return 0, &MongoWriterError{Op: "insert", Collection: coll, Err: err}
		}
		inserted = len(res.InsertedIDs)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if del != nil {
		w.stats.DocumentsDeleted += del.DeletedCount
	}
	w.stats.DocumentsInserted += int64(inserted)
	w.stats.CollectionsWritten++
	w.stats.LastWriteTime = time.Now()
	w.stats.WriteDuration += time.Since(start)
	return inserted, nil
}

// Stats returns a copy of the current write statistics.
func (w *MongoWriter) Stats() MongoWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
