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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeCollection stores bson.M documents in memory.
type fakeCollection struct {
	docs      []bson.M
	insertErr error
}

func (f *fakeCollection) DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	runID := filter.(bson.M)["run_id"]
	kept := f.docs[:0]
	var deleted int64
	for _, d := range f.docs {
		if d["run_id"] == runID {
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	f.docs = kept
	return &mongo.DeleteResult{DeletedCount: deleted}, nil
}

func (f *fakeCollection) InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	ids := make([]interface{}, 0, len(documents))
	for i, d := range documents {
		f.docs = append(f.docs, d.(bson.M))
		ids = append(ids, i)
	}
	return &mongo.InsertManyResult{InsertedIDs: ids}, nil
}

func newFakeMongoWriter(colls map[string]*fakeCollection) *MongoWriter {
	return &MongoWriter{collection: func(name string) collection {
		c, ok := colls[name]
		if !ok {
			c = &fakeCollection{}
			colls[name] = c
		}
		return c
	}}
}

func TestMongoWriter_ReplaceRunIsIdempotent(t *testing.T) {
	colls := map[string]*fakeCollection{
		"bronze_review": {docs: []bson.M{{"run_id": "20240101_000000", "n": 0}}},
	}
	w := newFakeMongoWriter(colls)
	ctx := context.Background()
	docs := []interface{}{
		bson.M{"run_id": "20250101_120000", "n": 1},
		bson.M{"run_id": "20250101_120000", "n": 2},
	}

	n, err := w.ReplaceRun(ctx, "bronze_review", "20250101_120000", docs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = w.ReplaceRun(ctx, "bronze_review", "20250101_120000", docs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Len(t, colls["bronze_review"].docs, 3)

	stats := w.Stats()
	assert.Equal(t, int64(4), stats.DocumentsInserted)
	assert.Equal(t, int64(2), stats.DocumentsDeleted)
	assert.Equal(t, int64(2), stats.CollectionsWritten)
}

func TestMongoWriter_InsertFailure(t *testing.T) {
	colls := map[string]*fakeCollection{"bronze_orders": {insertErr: errors.New("not primary")}}
	w := newFakeMongoWriter(colls)

	_, err := w.ReplaceRun(context.Background(), "bronze_orders", "20250101_120000", []interface{}{bson.M{"run_id": "20250101_120000"}})
	require.Error(t, err)

	var merr *MongoWriterError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "insert", merr.Op)
	assert.Equal(t, "bronze_orders", merr.Collection)
	assert.Contains(t, err.Error(), "not primary")
}

func TestMongoWriter_Validation(t *testing.T) {
	_, err := NewMongoWriter(nil, "reviews")
	assert.Error(t, err)

	w := newFakeMongoWriter(map[string]*fakeCollection{})
	_, err = w.ReplaceRun(context.Background(), "bronze_buyer", "", nil)
	assert.Error(t, err)
}
