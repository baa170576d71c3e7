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
	"database/sql"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aaronlmathis/reviewetl/core"
	"github.com/aaronlmathis/reviewetl/readers"
	"github.com/aaronlmathis/reviewetl/staging"
)

// TableSource opens full scans of named tables.
type TableSource interface {
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
	// OpenTable returns a reader over every row of table.
	OpenTable(ctx context.Context, table string) (core.DataSource, error)
}

// PostgresSource reads tables with SELECT * over a shared pool.
type PostgresSource struct {
	DB           *sql.DB
	QueryTimeout time.Duration
}

func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *PostgresSource) OpenTable(ctx context.Context, table string) (core.DataSource, error) {
	return readers.NewPostgresReader(ctx,
		readers.WithPostgresDB(s.DB),
		readers.WithPostgresTable(table),
		readers.WithPostgresQueryTimeout(s.QueryTimeout),
	)
}

// BronzeSource replays the raw rows staged for one run. Each document's
// data field becomes a record.
type BronzeSource struct {
	Client   *mongo.Client
	Database string
	RunID    core.RunID
}

func (s *BronzeSource) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx, readpref.Primary())
}

func (s *BronzeSource) OpenTable(ctx context.Context, table string) (core.DataSource, error) {
	reader, err := readers.NewMongoReader(
		readers.WithMongoClient(s.Client),
		readers.WithMongoDB(s.Database),
		readers.WithMongoCollection(staging.CollectionName(table)),
		readers.WithMongoFilter(bson.M{"run_id": string(s.RunID)}),
		readers.WithMongoProjection(bson.M{"data": 1}),
		readers.WithMongoSort(bson.D{{Key: "$natural", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	return &dataUnwrapper{src: reader}, nil
}

// dataUnwrapper yields the data sub-document of each staged document.
type dataUnwrapper struct {
	src core.DataSource
}

func (u *dataUnwrapper) Read(ctx context.Context) (core.Record, error) {
	doc, err := u.src.Read(ctx)
	if err != nil {
		return nil, err
	}
	return UnwrapData(doc)
}

func (u *dataUnwrapper) Close() error { return u.src.Close() }

// UnwrapData returns the data field of a staged document as a record.
func UnwrapData(doc core.Record) (core.Record, error) {
	switch data := doc["data"].(type) {
	case map[string]interface{}:
		return core.Record(data), nil
	case core.Record:
		return data, nil
	default:
		return nil, fmt.Errorf("staged document has no data object (got %T)", doc["data"])
	}
}
