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
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aaronlmathis/reviewetl/core"
)

type fakeAdmin struct {
	statements []string
	err        error
}

func (f *fakeAdmin) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.statements = append(f.statements, query)
	return nil, f.err
}

type fakeObjects struct {
	objects map[string]string
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeObjects) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return &s3.ListObjectsV2Output{}, nil
}

// lazyConnector returns a pool that never dials unless a statement is run.
func lazyConnector(t *testing.T) Connector {
	return func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open("postgres", "postgres://etl@127.0.0.1:1/shop?sslmode=disable")
		require.NoError(t, err)
		return db, nil
	}
}

func TestValidateDatabaseName(t *testing.T) {
	for _, name := range []string{"shop", "reviews_2025", "_tmp"} {
		assert.NoError(t, ValidateDatabaseName(name), name)
	}
	for _, name := range []string{"", "1shop", "shop; DROP DATABASE postgres", "my-db", strings.Repeat("a", 64)} {
		err := ValidateDatabaseName(name)
		require.Error(t, err, name)
		assert.Equal(t, core.KindConfig, core.KindOf(err))
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "raw/review_images.csv", ObjectKey("review_images"))
}

func TestRun_InvalidNameTouchesNothing(t *testing.T) {
	admin := &fakeAdmin{}
	b := New(admin, lazyConnector(t), &fakeObjects{}, "reviews", "shop;--", WithBootstrapLogger(zap.NewNop()))

	_, err := b.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, admin.statements)
}

func TestRun_CreateFailureIsFatal(t *testing.T) {
	admin := &fakeAdmin{err: errors.New("permission denied to create database")}
	b := New(admin, lazyConnector(t), &fakeObjects{}, "reviews", "shop", WithBootstrapLogger(zap.NewNop()))

	_, err := b.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, core.KindWrite, core.KindOf(err))
	assert.Equal(t, []string{`DROP DATABASE IF EXISTS "shop"`}, admin.statements)
}

func TestRun_ConnectFailureIsFatal(t *testing.T) {
	admin := &fakeAdmin{}
	connect := func(ctx context.Context) (*sql.DB, error) { return nil, errors.New("connection refused") }
	b := New(admin, connect, &fakeObjects{}, "reviews", "shop", WithBootstrapLogger(zap.NewNop()))

	_, err := b.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, core.KindConnectivity, core.KindOf(err))
	assert.Equal(t, []string{`DROP DATABASE IF EXISTS "shop"`, `CREATE DATABASE "shop"`}, admin.statements)
}

func TestRun_MissingAndEmptyObjectsAreSkipped(t *testing.T) {
	admin := &fakeAdmin{}
	objects := &fakeObjects{objects: map[string]string{
		"raw/buyer.csv": "",
	}}
	b := New(admin, lazyConnector(t), objects, "reviews", "shop",
		WithImportTables(core.TableBuyer, core.TableReview),
		WithBootstrapLogger(zap.NewNop()))

	report, err := b.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Tables, 2)

	assert.Equal(t, StatusEmpty, report.Tables[0].Status)
	assert.Equal(t, "raw/buyer.csv", report.Tables[0].Key)

	assert.Equal(t, StatusMissing, report.Tables[1].Status)
	assert.Equal(t, "raw/review.csv", report.Tables[1].Key)
	assert.Error(t, report.Tables[1].Err)
	assert.Equal(t, 0, report.Imported())
}
