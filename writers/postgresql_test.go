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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/reviewetl/core"
)

func TestNewPostgresWriter_Validation(t *testing.T) {
	_, err := NewPostgresWriter(WithTableName("review"))
	require.Error(t, err)

	var perr *PostgresWriterError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "validate", perr.Op)
}

func TestPostgresWriterOptions(t *testing.T) {
	opts := (&PostgresWriterOptions{}).withDefaults()
	assert.Equal(t, 1000, opts.BatchSize)
	assert.Equal(t, 30*time.Second, opts.QueryTimeout)
	assert.Equal(t, TableAppend, opts.Mode)

	WithReplaceTable()(opts)
	assert.Equal(t, TableReplace, opts.Mode)
	WithCreateTable()(opts)
	assert.Equal(t, TableCreate, opts.Mode)
}

func TestPostgresWriter_SQL(t *testing.T) {
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "review" ("review_id" BIGINT, "r_desc" TEXT)`,
		createTableSQL("review", []string{"review_id", "r_desc"}, []string{"BIGINT", "TEXT"}))

	assert.Equal(t,
		`INSERT INTO "product_reviews" ("review_id", "p_id") VALUES ($1, $2)`,
		insertSQL("product_reviews", []string{"review_id", "p_id"}))
}

func TestInferColumnTypes(t *testing.T) {
	records := []core.Record{
		{"review_id": 1, "r_desc": nil, "rating": 5, "end_date": "2099-01-01", "mixed": 1, "flag": true},
		{"review_id": 2, "r_desc": "Good", "rating": 4.5, "end_date": nil, "mixed": "x", "flag": false},
	}
	columns := []string{"review_id", "r_desc", "rating", "end_date", "mixed", "flag", "absent"}

	got := inferColumnTypes(columns, records)
	assert.Equal(t, []string{"BIGINT", "TEXT", "DOUBLE PRECISION", "TEXT", "TEXT", "BOOLEAN", "TEXT"}, got)
}

func TestConvertValue(t *testing.T) {
	assert.Nil(t, convertValue(nil))
	assert.Equal(t, int64(5), convertValue(5))
	assert.Equal(t, int64(7), convertValue(uint16(7)))
	assert.Equal(t, "A", convertValue("A"))
	assert.Equal(t, float64(1.5), convertValue(float32(1.5)))
}
