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

package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawTable_WriteDerivesColumns(t *testing.T) {
	table := NewRawTable("review", nil)
	ctx := context.Background()

	require.NoError(t, table.Write(ctx, Record{"rating": 5, "review_id": 1}))
	require.NoError(t, table.Write(ctx, Record{"rating": 4, "review_id": 2}))

	assert.Equal(t, []string{"rating", "review_id"}, table.Columns())
	assert.Equal(t, 2, table.Len())
	assert.True(t, table.HasColumn("review_id"))
	assert.False(t, table.HasColumn("buyer_id"))
}

func TestRawTable_WriteClonesRecord(t *testing.T) {
	table := NewRawTable("orders", []string{"buyer_id"})
	rec := Record{"buyer_id": "A"}
	require.NoError(t, table.Write(context.Background(), rec))

	rec["buyer_id"] = "B"
	assert.Equal(t, "A", table.Records()[0]["buyer_id"])
}

func TestRawTable_NullAndDuplicateCounts(t *testing.T) {
	table := NewRawTableFromRecords("review", []string{"review_id", "r_desc"}, []Record{
		{"review_id": 1, "r_desc": "Good"},
		{"review_id": 1, "r_desc": "Good"},
		{"review_id": 2, "r_desc": nil},
		{"review_id": 3},
		{"review_id": "1", "r_desc": "Good"},
	})

	assert.Equal(t, int64(2), table.NullCount())
	// The string "1" is not the same cell as the integer 1.
	assert.Equal(t, int64(1), table.DuplicateCount())
}

func TestRawTable_Empty(t *testing.T) {
	table := NewRawTable("buyer", []string{"buyer_id"})
	assert.Equal(t, 0, table.Len())
	assert.Zero(t, table.NullCount())
	assert.Zero(t, table.DuplicateCount())
	assert.Empty(t, table.Records())
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		kind  ErrorKind
		fatal bool
	}{
		{KindConfig, true},
		{KindConnectivity, true},
		{KindPartial, false},
		{KindWrite, true},
		{KindPublish, false},
		{KindSchema, true},
		{KindNoData, true},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.fatal, tt.kind.Fatal())
		})
	}
}

func TestError_WrapAndClassify(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("run: %w", NewError(KindConnectivity, "extract", "ping", base))

	assert.Equal(t, KindConnectivity, KindOf(err))
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "extract ping (connectivity): connection refused")

	assert.Equal(t, KindUnknown, KindOf(base))
	assert.True(t, IsFatal(base))
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(NewError(KindPublish, "load", "upload", base)))
}

func TestRunID(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("EST", -5*3600))
	id := NewRunID(ts)
	assert.Equal(t, RunID("20250304_100607"), id)

	parsed, err := ParseRunID("20250304_100607")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseRunID("2025-03-04")
	assert.Error(t, err)
}

func TestCleanReviewRecord_Record(t *testing.T) {
	p := "P1"
	withProduct := CleanReviewRecord{ReviewID: "1", BuyerID: "A", ProductID: &p, ReviewText: "Good", Rating: 5, HasImage: true}
	rec := withProduct.Record()
	assert.Len(t, rec, len(CleanColumns))
	for _, col := range CleanColumns {
		assert.Contains(t, rec, col)
	}
	assert.Equal(t, "P1", rec["product_id"])
	assert.Equal(t, int64(5), rec["rating"])
	assert.Equal(t, true, rec["has_image"])

	noProduct := CleanReviewRecord{ReviewID: "2", BuyerID: "B", ReviewText: "ok", Rating: 3}
	rec = noProduct.Record()
	assert.Contains(t, rec, "product_id")
	assert.Nil(t, rec["product_id"])
}

func TestDatasets(t *testing.T) {
	var nilClean *CleanDataset
	assert.Equal(t, 0, nilClean.Len())

	rejects := &RejectDataset{Rows: []RejectRecord{
		{ReviewID: "3", Reason: ReasonEmptyReview},
		{ReviewID: "3", Reason: ReasonInvalidRating},
		{ReviewID: "4", Reason: ReasonInvalidRating},
	}}
	assert.Equal(t, 3, rejects.Len())
	assert.Equal(t, []string{"review_id", "reject_reason"}, rejects.Columns())
	assert.Equal(t, []RejectReason{ReasonEmptyReview, ReasonInvalidRating}, rejects.Reasons("3"))
	assert.Equal(t, "invalid_rating", rejects.Records()[2]["reject_reason"])

	var _ Dataset = rejects
	var _ Dataset = &CleanDataset{}
}
