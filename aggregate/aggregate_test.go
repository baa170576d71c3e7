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

package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/reviewetl/core"
)

func TestRun(t *testing.T) {
	records := []core.Record{
		{"rating": int64(5), "has_image": true, "verified_buyer": true},
		{"rating": int64(4), "has_image": false, "verified_buyer": true},
		{"rating": "n/a", "has_image": nil, "verified_buyer": false},
		{"rating": 3.0},
	}

	got, err := Run(context.Background(), records,
		&CountAggregator{Output: "rows"},
		&AvgAggregator{Field: "rating", Output: "avg_rating"},
		&CountTrueAggregator{Field: "has_image", Output: "nb_with_images"},
		&CountTrueAggregator{Field: "verified_buyer", Output: "nb_verified_buyers"},
	)
	require.NoError(t, err)

	assert.Equal(t, int64(4), got["rows"])
	assert.Equal(t, 4.0, got["avg_rating"])
	assert.Equal(t, int64(1), got["nb_with_images"])
	assert.Equal(t, int64(2), got["nb_verified_buyers"])
}

func TestRun_ResetsBetweenRuns(t *testing.T) {
	count := &CountAggregator{}
	records := []core.Record{{}, {}}

	_, err := Run(context.Background(), records, count)
	require.NoError(t, err)
	got, err := Run(context.Background(), records, count)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got["count"])
}

func TestAvgAggregator_NoValues(t *testing.T) {
	got, err := Run(context.Background(), []core.Record{{"rating": nil}}, &AvgAggregator{Field: "rating"})
	require.NoError(t, err)
	assert.Contains(t, got, "avg")
	assert.Nil(t, got["avg"])
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, []core.Record{{}}, &CountAggregator{})
	assert.ErrorIs(t, err, context.Canceled)
}
