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

package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/reviewetl/core"
)

func include(t *testing.T, f core.Filter, r core.Record) bool {
	t.Helper()
	ok, err := f.ShouldInclude(context.Background(), r)
	require.NoError(t, err)
	return ok
}

func TestNotNull(t *testing.T) {
	f := NotNull("review_id")
	tests := []struct {
		name   string
		record core.Record
		want   bool
	}{
		{"present", core.Record{"review_id": 1}, true},
		{"zero", core.Record{"review_id": 0}, true},
		{"missing", core.Record{}, false},
		{"nil", core.Record{"review_id": nil}, false},
		{"blank", core.Record{"review_id": "  "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, include(t, f, tt.record))
		})
	}
}

func TestAnyPresent(t *testing.T) {
	assert.False(t, include(t, AnyPresent(), core.Record{"a": nil, "b": nil}))
	assert.False(t, include(t, AnyPresent(), core.Record{}))
	assert.True(t, include(t, AnyPresent(), core.Record{"a": nil, "b": ""}))
}

func TestCombinators(t *testing.T) {
	hasBuyer := NotNull("buyer_id")
	positive := Custom(func(r core.Record) bool {
		n, ok := r["rating"].(int)
		return ok && n > 0
	})

	r := core.Record{"buyer_id": "A", "rating": 3}
	assert.True(t, include(t, And(hasBuyer, positive), r))
	assert.False(t, include(t, And(hasBuyer, positive), core.Record{"rating": 3}))
	assert.False(t, include(t, And(hasBuyer, positive), core.Record{"buyer_id": "A", "rating": 0}))
	assert.True(t, include(t, And(), r))
}

func TestAnd_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	failing := core.FilterFunc(func(ctx context.Context, r core.Record) (bool, error) { return false, boom })

	_, err := And(NotNull("x"), failing).ShouldInclude(context.Background(), core.Record{"x": 1})
	assert.ErrorIs(t, err, boom)

	_, err = And(NotNull("x"), failing).ShouldInclude(context.Background(), core.Record{})
	assert.NoError(t, err, "evaluation stops at the first failing filter")
}
