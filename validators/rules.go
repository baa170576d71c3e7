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

package validators

import (
	"math"
	"strconv"
	"strings"

	"github.com/aaronlmathis/reviewetl/core"
)

// Package validators holds the business rules a joined review must pass and
// the schema check run before any row is evaluated.

// Rule is one independently checkable constraint on a joined review.
type Rule interface {
	// Reason is the reject code recorded when the rule fails.
	Reason() core.RejectReason
	// Check reports whether the record satisfies the rule.
	Check(record core.ReviewRecord) bool
}

// EmptyReviewRule fails when the normalized review text is empty or
// whitespace-only.
type EmptyReviewRule struct{}

func (EmptyReviewRule) Reason() core.RejectReason { return core.ReasonEmptyReview }

func (EmptyReviewRule) Check(record core.ReviewRecord) bool {
	return strings.TrimSpace(record.ReviewText) != ""
}

// RatingRangeRule fails when the raw rating is not an integer in [Min, Max].
type RatingRangeRule struct {
	Min int
	Max int
}

func (RatingRangeRule) Reason() core.RejectReason { return core.ReasonInvalidRating }

func (r RatingRangeRule) Check(record core.ReviewRecord) bool {
	rating, ok := ParseRating(record.RawRating)
	return ok && rating >= r.Min && rating <= r.Max
}

// DefaultRules returns the review rules in precedence order.
func DefaultRules() []Rule {
	return []Rule{
		EmptyReviewRule{},
		RatingRangeRule{Min: 1, Max: 5},
	}
}

// ParseRating converts a raw rating to an int. It accepts integer types,
// floats with no fractional part and numeric strings or byte slices of either
// form. nil, bool, NaN, fractional and non-numeric values are rejected.
func ParseRating(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return intFromInt64(n)
	case uint:
		return intFromUint64(uint64(n))
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return intFromUint64(uint64(n))
	case uint64:
		return intFromUint64(n)
	case float32:
		return intFromFloat(float64(n))
	case float64:
		return intFromFloat(n)
	case string:
		return intFromString(n)
	case []byte:
		return intFromString(string(n))
	default:
		return 0, false
	}
}

func intFromString(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return intFromInt64(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return intFromFloat(f)
	}
	return 0, false
}

func intFromInt64(n int64) (int, bool) {
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, false
	}
	return int(n), true
}

func intFromUint64(n uint64) (int, bool) {
	if n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

func intFromFloat(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
