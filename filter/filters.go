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
	"strings"

	"github.com/aaronlmathis/reviewetl/core"
)

// Package filter provides composable record predicates used to route rows
// in the transform engine and to drop blank rows during imports.

// NotNull creates a filter that excludes records where the specified field
// is missing, nil, or a whitespace-only string.
func NotNull(field string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || value == nil {
			return false, nil
		}
		if str, ok := value.(string); ok && strings.TrimSpace(str) == "" {
			return false, nil
		}
		return true, nil
	})
}

// AnyPresent excludes records in which every field is nil.
func AnyPresent() core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, v := range record {
			if v != nil {
				return true, nil
			}
		}
		return false, nil
	})
}

// And passes a record only when every filter passes, evaluated in order.
// The first error stops evaluation.
func And(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, f := range filters {
			ok, err := f.ShouldInclude(ctx, record)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// Custom adapts a plain predicate.
func Custom(predicate func(core.Record) bool) core.Filter {
	return core.FilterFunc(func(_ context.Context, record core.Record) (bool, error) {
		return predicate(record), nil
	})
}
