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
	"fmt"

	"github.com/aaronlmathis/reviewetl/core"
)

// CountAggregator counts records.
type CountAggregator struct {
	Output string
	count  int64
}

func (c *CountAggregator) Add(ctx context.Context, record core.Record) error {
	c.count++
	return nil
}

func (c *CountAggregator) Result() (core.Record, error) {
	return core.Record{outputName(c.Output, "count"): c.count}, nil
}

func (c *CountAggregator) Reset() {
	c.count = 0
}

// AvgAggregator calculates the mean of numeric values of Field. The result
// is nil when no numeric value was seen.
type AvgAggregator struct {
	Field  string
	Output string
	sum    float64
	count  int
}

func (a *AvgAggregator) Add(ctx context.Context, record core.Record) error {
	if value, exists := record[a.Field]; exists {
		if num, err := convertToFloat64(value); err == nil {
			a.sum += num
			a.count++
		}
	}
	return nil
}

func (a *AvgAggregator) Result() (core.Record, error) {
	key := outputName(a.Output, "avg")
	if a.count == 0 {
		return core.Record{key: nil}, nil
	}
	return core.Record{key: a.sum / float64(a.count)}, nil
}

func (a *AvgAggregator) Reset() {
	a.sum = 0
	a.count = 0
}

// CountTrueAggregator counts records whose Field is boolean true.
type CountTrueAggregator struct {
	Field  string
	Output string
	count  int64
}

func (c *CountTrueAggregator) Add(ctx context.Context, record core.Record) error {
	if v, ok := record[c.Field].(bool); ok && v {
		c.count++
	}
	return nil
}

func (c *CountTrueAggregator) Result() (core.Record, error) {
	return core.Record{outputName(c.Output, "count_true"): c.count}, nil
}

func (c *CountTrueAggregator) Reset() {
	c.count = 0
}

func outputName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func convertToFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}
