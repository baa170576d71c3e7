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

// Aggregator defines the interface for data aggregation operations.
// Aggregators process multiple records and produce a summary result.
type Aggregator interface {
	// Add processes a record for aggregation.
	Add(ctx context.Context, record core.Record) error
	// Result returns the aggregated result as a Record.
	Result() (core.Record, error)
	// Reset clears the aggregator state for reuse.
	Reset()
}

// Run feeds every record to each aggregator and merges their results into
// one record. Later aggregators win on key collisions.
func Run(ctx context.Context, records []core.Record, aggs ...Aggregator) (core.Record, error) {
	for _, agg := range aggs {
		agg.Reset()
	}
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, agg := range aggs {
			if err := agg.Add(ctx, record); err != nil {
				return nil, fmt.Errorf("aggregate: %w", err)
			}
		}
	}

	out := make(core.Record)
	for _, agg := range aggs {
		res, err := agg.Result()
		if err != nil {
			return nil, fmt.Errorf("aggregate result: %w", err)
		}
		for k, v := range res {
			out[k] = v
		}
	}
	return out, nil
}
