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
	"fmt"
	"sort"
	"strings"

	"github.com/aaronlmathis/reviewetl/core"
)

// SchemaValidator checks that raw tables carry the columns the transform
// joins on. A present table with no rows and no known columns passes, since
// an empty collection has no column information.
type SchemaValidator struct {
	RequiredTables map[string][]string
}

// ReviewSchema returns the tables and columns the review transform reads.
func ReviewSchema() *SchemaValidator {
	return &SchemaValidator{RequiredTables: map[string][]string{
		core.TableReview:         {"review_id", "buyer_id", "r_desc", "rating"},
		core.TableReviewImages:   {"review_id"},
		core.TableOrders:         {"buyer_id"},
		core.TableSubscription:   {"c_id", "end_date"},
		core.TableProductReviews: {"review_id", "p_id"},
	}}
}

// Validate returns a KindSchema error listing every missing table and column.
func (v *SchemaValidator) Validate(tables map[string]*core.RawTable) error {
	names := make([]string, 0, len(v.RequiredTables))
	for name := range v.RequiredTables {
		names = append(names, name)
	}
	sort.Strings(names)

	var gaps []string
	for _, name := range names {
		table, ok := tables[name]
		if !ok || table == nil {
			gaps = append(gaps, fmt.Sprintf("table %s", name))
			continue
		}
		if table.Len() == 0 && len(table.Columns()) == 0 {
			continue
		}
		for _, col := range v.RequiredTables[name] {
			if !table.HasColumn(col) {
				gaps = append(gaps, fmt.Sprintf("column %s.%s", name, col))
			}
		}
	}

	if len(gaps) > 0 {
		return core.NewError(core.KindSchema, "transform", "validate_schema",
			fmt.Errorf("missing %s", strings.Join(gaps, ", ")))
	}
	return nil
}
