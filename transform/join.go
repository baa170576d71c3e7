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

package transform

import (
	"strings"
	"time"

	"github.com/aaronlmathis/reviewetl/core"
)

// KeyString returns the canonical join key for v. Integers of any width
// and integral floats compare equal to their decimal strings. nil and
// blank strings are not keys.
func KeyString(v interface{}) (string, bool) {
	if v == nil {
		return "", false
	}
	s := strings.TrimSpace(formatValue(v))
	if s == "" {
		return "", false
	}
	return s, true
}

// KeySet is the set of join keys found in one column of a table.
type KeySet map[string]struct{}

// NewKeySet collects the keys of column across table. A nil table yields an
// empty set.
func NewKeySet(table *core.RawTable, column string) KeySet {
	set := make(KeySet)
	if table == nil {
		return set
	}
	for _, row := range table.Records() {
		if key, ok := KeyString(row[column]); ok {
			set[key] = struct{}{}
		}
	}
	return set
}

// Has reports whether v's key is in the set.
func (s KeySet) Has(v interface{}) bool {
	key, ok := KeyString(v)
	if !ok {
		return false
	}
	_, found := s[key]
	return found
}

// ProductIndex maps review ids to the first linked product id.
type ProductIndex map[string]string

// NewProductIndex indexes productCol by reviewCol. A nil table yields an
// empty index.
func NewProductIndex(table *core.RawTable, reviewCol, productCol string) ProductIndex {
	idx := make(ProductIndex)
	if table == nil {
		return idx
	}
	for _, row := range table.Records() {
		review, ok := KeyString(row[reviewCol])
		if !ok {
			continue
		}
		product, ok := KeyString(row[productCol])
		if !ok {
			continue
		}
		if _, exists := idx[review]; !exists {
			idx[review] = product
		}
	}
	return idx
}

// Lookup returns the product for reviewID, or nil when none is linked.
func (p ProductIndex) Lookup(reviewID string) *string {
	product, ok := p[reviewID]
	if !ok {
		return nil
	}
	return &product
}

// SubscriptionIndex holds the buyers with at least one subscription ending
// after the reference time.
type SubscriptionIndex struct {
	active KeySet
}

// NewSubscriptionIndex scans buyerCol and endCol of table. Rows whose end
// date is missing or unparseable do not count as active.
func NewSubscriptionIndex(table *core.RawTable, buyerCol, endCol string, now time.Time) *SubscriptionIndex {
	idx := &SubscriptionIndex{active: make(KeySet)}
	if table == nil {
		return idx
	}
	for _, row := range table.Records() {
		buyer, ok := KeyString(row[buyerCol])
		if !ok {
			continue
		}
		end, ok := ParseDate(row[endCol])
		if !ok || !end.After(now) {
			continue
		}
		idx.active[buyer] = struct{}{}
	}
	return idx
}

// Active reports whether buyer has an active subscription.
func (s *SubscriptionIndex) Active(buyer interface{}) bool {
	return s.active.Has(buyer)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate accepts time.Time values and strings in ISO date or timestamp
// form. Strings without a zone are read as UTC.
func ParseDate(v interface{}) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, !d.IsZero()
	case *time.Time:
		if d == nil {
			return time.Time{}, false
		}
		return *d, !d.IsZero()
	case string:
		s := strings.TrimSpace(d)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
