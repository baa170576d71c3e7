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

// Raw table and column names used by the review join.
const (
	TableBuyer          = "buyer"
	TableSubscription   = "subscription"
	TableProduct        = "product"
	TableOrders         = "orders"
	TableReview         = "review"
	TableReviewImages   = "review_images"
	TableProductReviews = "product_reviews"
)

// RejectReason is the reason code written to the reject ledger.
type RejectReason string

const (
	ReasonEmptyReview     RejectReason = "empty_review_raw"
	ReasonInvalidRating   RejectReason = "invalid_rating"
	ReasonMissingReviewID RejectReason = "missing_review_id"
	ReasonDuplicateReview RejectReason = "duplicate_review_id"
)

// CleanColumns is the exact column set, in file order, of the clean dataset.
var CleanColumns = []string{
	"review_id",
	"buyer_id",
	"product_id",
	"review_text",
	"rating",
	"has_image",
	"has_subscription",
	"verified_buyer",
}

// RejectColumns is the column set of the reject ledger.
var RejectColumns = []string{"review_id", "reject_reason"}

// ReviewRecord is one review row after the join and text normalization,
// before validation.
type ReviewRecord struct {
	ReviewID        string
	BuyerID         string
	ProductID       *string
	ReviewText      string
	RawRating       interface{}
	HasImage        bool
	HasSubscription bool
	VerifiedBuyer   bool
}

// CleanReviewRecord is an accepted review with every field coerced.
type CleanReviewRecord struct {
	ReviewID        string
	BuyerID         string
	ProductID       *string
	ReviewText      string
	Rating          int
	HasImage        bool
	HasSubscription bool
	VerifiedBuyer   bool
}

// Record converts the row to a Record keyed by CleanColumns.
func (c CleanReviewRecord) Record() Record {
	var product interface{}
	if c.ProductID != nil {
		product = *c.ProductID
	}
	return Record{
		"review_id":        c.ReviewID,
		"buyer_id":         c.BuyerID,
		"product_id":       product,
		"review_text":      c.ReviewText,
		"rating":           int64(c.Rating),
		"has_image":        c.HasImage,
		"has_subscription": c.HasSubscription,
		"verified_buyer":   c.VerifiedBuyer,
	}
}

// RejectRecord is one reject ledger row.
type RejectRecord struct {
	ReviewID string
	Reason   RejectReason
}

// Record converts the row to a Record keyed by RejectColumns.
func (r RejectRecord) Record() Record {
	return Record{"review_id": r.ReviewID, "reject_reason": string(r.Reason)}
}

// CleanDataset is the accepted side of the transform partition.
type CleanDataset struct {
	Rows []CleanReviewRecord
}

func (d *CleanDataset) Columns() []string { return append([]string(nil), CleanColumns...) }

func (d *CleanDataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

func (d *CleanDataset) Records() []Record {
	out := make([]Record, 0, d.Len())
	for _, r := range d.Rows {
		out = append(out, r.Record())
	}
	return out
}

// RejectDataset is the rejected side of the transform partition.
type RejectDataset struct {
	Rows []RejectRecord
}

func (d *RejectDataset) Columns() []string { return append([]string(nil), RejectColumns...) }

func (d *RejectDataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

func (d *RejectDataset) Records() []Record {
	out := make([]Record, 0, d.Len())
	for _, r := range d.Rows {
		out = append(out, r.Record())
	}
	return out
}

// Reasons returns the distinct reasons recorded for a review id.
func (d *RejectDataset) Reasons(reviewID string) []RejectReason {
	var out []RejectReason
	for _, r := range d.Rows {
		if r.ReviewID == reviewID {
			out = append(out, r.Reason)
		}
	}
	return out
}
