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
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aaronlmathis/reviewetl/core"
	"github.com/aaronlmathis/reviewetl/filter"
	"github.com/aaronlmathis/reviewetl/validators"
)

// RejectMode controls how many reject rows a multi-violation review yields.
type RejectMode int

const (
	// AllViolations emits one reject row per failing rule, in rule order.
	AllViolations RejectMode = iota
	// FirstViolation emits only the first failing rule.
	FirstViolation
)

func (m RejectMode) String() string {
	if m == FirstViolation {
		return "first_violation"
	}
	return "all_violations"
}

const (
	colReviewID = "review_id"
	colBuyerID  = "buyer_id"
	colDesc     = "r_desc"
	colRating   = "rating"
	colProduct  = "p_id"
	colCustomer = "c_id"
	colEndDate  = "end_date"
)

// Engine joins the raw review tables and partitions the result into clean
// and rejected rows. An Engine holds no per-run state and may be reused.
type Engine struct {
	rules       []validators.Rule
	mode        RejectMode
	now         func() time.Time
	normalizers []core.Transformer
	schema      *validators.SchemaValidator
	logger      *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRules replaces the validation rules. Order sets precedence.
func WithRules(rules ...validators.Rule) EngineOption {
	return func(e *Engine) {
		e.rules = rules
	}
}

// WithRejectMode sets how many reject rows a multi-violation review yields.
func WithRejectMode(mode RejectMode) EngineOption {
	return func(e *Engine) {
		e.mode = mode
	}
}

// WithClock sets the reference time source for subscription activity.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithNormalizers replaces the transformers applied to each review row
// before validation.
func WithNormalizers(normalizers ...core.Transformer) EngineOption {
	return func(e *Engine) {
		e.normalizers = normalizers
	}
}

// WithSchema replaces the required raw table layout.
func WithSchema(schema *validators.SchemaValidator) EngineOption {
	return func(e *Engine) {
		e.schema = schema
	}
}

// WithEngineLogger sets the logger. The default is the global zap logger.
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// DefaultNormalizers strips markup from the review text and trims it.
func DefaultNormalizers() []core.Transformer {
	return []core.Transformer{
		ToString(colDesc),
		StripHTML(colDesc),
		TrimSpace(colDesc),
	}
}

// NewEngine returns an engine with the default rules and normalizers.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		rules:       validators.DefaultRules(),
		mode:        AllViolations,
		now:         time.Now,
		normalizers: DefaultNormalizers(),
		schema:      validators.ReviewSchema(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.L().Named("transform")
	}
	return e
}

// Run joins, normalizes and validates every review row. Bad rows are routed
// to the reject set; only a schema gap or a cancelled context is an error.
func (e *Engine) Run(ctx context.Context, tables map[string]*core.RawTable) (*core.CleanDataset, *core.RejectDataset, error) {
	start := time.Now()
	if err := e.schema.Validate(tables); err != nil {
		e.logger.Error("raw tables do not match review schema", zap.Error(err))
		return nil, nil, err
	}

	now := e.now().UTC()
	images := NewKeySet(tables[core.TableReviewImages], colReviewID)
	buyers := NewKeySet(tables[core.TableOrders], colBuyerID)
	products := NewProductIndex(tables[core.TableProductReviews], colReviewID, colProduct)
	subscriptions := NewSubscriptionIndex(tables[core.TableSubscription], colCustomer, colEndDate, now)

	normalize := Chain(e.normalizers...)
	hasKey := filter.And(
		filter.NotNull(colReviewID),
		filter.Custom(func(r core.Record) bool {
			_, ok := KeyString(r[colReviewID])
			return ok
		}),
	)

	var reviews []core.Record
	if t := tables[core.TableReview]; t != nil {
		reviews = t.Records()
	}
	clean := &core.CleanDataset{Rows: make([]core.CleanReviewRecord, 0, len(reviews))}
	rejects := &core.RejectDataset{}
	seen := make(map[string]struct{}, len(reviews))
	reasonCounts := make(map[core.RejectReason]int)

	reject := func(id string, reason core.RejectReason) {
		rejects.Rows = append(rejects.Rows, core.RejectRecord{ReviewID: id, Reason: reason})
		reasonCounts[reason]++
	}

	for i, row := range reviews {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		ok, err := hasKey.ShouldInclude(ctx, row)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			reject("", core.ReasonMissingReviewID)
			continue
		}
		id, _ := KeyString(row[colReviewID])
		if _, dup := seen[id]; dup {
			reject(id, core.ReasonDuplicateReview)
			continue
		}
		seen[id] = struct{}{}

		normalized, err := normalize.Transform(ctx, row)
		if err != nil {
			return nil, nil, core.NewError(core.KindUnknown, "transform", "normalize",
				fmt.Errorf("review %s: %w", id, err))
		}

		review := e.join(id, normalized, images, buyers, products, subscriptions)
		failed := e.evaluate(review)
		// An unparsable rating never reaches the clean set, whatever the rules.
		rating, ok := validators.ParseRating(review.RawRating)
		if !ok && (len(failed) == 0 || e.mode == AllViolations) && !containsReason(failed, core.ReasonInvalidRating) {
			failed = append(failed, core.ReasonInvalidRating)
		}
		if len(failed) == 0 {
			clean.Rows = append(clean.Rows, core.CleanReviewRecord{
				ReviewID:        review.ReviewID,
				BuyerID:         review.BuyerID,
				ProductID:       review.ProductID,
				ReviewText:      review.ReviewText,
				Rating:          rating,
				HasImage:        review.HasImage,
				HasSubscription: review.HasSubscription,
				VerifiedBuyer:   review.VerifiedBuyer,
			})
			continue
		}
		for _, reason := range failed {
			reject(id, reason)
		}
	}

	fields := []zap.Field{
		zap.Int("reviews", len(reviews)),
		zap.Int("clean", clean.Len()),
		zap.Int("rejects", rejects.Len()),
		zap.Stringer("reject_mode", e.mode),
		zap.Duration("duration", time.Since(start)),
	}
	for reason, n := range reasonCounts {
		fields = append(fields, zap.Int("reject_"+string(reason), n))
	}
	e.logger.Info("transform complete", fields...)
	return clean, rejects, nil
}

func (e *Engine) join(id string, row core.Record, images, buyers KeySet, products ProductIndex, subs *SubscriptionIndex) core.ReviewRecord {
	buyer, _ := KeyString(row[colBuyerID])
	text, _ := row[colDesc].(string)
	return core.ReviewRecord{
		ReviewID:        id,
		BuyerID:         buyer,
		ProductID:       products.Lookup(id),
		ReviewText:      text,
		RawRating:       row[colRating],
		HasImage:        images.Has(id),
		HasSubscription: buyer != "" && subs.Active(buyer),
		VerifiedBuyer:   buyer != "" && buyers.Has(buyer),
	}
}

// evaluate returns the reasons of failing rules in rule order, stopping at
// the first in FirstViolation mode. Repeated reasons are reported once.
func (e *Engine) evaluate(review core.ReviewRecord) []core.RejectReason {
	var failed []core.RejectReason
	for _, rule := range e.rules {
		if rule.Check(review) {
			continue
		}
		reason := rule.Reason()
		if containsReason(failed, reason) {
			continue
		}
		failed = append(failed, reason)
		if e.mode == FirstViolation {
			break
		}
	}
	return failed
}

func containsReason(reasons []core.RejectReason, r core.RejectReason) bool {
	for _, x := range reasons {
		if x == r {
			return true
		}
	}
	return false
}
