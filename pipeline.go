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

package reviewetl

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"
)

// Package reviewetl streams records from a DataSource to a DataSink through
// transformers and filters. The review ETL stages use it to copy a relational
// table into memory and to import raw CSV objects into a fresh database.
//
// Example usage:
//
//	p, err := reviewetl.NewPipeline().
//		From(reader).
//		Where(filter.NotNull("review_id").ShouldInclude).
//		To(table).
//		WithErrorStrategy(reviewetl.SkipErrors).
//		Build()
//	if err != nil { return err }
//	stats, err := p.Execute(ctx)

// PipelineBuilder provides a fluent API for constructing pipelines.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline returns a builder with the FailFast strategy.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			transformers: make([]Transformer, 0),
			filters:      make([]Filter, 0),
			strategy:     FailFast,
		},
	}
}

// From sets the DataSource for the pipeline.
func (pb *PipelineBuilder) From(source DataSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// Transform adds a Transformer to the pipeline.
func (pb *PipelineBuilder) Transform(transformer Transformer) *PipelineBuilder {
	pb.pipeline.transformers = append(pb.pipeline.transformers, transformer)
	return pb
}

// Filter adds a Filter to the pipeline.
func (pb *PipelineBuilder) Filter(filter Filter) *PipelineBuilder {
	pb.pipeline.filters = append(pb.pipeline.filters, filter)
	return pb
}

// Map adds a mapping function to the pipeline.
func (pb *PipelineBuilder) Map(fn func(ctx context.Context, record Record) (Record, error)) *PipelineBuilder {
	return pb.Transform(TransformFunc(fn))
}

// Where adds a filtering condition to the pipeline.
func (pb *PipelineBuilder) Where(fn func(ctx context.Context, record Record) (bool, error)) *PipelineBuilder {
	return pb.Filter(FilterFunc(fn))
}

// To sets the DataSink for the pipeline.
func (pb *PipelineBuilder) To(sink DataSink) *PipelineBuilder {
	pb.pipeline.sink = sink
	return pb
}

// WithErrorStrategy sets the error handling strategy for the pipeline.
func (pb *PipelineBuilder) WithErrorStrategy(strategy ErrorStrategy) *PipelineBuilder {
	pb.pipeline.strategy = strategy
	return pb
}

// WithErrorHandler sets a custom error handler. With SkipErrors or
// CollectErrors a non-nil return from the handler stops the pipeline.
func (pb *PipelineBuilder) WithErrorHandler(handler ErrorHandler) *PipelineBuilder {
	pb.pipeline.errorHandler = handler
	return pb
}

// Build validates and constructs the Pipeline.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	if pb.pipeline.source == nil {
		return nil, fmt.Errorf("pipeline requires a data source")
	}
	if pb.pipeline.sink == nil {
		return nil, fmt.Errorf("pipeline requires a data sink")
	}
	return pb.pipeline, nil
}

// Stats summarizes one Execute call.
type Stats struct {
	Read     int64
	Written  int64
	Skipped  int64
	Filtered int64
	// Errors holds every record error when the strategy is CollectErrors.
	Errors error
}

// Pipeline represents a streaming record pipeline.
type Pipeline struct {
	transformers []Transformer
	filters      []Filter
	source       DataSource
	sink         DataSink
	strategy     ErrorStrategy
	errorHandler ErrorHandler
	stats        Stats
}

// Execute reads every record from the source, applies transformers and
// filters, and writes the survivors to the sink. Source and sink are closed
// before returning; a sink flush or close failure is reported when the copy
// itself succeeded.
func (p *Pipeline) Execute(ctx context.Context) (stats Stats, err error) {
	p.stats = Stats{}
	defer func() {
		p.source.Close()
		flushErr := p.sink.Flush()
		closeErr := p.sink.Close()
		if err == nil {
			err = multierr.Combine(flushErr, closeErr)
		}
		stats = p.stats
	}()

	for {
		select {
		case <-ctx.Done():
			return p.stats, ctx.Err()
		default:
		}

		record, err := p.source.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return p.stats, err
			}
			continue
		}
		p.stats.Read++

		if len(record) == 0 {
			p.stats.Skipped++
			continue
		}

		transformed, err := p.applyTransformations(ctx, record)
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return p.stats, err
			}
			continue
		}
		if len(transformed) == 0 {
			p.stats.Skipped++
			continue
		}

		include, err := p.applyFilters(ctx, transformed)
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return p.stats, err
			}
			continue
		}
		if !include {
			p.stats.Filtered++
			continue
		}

		if err := p.sink.Write(ctx, transformed); err != nil {
			if err := p.handleError(ctx, transformed, err); err != nil {
				return p.stats, err
			}
			continue
		}
		p.stats.Written++
	}

	return p.stats, nil
}

func (p *Pipeline) applyFilters(ctx context.Context, record Record) (bool, error) {
	for _, filter := range p.filters {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		if !include {
			return false, nil
		}
	}
	return true, nil
}

func (p *Pipeline) applyTransformations(ctx context.Context, record Record) (Record, error) {
	current := record
	for _, transformer := range p.transformers {
		transformed, err := transformer.Transform(ctx, current)
		if err != nil {
			return nil, err
		}
		current = transformed
	}
	return current, nil
}

// handleError returns a non-nil error when processing should stop.
func (p *Pipeline) handleError(ctx context.Context, record Record, err error) error {
	switch p.strategy {
	case SkipErrors, CollectErrors:
		p.stats.Skipped++
		if p.strategy == CollectErrors {
			p.stats.Errors = multierr.Append(p.stats.Errors, err)
		}
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, err)
		}
		return nil
	default:
		return err
	}
}
