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

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aaronlmathis/reviewetl/core"
	"github.com/aaronlmathis/reviewetl/extract"
	"github.com/aaronlmathis/reviewetl/load"
	"github.com/aaronlmathis/reviewetl/staging"
)

// Package orchestrator runs the review ETL stages in order:
// extract, stage, transform, load. The first fatal error ends the run.

// Stage names used in errors and logs.
const (
	StageExtract   = "extract"
	StageStaging   = "staging"
	StageTransform = "transform"
	StageLoad      = "load"
)

// Extractor produces the raw tables for a run.
type Extractor interface {
	Extract(ctx context.Context, runID core.RunID) (*extract.Result, error)
}

// Stager persists the raw tables to bronze.
type Stager interface {
	Stage(ctx context.Context, runID core.RunID, tables map[string]*core.RawTable) (*staging.Summary, error)
}

// Transformer partitions the raw tables into clean and rejected reviews.
type Transformer interface {
	Run(ctx context.Context, tables map[string]*core.RawTable) (*core.CleanDataset, *core.RejectDataset, error)
}

// Loader publishes the clean and rejected reviews.
type Loader interface {
	Publish(ctx context.Context, runID core.RunID, clean *core.CleanDataset, rejects *core.RejectDataset) (*load.Result, error)
}

// StageError attributes a fatal error to the stage that raised it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("orchestrator %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Report summarizes a run. Fields of stages that did not run are zero.
type Report struct {
	RunID         core.RunID
	TablesRead    int
	TablesSkipped int
	ExtractAudit  string
	Staged        *staging.Summary
	Clean         int
	Rejected      int
	Load          *load.Result
	Duration      time.Duration
}

// RunnerBuilder provides a fluent API for assembling a Runner.
type RunnerBuilder struct {
	runner *Runner
}

// NewRunner starts a builder. Extract, Transform and Load are required.
func NewRunner() *RunnerBuilder {
	return &RunnerBuilder{runner: &Runner{now: time.Now}}
}

// Extract sets the source extractor.
func (b *RunnerBuilder) Extract(e Extractor) *RunnerBuilder {
	b.runner.extractor = e
	return b
}

// Stage sets the bronze stager. Without one the run goes straight from
// extract to transform, as in replay mode.
func (b *RunnerBuilder) Stage(s Stager) *RunnerBuilder {
	b.runner.stager = s
	return b
}

// Transform sets the validation engine.
func (b *RunnerBuilder) Transform(t Transformer) *RunnerBuilder {
	b.runner.transformer = t
	return b
}

// Load sets the publisher.
func (b *RunnerBuilder) Load(l Loader) *RunnerBuilder {
	b.runner.loader = l
	return b
}

// WithClock sets the clock the run id is derived from.
func (b *RunnerBuilder) WithClock(now func() time.Time) *RunnerBuilder {
	b.runner.now = now
	return b
}

// WithRunID pins the run id instead of deriving it from the clock.
func (b *RunnerBuilder) WithRunID(id core.RunID) *RunnerBuilder {
	b.runner.runID = id
	return b
}

// WithLogger sets the run logger. The default is the global zap logger.
func (b *RunnerBuilder) WithLogger(logger *zap.Logger) *RunnerBuilder {
	b.runner.logger = logger
	return b
}

// Build validates that every mandatory stage is set.
func (b *RunnerBuilder) Build() (*Runner, error) {
	r := b.runner
	var missing []string
	if r.extractor == nil {
		missing = append(missing, StageExtract)
	}
	if r.transformer == nil {
		missing = append(missing, StageTransform)
	}
	if r.loader == nil {
		missing = append(missing, StageLoad)
	}
	if len(missing) > 0 {
		return nil, core.NewError(core.KindConfig, "orchestrator", "build",
			fmt.Errorf("runner requires stages %v", missing))
	}
	if r.logger == nil {
		r.logger = zap.L().Named("orchestrator")
	}
	return r, nil
}

// Runner executes one pipeline run.
type Runner struct {
	extractor   Extractor
	stager      Stager
	transformer Transformer
	loader      Loader
	now         func() time.Time
	runID       core.RunID
	logger      *zap.Logger
}

// Run executes the stages in order. On a fatal error the partial report is
// returned with a *StageError.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	runID := r.runID
	if runID == "" {
		runID = core.NewRunID(r.now())
	}
	report := &Report{RunID: runID}
	log := r.logger.With(zap.String("run_id", runID.String()))
	log.Info("pipeline started", zap.Bool("staging", r.stager != nil))

	fail := func(stage string, err error) (*Report, error) {
		report.Duration = time.Since(start)
		log.Error("pipeline aborted", zap.String("stage", stage), zap.Error(err))
		return report, &StageError{Stage: stage, Err: err}
	}

	extracted, err := r.extractor.Extract(ctx, runID)
	if err != nil {
		return fail(StageExtract, err)
	}
	report.TablesRead = len(extracted.Tables)
	report.TablesSkipped = len(extracted.Skipped)
	report.ExtractAudit = extracted.AuditPath
	if len(extracted.Tables) == 0 {
		return fail(StageExtract, core.NewError(core.KindNoData, StageExtract, "extract",
			errors.New("no table could be extracted")))
	}

	if r.stager != nil {
		summary, err := r.stager.Stage(ctx, runID, extracted.Tables)
		if err != nil {
			return fail(StageStaging, err)
		}
		report.Staged = summary
	}

	clean, rejects, err := r.transformer.Run(ctx, extracted.Tables)
	if err != nil {
		return fail(StageTransform, err)
	}
	report.Clean = clean.Len()
	report.Rejected = rejects.Len()

	loaded, err := r.loader.Publish(ctx, runID, clean, rejects)
	if err != nil {
		return fail(StageLoad, err)
	}
	report.Load = loaded
	report.Duration = time.Since(start)

	log.Info("pipeline finished",
		zap.Int("tables", report.TablesRead),
		zap.Int("clean", report.Clean),
		zap.Int("rejected", report.Rejected),
		zap.String("output", loaded.LocalPath),
		zap.Duration("duration", report.Duration))
	return report, nil
}
