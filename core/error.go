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

import (
	"context"
	"errors"
	"fmt"
)

// This file contains the pipeline error taxonomy and the record-level error
// handling strategies used by the streaming pipeline.

// ErrorKind classifies a stage failure.
type ErrorKind int

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown ErrorKind = iota
	// KindConfig covers missing environment variables or config files.
	KindConfig
	// KindConnectivity covers unreachable databases and stores.
	KindConnectivity
	// KindPartial covers a single table or row that was skipped.
	KindPartial
	// KindWrite covers staging inserts and local file writes.
	KindWrite
	// KindPublish covers object-store uploads.
	KindPublish
	// KindSchema covers raw tables missing required tables or columns.
	KindSchema
	// KindNoData is reported when there is nothing to publish.
	KindNoData
)

var kindNames = map[ErrorKind]string{
	KindUnknown:      "unknown",
	KindConfig:       "configuration",
	KindConnectivity: "connectivity",
	KindPartial:      "partial",
	KindWrite:        "write",
	KindPublish:      "publish",
	KindSchema:       "schema",
	KindNoData:       "no_data",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Fatal reports whether an error of this kind must abort the run.
func (k ErrorKind) Fatal() bool {
	return k != KindPartial && k != KindPublish
}

// Error is the classified error returned by pipeline stages.
type Error struct {
	Kind  ErrorKind
	Stage string // extract, staging, transform, load, bootstrap
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s (%s): %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s (%s): %v", e.Stage, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error.
func NewError(kind ErrorKind, stage, op string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain,
// or KindUnknown when there is none.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err must abort the run. Unclassified errors are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Fatal()
}

// ErrorHandler defines how errors are handled during streaming.
// Returning a non-nil error will stop the pipeline; returning nil will continue.
type ErrorHandler interface {
	HandleError(ctx context.Context, record Record, err error) error
}

// ErrorStrategy defines how to handle record errors in the streaming pipeline.
type ErrorStrategy int

const (
	// FailFast stops processing on the first error encountered.
	FailFast ErrorStrategy = iota
	// SkipErrors continues processing, skipping failed records.
	SkipErrors
	// CollectErrors continues processing, keeping every error for inspection.
	CollectErrors
)

// ErrorHandlerFunc is a function adapter for the ErrorHandler interface.
type ErrorHandlerFunc func(ctx context.Context, record Record, err error) error

// HandleError implements the ErrorHandler interface for ErrorHandlerFunc.
func (f ErrorHandlerFunc) HandleError(ctx context.Context, record Record, err error) error {
	return f(ctx, record, err)
}
