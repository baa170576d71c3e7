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
	"github.com/aaronlmathis/reviewetl/core"
)

// Package reviewetl re-exports the core record interfaces so callers that only
// build streaming pipelines do not need to import core directly.

type (
	Record           = core.Record
	DataSource       = core.DataSource
	DataSink         = core.DataSink
	Transformer      = core.Transformer
	TransformFunc    = core.TransformFunc
	Filter           = core.Filter
	FilterFunc       = core.FilterFunc
	ErrorHandler     = core.ErrorHandler
	ErrorHandlerFunc = core.ErrorHandlerFunc
	ErrorStrategy    = core.ErrorStrategy
)

const (
	FailFast      = core.FailFast
	SkipErrors    = core.SkipErrors
	CollectErrors = core.CollectErrors
)
