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
	"fmt"
	"time"
)

const runIDLayout = "20060102_150405"

// RunID identifies one pipeline execution. It is the UTC start time
// formatted as YYYYMMDD_HHMMSS.
type RunID string

// NewRunID derives the run id from a start time.
func NewRunID(t time.Time) RunID {
	return RunID(t.UTC().Format(runIDLayout))
}

// ParseRunID validates a run id supplied by an operator, e.g. for replay.
func ParseRunID(s string) (RunID, error) {
	if _, err := time.Parse(runIDLayout, s); err != nil {
		return "", fmt.Errorf("invalid run id %q: want YYYYMMDD_HHMMSS", s)
	}
	return RunID(s), nil
}

func (r RunID) String() string { return string(r) }
