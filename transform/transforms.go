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
	"strings"

	"golang.org/x/net/html"

	"github.com/aaronlmathis/reviewetl/core"
)

// Package transform provides the record normalizers, join indexes and the
// engine that splits joined reviews into clean and rejected sets.

// Chain composes transformers left to right.
func Chain(transformers ...core.Transformer) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		var err error
		for _, t := range transformers {
			record, err = t.Transform(ctx, record)
			if err != nil {
				return nil, err
			}
		}
		return record, nil
	})
}

// mapStrings returns a transformer that applies fn to the string value of
// each listed field. Missing and non-string fields are left unchanged.
func mapStrings(fn func(string) string, fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		for _, field := range fields {
			if str, ok := record[field].(string); ok {
				result[field] = fn(str)
			}
		}
		return result, nil
	})
}

// TrimSpace creates a transformer that trims whitespace from the specified string fields.
func TrimSpace(fields ...string) core.Transformer {
	return mapStrings(strings.TrimSpace, fields...)
}

// StripHTML removes markup from the listed fields, keeping text content with
// entities decoded. Script and style bodies are dropped.
func StripHTML(fields ...string) core.Transformer {
	return mapStrings(stripHTML, fields...)
}

func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; keep what was decoded.
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawTextTag(name []byte) bool {
	tag := string(name)
	return tag == "script" || tag == "style"
}

// ToString converts the listed fields to strings. nil becomes the empty
// string; integral floats print without a fractional part.
func ToString(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		for _, field := range fields {
			value, exists := record[field]
			if !exists {
				continue
			}
			if value == nil {
				result[field] = ""
				continue
			}
			result[field] = formatValue(value)
		}
		return result, nil
	})
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case float32:
		return formatValue(float64(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}
