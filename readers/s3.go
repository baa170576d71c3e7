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

package readers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/reviewetl/core"
)

// S3ReaderError provides structured error information for S3 reader operations
type S3ReaderError struct {
	Op  string // Operation that failed (e.g., "list_objects", "get_object", "read")
	Key string
	Err error // Underlying error
}

func (e *S3ReaderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("s3 reader %s [%s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3 reader %s: %v", e.Op, e.Err)
}

func (e *S3ReaderError) Unwrap() error {
	return e.Err
}

// S3ObjectAPI is the subset of *s3.Client the reader needs.
type S3ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ReaderStats holds statistics about the S3 reader's performance
type S3ReaderStats struct {
	ObjectsListed  int64         // Total objects discovered
	ObjectsRead    int64         // Total objects successfully opened
	RecordsRead    int64         // Total records read across all objects
	ReadDuration   time.Duration // Total time spent reading
	LastReadTime   time.Time     // Time of last read operation
	CurrentObject  string        // Currently processing object
	ProcessedFiles []string      // List of opened files
}

// S3ReaderOptions configures the S3 reader behavior
type S3ReaderOptions struct {
	Client  S3ObjectAPI
	Bucket  string   // S3 bucket name
	Keys    []string // Exact keys; listing is skipped when set
	Prefix  string   // Key prefix filter
	Suffix  string   // Key suffix filter (e.g., ".csv")
	MaxKeys int32    // Page size for listing
	CSVOpts []ReaderOptionCSV
}

// ReaderOptionS3 represents a configuration function for S3Reader
type ReaderOptionS3 func(*S3ReaderOptions)

// WithS3Client sets the client used for listing and fetching objects.
func WithS3Client(client S3ObjectAPI) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Client = client
	}
}

func WithS3Bucket(bucket string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Bucket = bucket
	}
}

// WithS3Keys reads exactly the given keys, in order.
func WithS3Keys(keys ...string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Keys = append([]string(nil), keys...)
	}
}

func WithS3Prefix(prefix string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Prefix = prefix
	}
}

func WithS3Suffix(suffix string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Suffix = suffix
	}
}

func WithS3MaxKeys(maxKeys int32) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.MaxKeys = maxKeys
	}
}

// WithS3CSVOptions passes options to the CSV reader opened for each object.
func WithS3CSVOptions(options ...ReaderOptionCSV) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.CSVOpts = append(opts.CSVOpts, options...)
	}
}

// S3Reader implements core.DataSource over one or more CSV objects.
// Unlike a best-effort directory scan, a missing or unreadable object is
// returned to the caller so it can decide whether to skip it.
type S3Reader struct {
	client        S3ObjectAPI
	keys          []string
	currentIndex  int
	currentReader *CSVReader
	stats         S3ReaderStats
	opts          S3ReaderOptions
}

// NewS3Reader creates a new S3 reader. With a prefix, objects are listed
// before the first Read.
func NewS3Reader(ctx context.Context, options ...ReaderOptionS3) (*S3Reader, error) {
	opts := S3ReaderOptions{MaxKeys: 1000}
	for _, option := range options {
		option(&opts)
	}

	if opts.Client == nil {
		return nil, &S3ReaderError{Op: "validate_options", Err: fmt.Errorf("client is required")}
	}
	if opts.Bucket == "" {
		return nil, &S3ReaderError{Op: "validate_options", Err: fmt.Errorf("bucket is required")}
	}

	reader := &S3Reader{
		client: opts.Client,
		opts:   opts,
		stats:  S3ReaderStats{ProcessedFiles: make([]string, 0)},
	}

	if len(opts.Keys) > 0 {
		reader.keys = opts.Keys
	} else if err := reader.listObjects(ctx); err != nil {
		return nil, &S3ReaderError{Op: "list_objects", Err: err}
	}
	reader.stats.ObjectsListed = int64(len(reader.keys))
	return reader, nil
}

// Read implements the core.DataSource interface
func (s *S3Reader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() {
		s.stats.ReadDuration += time.Since(start)
		s.stats.LastReadTime = time.Now()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, &S3ReaderError{Op: "read", Err: ctx.Err()}
		default:
		}

		if s.currentReader == nil {
			if s.currentIndex >= len(s.keys) {
				return nil, io.EOF
			}
			empty, err := s.openNextObject(ctx)
			if err != nil {
				return nil, err
			}
			if empty {
				s.currentIndex++
				continue
			}
		}

		record, err := s.currentReader.Read(ctx)
		if err == io.EOF {
			if err := s.closeCurrentReader(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, &S3ReaderError{Op: "read_record", Key: s.keys[s.currentIndex], Err: err}
		}

		s.stats.RecordsRead++
		return record, nil
	}
}

// Close implements the core.DataSource interface
func (s *S3Reader) Close() error {
	return s.closeCurrentReader()
}

// Stats returns S3 reader performance statistics
func (s *S3Reader) Stats() S3ReaderStats {
	return s.stats
}

// Keys returns the object keys the reader will process.
func (s *S3Reader) Keys() []string {
	return append([]string(nil), s.keys...)
}

func (s *S3Reader) listObjects(ctx context.Context) error {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.opts.Bucket),
		MaxKeys: aws.Int32(s.opts.MaxKeys),
	}
	if s.opts.Prefix != "" {
		input.Prefix = aws.String(s.opts.Prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.opts.Suffix != "" && !strings.HasSuffix(key, s.opts.Suffix) {
				continue
			}
			s.keys = append(s.keys, key)
		}
	}
	return nil
}

// openNextObject opens the object at currentIndex. empty is true for an
// object with no header row.
func (s *S3Reader) openNextObject(ctx context.Context) (empty bool, err error) {
	key := s.keys[s.currentIndex]
	s.stats.CurrentObject = key

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, &S3ReaderError{Op: "get_object", Key: key, Err: err}
	}

	reader, err := NewCSVReader(result.Body, s.opts.CSVOpts...)
	if err != nil {
		result.Body.Close()
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return false, &S3ReaderError{Op: "open_csv", Key: key, Err: err}
	}

	s.currentReader = reader
	s.stats.ObjectsRead++
	s.stats.ProcessedFiles = append(s.stats.ProcessedFiles, key)
	return false, nil
}

func (s *S3Reader) closeCurrentReader() error {
	if s.currentReader == nil {
		return nil
	}
	err := s.currentReader.Close()
	s.currentReader = nil
	s.currentIndex++
	if err != nil {
		return &S3ReaderError{Op: "close_object", Err: err}
	}
	return nil
}
