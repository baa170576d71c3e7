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

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/aaronlmathis/reviewetl/retry"
)

// Package storage uploads pipeline artifacts to an S3 bucket.

// StorageError wraps object store failures with the key involved.
type StorageError struct {
	Op  string // config, upload, validate
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s [%s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// S3Options holds the connection settings for a bucket.
type S3Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string // optional, for S3-compatible stores
	ForcePathStyle  bool
	UploadRetries   int
	Logger          *zap.Logger
}

// Complete reports whether the options carry enough to reach a bucket.
func (o S3Options) Complete() bool {
	return o.Region != "" && o.AccessKeyID != "" && o.SecretAccessKey != "" && o.Bucket != ""
}

// Uploader is the subset of the s3 manager the store uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3Store uploads objects to one bucket.
type S3Store struct {
	bucket   string
	client   *s3.Client
	uploader Uploader
	retry    retry.Config
	logger   *zap.Logger
}

// NewS3Store builds an S3 client from static credentials and opts.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if !opts.Complete() {
		return nil, &StorageError{Op: "validate", Err: fmt.Errorf("region, credentials and bucket are required")}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""))),
	)
	if err != nil {
		return nil, &StorageError{Op: "config", Err: err}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	store := NewS3StoreWithUploader(opts.Bucket, s3manager.NewUploader(client), opts.UploadRetries, opts.Logger)
	store.client = client
	return store, nil
}

// NewS3StoreWithUploader returns a store over an existing uploader. retries
// counts attempts after the first; negative values disable retries.
func NewS3StoreWithUploader(bucket string, uploader Uploader, retries int, logger *zap.Logger) *S3Store {
	if logger == nil {
		logger = zap.L().Named("storage")
	}
	if retries < 0 {
		retries = 0
	}
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = retries
	cfg.Retryable = retryable

	return &S3Store{
		bucket:   bucket,
		uploader: uploader,
		retry:    cfg,
		logger:   logger,
	}
}

// WithBackoff replaces the delay strategy between upload attempts.
func (s *S3Store) WithBackoff(strategy retry.BackoffStrategy) *S3Store {
	s.retry.Strategy = strategy
	return s
}

// Bucket returns the bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

// Client returns the underlying S3 client, or nil when the store was built
// from an uploader.
func (s *S3Store) Client() *s3.Client { return s.client }

// URI returns the s3:// location of key.
func (s *S3Store) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, strings.TrimPrefix(key, "/"))
}

// Upload stores body under key and returns its URI. body is rewound before
// each attempt.
func (s *S3Store) Upload(ctx context.Context, key string, body io.ReadSeeker) (string, error) {
	if key == "" {
		return "", &StorageError{Op: "validate", Err: fmt.Errorf("key is required")}
	}

	cfg := s.retry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.logger.Warn("upload failed, retrying",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return retry.Permanent(err)
		}
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   body,
		})
		return err
	})
	if err != nil {
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}

	uri := s.URI(key)
	s.logger.Info("uploaded object", zap.String("uri", uri))
	return uri, nil
}

// IsNotFound reports whether err carries an S3 missing-object code.
func IsNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "NoSuchBucket":
			return false
		}
	}
	return true
}
