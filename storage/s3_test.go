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
	"testing"

	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aaronlmathis/reviewetl/retry"
)

type fakeUploader struct {
	failures int
	err      error
	calls    int
	objects  map[string]string
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string]string)
	}
	f.objects[*input.Bucket+"/"+*input.Key] = string(body)
	return &s3manager.UploadOutput{Location: "https://example/" + *input.Key}, nil
}

func newTestStore(u Uploader, retries int) *S3Store {
	return NewS3StoreWithUploader("reviews-bucket", u, retries, zap.NewNop()).WithBackoff(&retry.NoBackoff{})
}

func TestS3Store_Upload(t *testing.T) {
	u := &fakeUploader{}
	store := newTestStore(u, 2)

	uri, err := store.Upload(context.Background(), "cleaned/reviews_cleaned_20250101_120000.parquet", strings.NewReader("PAR1"))
	require.NoError(t, err)
	assert.Equal(t, "s3://reviews-bucket/cleaned/reviews_cleaned_20250101_120000.parquet", uri)
	assert.Equal(t, "PAR1", u.objects["reviews-bucket/cleaned/reviews_cleaned_20250101_120000.parquet"])
}

func TestS3Store_UploadRetriesAndRewinds(t *testing.T) {
	u := &fakeUploader{failures: 2, err: errors.New("connection reset")}
	store := newTestStore(u, 2)

	_, err := store.Upload(context.Background(), "rejects/r.csv", strings.NewReader("review_id,reject_reason\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, u.calls)
	assert.Equal(t, "review_id,reject_reason\n", u.objects["reviews-bucket/rejects/r.csv"])
}

func TestS3Store_UploadGivesUp(t *testing.T) {
	u := &fakeUploader{failures: 10, err: errors.New("connection reset")}
	store := newTestStore(u, 1)

	_, err := store.Upload(context.Background(), "rejects/r.csv", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, 2, u.calls)

	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "upload", serr.Op)
	assert.Equal(t, "rejects/r.csv", serr.Key)
}

func TestS3Store_AccessDeniedNotRetried(t *testing.T) {
	u := &fakeUploader{failures: 10, err: &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}}
	store := newTestStore(u, 3)

	_, err := store.Upload(context.Background(), "k", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, 1, u.calls)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("get: %w", &smithy.GenericAPIError{Code: "NoSuchKey"})))
	assert.True(t, IsNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, IsNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, IsNotFound(errors.New("NoSuchKey")))
}

func TestS3Options(t *testing.T) {
	opts := S3Options{Region: "us-east-1", AccessKeyID: "id", SecretAccessKey: "secret"}
	assert.False(t, opts.Complete())
	opts.Bucket = "b"
	assert.True(t, opts.Complete())

	_, err := NewS3Store(context.Background(), S3Options{})
	assert.Error(t, err)
}
