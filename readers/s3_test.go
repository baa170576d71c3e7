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
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	gets    []string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	f.gets = append(f.gets, key)
	body, ok := f.objects[key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	prefix := aws.ToString(in.Prefix)
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func TestS3Reader_ExactKey(t *testing.T) {
	client := &fakeS3{objects: map[string]string{
		"raw/review.csv": "review_id,buyer_id,r_desc,rating\n1,A,Good product,5\n2,B,,4\n",
	}}
	reader, err := NewS3Reader(context.Background(),
		WithS3Client(client),
		WithS3Bucket("bucket"),
		WithS3Keys("raw/review.csv"),
	)
	require.NoError(t, err)
	defer reader.Close()

	ctx := context.Background()
	first, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first["review_id"])
	assert.Equal(t, "Good product", first["r_desc"])

	second, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, second["r_desc"])

	_, err = reader.Read(ctx)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(2), reader.Stats().RecordsRead)
	assert.Equal(t, []string{"raw/review.csv"}, reader.Stats().ProcessedFiles)
}

func TestS3Reader_MissingObjectSurfaces(t *testing.T) {
	reader, err := NewS3Reader(context.Background(),
		WithS3Client(&fakeS3{objects: map[string]string{}}),
		WithS3Bucket("bucket"),
		WithS3Keys("raw/orders.csv"),
	)
	require.NoError(t, err)

	_, err = reader.Read(context.Background())
	require.Error(t, err)

	var apiErr smithy.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NoSuchKey", apiErr.ErrorCode())

	var rerr *S3ReaderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "raw/orders.csv", rerr.Key)
}

func TestS3Reader_PrefixListingSkipsEmptyObjects(t *testing.T) {
	client := &fakeS3{objects: map[string]string{
		"raw/orders.csv": "buyer_id\nA\n",
		"raw/empty.csv":  "",
		"raw/notes.txt":  "ignored",
	}}
	reader, err := NewS3Reader(context.Background(),
		WithS3Client(client),
		WithS3Bucket("bucket"),
		WithS3Prefix("raw/"),
		WithS3Suffix(".csv"),
		WithS3CSVOptions(WithCSVInferTypes(false)),
	)
	require.NoError(t, err)
	assert.Len(t, reader.Keys(), 2)

	var rows int
	for {
		rec, err := reader.Read(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, "A", rec["buyer_id"])
		rows++
	}
	assert.Equal(t, 1, rows)
}

func TestNewS3Reader_Validation(t *testing.T) {
	_, err := NewS3Reader(context.Background(), WithS3Bucket("bucket"))
	assert.Error(t, err)

	_, err = NewS3Reader(context.Background(), WithS3Client(&fakeS3{}))
	assert.Error(t, err)
}
