// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/core/audit"
	"codeberg.org/quickai/quickai/core/requests"
)

var ErrNoBucket = errors.New("no S3 bucket configured")

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores uploads as private objects in Bucket, below Prefix.
type S3 struct {
	Client putObjectAPI
	Bucket string
	Prefix string

	now func() time.Time
}

// NewS3 builds an S3 store from the default AWS configuration chain
// (environment, shared config files, instance roles).
func NewS3(ctx context.Context, bucket, prefix string) (*S3, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithHTTPClient(requests.NewClient(audit.ToStorage)),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// MinIO and LocalStack only serve path-style URLs
		o.UsePathStyle = true
	})

	return &S3{Client: client, Bucket: bucket, Prefix: prefix}, nil
}

// Save implements Store.
func (s *S3) Save(ctx context.Context, u Upload) (string, error) {
	if len(u.Data) == 0 {
		return "", ErrEmptyUpload
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}

	key := s.Prefix + Key(now(), u.Filename)

	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(u.Data),
		ContentLength: aws.Int64(int64(len(u.Data))),
		ContentType:   aws.String(contentType),
		ACL:           types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("putting upload %s: %w", key, err)
	}

	log.Ctx(ctx).Debug().
		Str("bucket", s.Bucket).
		Str("key", key).
		Int("bytes", len(u.Data)).
		Msg("Archived upload")

	return key, nil
}
