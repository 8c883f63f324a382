// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/MKhiriev/go-note-keeper/internal/config"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
)

// s3API is the part of *s3.Client used for blobs.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type s3FileStorage struct {
	client s3API
	bucket string
	logger *logger.Logger
}

// NewS3FileStorage returns a [RemoteFileStorage] over an S3-compatible
// bucket. Static credentials are used when an access key is configured,
// otherwise the default AWS credential chain applies.
func NewS3FileStorage(ctx context.Context, cfg config.S3, log *logger.Logger) (RemoteFileStorage, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		log.Err(err).Str("func", "NewS3FileStorage").Msg("failed to load aws config")
		return nil, fmt.Errorf("error loading s3 config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &s3FileStorage{
		client: client,
		bucket: cfg.Bucket,
		logger: log,
	}, nil
}

func (s *s3FileStorage) Upload(ctx context.Context, hash string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(hash),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "s3FileStorage.Upload").Str("hash", hash).Msg("failed to upload blob")
		return fmt.Errorf("error uploading blob %s: %w", hash, err)
	}

	return nil
}

func (s *s3FileStorage) Download(ctx context.Context, hash string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(hash),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrBlobNotFound
		}
		logger.FromContext(ctx).Err(err).Str("func", "s3FileStorage.Download").Str("hash", hash).Msg("failed to download blob")
		return nil, fmt.Errorf("error downloading blob %s: %w", hash, err)
	}

	return out.Body, nil
}

func (s *s3FileStorage) Exists(ctx context.Context, hash string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(hash),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}

	return false, fmt.Errorf("error checking blob %s: %w", hash, err)
}

func (s *s3FileStorage) Delete(ctx context.Context, hash string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(hash),
	})
	if err != nil && !isS3NotFound(err) {
		logger.FromContext(ctx).Err(err).Str("func", "s3FileStorage.Delete").Str("hash", hash).Msg("failed to delete blob")
		return fmt.Errorf("error deleting blob %s: %w", hash, err)
	}

	return nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
