// Package storage holds the object store adapters for payment evidence.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// S3Config contains configuration for the evidence bucket
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // MinIO / LocalStack; enables path-style addressing
	AccessKey string // optional static credentials
	SecretKey string
	BaseURL   string // public URL prefix returned for stored objects
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3EvidenceStore implements ports.EvidenceStore on S3-compatible storage
type S3EvidenceStore struct {
	client  s3API
	bucket  string
	baseURL string
	logger  *zap.Logger
}

// NewS3EvidenceStore creates an evidence store for cfg.Bucket
func NewS3EvidenceStore(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3EvidenceStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("evidence bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Endpoint != "" {
			baseURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}

	logger.Info("S3 evidence store initialized",
		zap.String("bucket", cfg.Bucket),
		zap.String("region", cfg.Region),
		zap.Bool("custom_endpoint", cfg.Endpoint != ""))

	return newS3EvidenceStore(client, cfg.Bucket, baseURL, logger), nil
}

func newS3EvidenceStore(client s3API, bucket, baseURL string, logger *zap.Logger) *S3EvidenceStore {
	return &S3EvidenceStore{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Put uploads body and returns the object URL
func (s *S3EvidenceStore) Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put object %s: %w", path, err)
	}

	s.logger.Debug("Evidence uploaded", zap.String("key", path), zap.Int64("size", size))
	return s.baseURL + "/" + (&url.URL{Path: path}).EscapedPath(), nil
}

// Delete removes the object. S3 treats deleting a missing key as success.
func (s *S3EvidenceStore) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil
		}
		return fmt.Errorf("delete object %s: %w", path, err)
	}
	return nil
}
