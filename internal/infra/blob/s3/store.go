// Package s3 keeps a copy of every ingested raw report in an S3-compatible
// bucket (AWS S3 or MinIO), next to the catalog item it produced.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/resilience/circuitbreaker"
)

const defaultContentType = "text/plain; charset=utf-8"

// Config holds explicit construction parameters.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional; set for MinIO or other S3-compatible servers
	Prefix    string // optional key prefix inside the bucket
	PathStyle bool
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool { return c.Bucket != "" }

// Environment variables:
//
//	RAW_ARCHIVE_S3_BUCKET=<bucket> (empty disables raw archiving)
//	RAW_ARCHIVE_S3_REGION=<region> (default us-east-1)
//	RAW_ARCHIVE_S3_ENDPOINT=<url>  (optional)
//	RAW_ARCHIVE_S3_PREFIX=<prefix> (optional)
//	RAW_ARCHIVE_S3_PATH_STYLE=true|false
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// ConfigFromEnv reads the RAW_ARCHIVE_S3_* variables.
func ConfigFromEnv() Config {
	return Config{
		Bucket:    os.Getenv("RAW_ARCHIVE_S3_BUCKET"),
		Region:    os.Getenv("RAW_ARCHIVE_S3_REGION"),
		Endpoint:  os.Getenv("RAW_ARCHIVE_S3_ENDPOINT"),
		Prefix:    os.Getenv("RAW_ARCHIVE_S3_PREFIX"),
		PathStyle: strings.EqualFold(os.Getenv("RAW_ARCHIVE_S3_PATH_STYLE"), "true"),
	}
}

// Store writes raw reports as objects. Keys are relative to Config.Prefix.
type Store struct {
	client         *s3.Client
	bucket         string
	prefix         string
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// New creates a raw store, loading credentials from the default chain.
func New(ctx context.Context, cfg Config, optFns ...func(*s3.Options)) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newFromAWSConfig(awsCfg, cfg, optFns...), nil
}

func newFromAWSConfig(awsCfg aws.Config, cfg Config, optFns ...func(*s3.Options)) *Store {
	client := s3.NewFromConfig(awsCfg, append([]func(*s3.Options){func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}}, optFns...)...)

	return &Store{
		client:         client,
		bucket:         cfg.Bucket,
		prefix:         strings.Trim(cfg.Prefix, "/"),
		circuitBreaker: circuitbreaker.New(circuitbreaker.BlobStoreConfig()),
	}
}

// Put stores content under key, overwriting any previous copy so that
// re-ingestion stays idempotent.
func (s *Store) Put(ctx context.Context, key string, content entity.RawContent) error {
	objectKey := s.objectKey(key)
	contentType := content.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(content.Data),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"source-url": content.URL},
	}
	_, err := circuitbreaker.Do(s.circuitBreaker, func() (*s3.PutObjectOutput, error) {
		return s.client.PutObject(ctx, input)
	})
	if err != nil {
		return fmt.Errorf("put raw report %s: %w", objectKey, err)
	}
	return nil
}

func (s *Store) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}
