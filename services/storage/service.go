// Package storage mirrors stored documents into an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/services/storage/aws_client"
)

type ObjectStorageService struct {
	client     aws_client.S3Client
	bucketName string
	prefix     string
	cdnDomain  string
}

type StorageConfig struct {
	BucketName string
	// Prefix is prepended to every key, e.g. "archive/".
	Prefix    string
	CDNDomain string
}

func NewStorageService(client aws_client.S3Client, config StorageConfig) interfaces.StorageService {
	prefix := strings.Trim(config.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &ObjectStorageService{
		client:     client,
		bucketName: config.BucketName,
		prefix:     prefix,
		cdnDomain:  config.CDNDomain,
	}
}

func (s *ObjectStorageService) key(key string) string {
	return s.prefix + strings.TrimLeft(key, "/")
}

// Upload stores a private copy of the document.
func (s *ObjectStorageService) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("key", key, "bytes", len(data))

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	err := s.client.Upload(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(s.key(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "upload "+key)
	}
	return nil
}

// Download returns ErrNotFound when the bucket has no such key.
func (s *ObjectStorageService) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("key", key)

	data, err := s.client.Download(ctx, s.bucketName, s.key(key))
	if err != nil {
		tracing.TraceErr(span, err)
		if isNoSuchKey(err) {
			return nil, errors.Wrap(mailarchive_errors.ErrNotFound, key)
		}
		return nil, errors.Wrap(err, "download "+key)
	}
	return data, nil
}

func (s *ObjectStorageService) Delete(ctx context.Context, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := s.client.Delete(ctx, s.bucketName, s.key(key)); err != nil && !isNoSuchKey(err) {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "delete "+key)
	}
	return nil
}

// GetPublicURL is empty unless a CDN domain fronts the bucket.
func (s *ObjectStorageService) GetPublicURL(key string) string {
	if s.cdnDomain == "" {
		return ""
	}
	return "https://" + s.cdnDomain + "/" + s.key(key)
}

func isNoSuchKey(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
