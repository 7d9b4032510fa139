package storage

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/internal/config"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) Upload(_ context.Context, input *s3manager.UploadInput) error {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := aws.StringValue(input.Bucket) + "/" + aws.StringValue(input.Key)
	f.objects[k] = data
	f.types[k] = aws.StringValue(input.ContentType)
	return nil
}

func (f *fakeS3) Download(_ context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "missing", nil)
	}
	return data, nil
}

func (f *fakeS3) Delete(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeS3) ListKeys(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func TestObjectStorageService_RoundTrip(t *testing.T) {
	client := newFakeS3()
	svc := NewStorageService(client, StorageConfig{BucketName: "docs", Prefix: "/archive/"})
	ctx := context.Background()

	require.NoError(t, svc.Upload(ctx, "me@example.com/2025-03-14/a.pdf", []byte("%PDF"), "application/pdf"))
	assert.Contains(t, client.objects, "docs/archive/me@example.com/2025-03-14/a.pdf")
	assert.Equal(t, "application/pdf", client.types["docs/archive/me@example.com/2025-03-14/a.pdf"])

	data, err := svc.Download(ctx, "me@example.com/2025-03-14/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)

	require.NoError(t, svc.Delete(ctx, "me@example.com/2025-03-14/a.pdf"))
	_, err = svc.Download(ctx, "me@example.com/2025-03-14/a.pdf")
	assert.ErrorIs(t, err, mailarchive_errors.ErrNotFound)
}

func TestObjectStorageService_DefaultContentType(t *testing.T) {
	client := newFakeS3()
	svc := NewStorageService(client, StorageConfig{BucketName: "docs"})

	require.NoError(t, svc.Upload(context.Background(), "x.bin", []byte{1}, ""))
	assert.Equal(t, "application/octet-stream", client.types["docs/x.bin"])
}

func TestGetPublicURL(t *testing.T) {
	svc := NewStorageService(newFakeS3(), StorageConfig{BucketName: "docs"})
	assert.Empty(t, svc.GetPublicURL("a.pdf"))

	svc = NewStorageService(newFakeS3(), StorageConfig{BucketName: "docs", CDNDomain: "cdn.example.com", Prefix: "p"})
	assert.Equal(t, "https://cdn.example.com/p/a.pdf", svc.GetPublicURL("a.pdf"))
}

func TestNewFromConfig(t *testing.T) {
	svc, err := NewFromConfig(&config.ObjectStorageConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, svc)

	_, err = NewFromConfig(&config.ObjectStorageConfig{Provider: "r2"})
	assert.Error(t, err)

	_, err = NewFromConfig(&config.ObjectStorageConfig{Provider: "ftp"})
	assert.Error(t, err)

	svc, err = NewFromConfig(&config.ObjectStorageConfig{Provider: "s3", Region: "eu-west-1", Bucket: "docs", AccessKeyID: "id", AccessKeySecret: "secret"})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}
