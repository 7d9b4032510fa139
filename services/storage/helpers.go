package storage

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/services/storage/aws_client"
)

const (
	ProviderNone = "none"
	ProviderS3   = "s3"
	ProviderR2   = "r2"
)

// NewFromConfig builds the document mirror. It returns nil, nil when the
// mirror is disabled.
func NewFromConfig(cfg *config.ObjectStorageConfig) (interfaces.StorageService, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderS3:
		client, err := aws_client.NewS3Client(aws_client.AWSConfig(cfg.Region, cfg.AccessKeyID, cfg.AccessKeySecret))
		if err != nil {
			return nil, errors.Wrap(err, "create s3 client")
		}
		return NewStorageService(client, StorageConfig{BucketName: cfg.Bucket}), nil
	case ProviderR2:
		if cfg.R2AccountID == "" {
			return nil, errors.New("r2 mirror requires CLOUDFLARE_R2_ACCOUNT_ID")
		}
		client, err := aws_client.NewS3Client(aws_client.R2Config(cfg.R2AccountID, cfg.AccessKeyID, cfg.AccessKeySecret))
		if err != nil {
			return nil, errors.Wrap(err, "create r2 client")
		}
		return NewStorageService(client, StorageConfig{BucketName: cfg.Bucket}), nil
	}
	return nil, errors.Errorf("unknown object storage provider %q", cfg.Provider)
}
