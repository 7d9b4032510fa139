package config

import (
	"github.com/pkg/errors"

	cron_config "github.com/customeros/mailarchive/internal/cron/config"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/tracing"
)

type Config struct {
	AppConfig           *config.AppConfig
	Logger              *logger.Config
	Tracing             *tracing.JaegerConfig
	DatabaseConfig      *config.DatabaseConfig
	StorageConfig       *config.StorageConfig
	ObjectStorageConfig *config.ObjectStorageConfig
	ClassifierConfig    *config.ClassifierConfig
	OCRConfig           *config.OCRConfig
	FetcherConfig       *config.FetcherConfig
	LinkConfig          *config.LinkConfig
	CredentialsConfig   *config.CredentialsConfig
	SchedulerConfig     *config.SchedulerConfig
	CronConfig          *cron_config.Config
}

func (c *Config) Validate() error {
	switch c.DatabaseConfig.Driver {
	case "postgres":
		if c.DatabaseConfig.Host == "" || c.DatabaseConfig.User == "" || c.DatabaseConfig.DBName == "" {
			return errors.New("postgres driver requires POSTGRES_HOST, POSTGRES_USER and POSTGRES_DB_NAME")
		}
	case "sqlite":
		if c.DatabaseConfig.SQLitePath == "" {
			return errors.New("sqlite driver requires DB_SQLITE_PATH")
		}
	default:
		return errors.Errorf("unsupported DB_DRIVER %q", c.DatabaseConfig.Driver)
	}
	if c.StorageConfig.BaseDir == "" {
		return errors.New("STORAGE_BASE_DIR is required")
	}
	switch c.ObjectStorageConfig.Provider {
	case "none", "s3":
	case "r2":
		if c.ObjectStorageConfig.R2AccountID == "" {
			return errors.New("r2 object storage requires CLOUDFLARE_R2_ACCOUNT_ID")
		}
	default:
		return errors.Errorf("unsupported OBJECT_STORAGE_PROVIDER %q", c.ObjectStorageConfig.Provider)
	}
	switch c.ClassifierConfig.Provider {
	case "none", "ollama":
	case "gemini":
		if c.ClassifierConfig.GeminiAPIKey == "" {
			return errors.New("gemini classifier requires GEMINI_API_KEY")
		}
	default:
		return errors.Errorf("unsupported CLASSIFIER_PROVIDER %q", c.ClassifierConfig.Provider)
	}
	return nil
}
