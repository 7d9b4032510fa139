package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	cron_config "github.com/customeros/mailarchive/internal/cron/config"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/tracing"
)

func InitConfig() (*Config, error) {
	cfg := &Config{
		AppConfig:           &config.AppConfig{},
		Logger:              &logger.Config{},
		Tracing:             &tracing.JaegerConfig{},
		DatabaseConfig:      &config.DatabaseConfig{},
		StorageConfig:       &config.StorageConfig{},
		ObjectStorageConfig: &config.ObjectStorageConfig{},
		ClassifierConfig:    &config.ClassifierConfig{},
		OCRConfig:           &config.OCRConfig{},
		FetcherConfig:       &config.FetcherConfig{},
		LinkConfig:          &config.LinkConfig{},
		CredentialsConfig:   &config.CredentialsConfig{},
		SchedulerConfig:     &config.SchedulerConfig{},
		CronConfig:          &cron_config.Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "error loading mailarchive config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
