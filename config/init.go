package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/stopthephish/phishwatch/internal/logger"
	"github.com/stopthephish/phishwatch/internal/tracing"
)

type Config struct {
	AppConfig        *AppConfig
	Logger           *logger.Config
	Tracing          *tracing.JaegerConfig
	IMAPConfig       *IMAPConfig
	OAuthConfig      *OAuthConfig
	ClassifierConfig *ClassifierConfig
	NotifierConfig   *NotifierConfig
	ReputationConfig *ReputationConfig
	StorageConfig    *StorageConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:        &AppConfig{},
		Logger:           &logger.Config{},
		Tracing:          &tracing.JaegerConfig{},
		IMAPConfig:       &IMAPConfig{},
		OAuthConfig:      &OAuthConfig{},
		ClassifierConfig: &ClassifierConfig{},
		NotifierConfig:   &NotifierConfig{},
		ReputationConfig: &ReputationConfig{},
		StorageConfig:    &StorageConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
