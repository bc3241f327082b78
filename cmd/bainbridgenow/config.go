package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/spockmay/bainbridge-now/internal/digest"
	"github.com/spockmay/bainbridge-now/internal/logger"
	"github.com/spockmay/bainbridge-now/internal/metrics"
	"github.com/spockmay/bainbridge-now/internal/postprocess"
	"github.com/spockmay/bainbridge-now/internal/rabbit"
	internalhttp "github.com/spockmay/bainbridge-now/internal/server/http"
	"github.com/spockmay/bainbridge-now/internal/source"
	"github.com/spockmay/bainbridge-now/internal/storage"
	"github.com/spockmay/bainbridge-now/internal/storagebuilder"
)

const envConfigPrefix = "$env:"

// SourceConfig is one entry of the sources list: the adapter settings and
// the rules applied to everything it returns.
type SourceConfig struct {
	source.Config `mapstructure:",squash"`
	Rules         postprocess.Rules
}

type Config struct {
	Logger     logger.Config
	Storage    storagebuilder.Config
	Digest     digest.Config
	Sources    []SourceConfig
	Rabbit     rabbit.Config
	Metrics    metrics.Config
	HTTPServer internalhttp.Config
}

func NewConfig(configFile string) (Config, error) {
	config := Config{}
	v := viper.New()
	v.SetConfigFile(configFile)

	v.SetDefault("httpServer.host", "127.0.0.1")
	v.SetDefault("httpServer.port", "8005")
	v.SetDefault("logger.level", "INFO")
	v.SetDefault("logger.format", logger.FormatText)
	v.SetDefault("storage.storageType", storagebuilder.TypeSQL)
	v.SetDefault("storage.database.driver", "sqlite")
	v.SetDefault("storage.database.path", "events.db")
	v.SetDefault("digest.htmlPath", digest.DefaultHTMLPath)
	v.SetDefault("digest.zone", storage.DefaultZone)
	v.SetDefault("rabbit.port", "5672")
	v.SetDefault("rabbit.queue", "events")

	err := v.ReadInConfig()
	if err != nil {
		return config, fmt.Errorf("failed to read config %q: %w", configFile, err)
	}
	keys := v.AllKeys()
	for _, key := range keys {
		env := v.GetString(key)
		if strings.HasPrefix(env, envConfigPrefix) {
			err := v.BindEnv(key, env[len(envConfigPrefix):])
			if err != nil {
				return Config{}, fmt.Errorf("failed to prepare config: %w", err)
			}
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return config, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	// Keys inside lists are not visible to AllKeys.
	for i := range config.Sources {
		config.Sources[i].LLM.APIKey = resolveEnv(config.Sources[i].LLM.APIKey)
		config.Sources[i].URL = resolveEnv(config.Sources[i].URL)
	}
	return config, nil
}

func resolveEnv(value string) string {
	if !strings.HasPrefix(value, envConfigPrefix) {
		return value
	}
	return os.Getenv(value[len(envConfigPrefix):])
}
