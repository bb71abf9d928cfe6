package config

import (
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5"`
	Environment               string        `koanf:"environment" default:"development"`
	MediaRoot                 string        `koanf:"media_root" default:"./media"`
}

const (
	configFileENV  = "CONFIG_FILE"
	environmentENV = "ENVIRONMENT"
)

// New loads config in increasing precedence: struct-tag defaults, the YAML
// file named by CONFIG_FILE (./config.yaml when unset, missing files are
// fine), then individual environment variables.
func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = "./config.yaml"
	}
	err := k.Load(file.Provider(configFile), yaml.Parser())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrapf(err, "loading config file %s", configFile)
	}
	if err == nil {
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	loadEnvOverrides(cfg)

	if cfg.DatabaseFilePath == "" {
		return nil, errors.Errorf(
			"missing required config: set DATABASE_FILE_PATH or database_file_path in %s", configFile)
	}

	return cfg, nil
}

func loadEnvOverrides(cfg *Config) {
	if v := os.Getenv(environmentENV); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("DATABASE_FILE_PATH"); v != "" {
		cfg.DatabaseFilePath = v
	}
	if v, err := strconv.ParseBool(os.Getenv("DATABASE_DEBUG")); err == nil {
		cfg.DatabaseDebug = v
	}
	if v := os.Getenv("MEDIA_ROOT"); v != "" {
		cfg.MediaRoot = v
	}
}
