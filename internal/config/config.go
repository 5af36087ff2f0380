package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config interface {
	EnvConfig
	BackendConfig
	OAuthConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetLogFormat() string
}

type BackendConfig interface {
	GetBackendURL() string
	GetBackendAnonKey() string
	GetWeatherFunction() string
}

type mainConfig struct {
	EnvVars
	Backend
	OAuth
	Session
	Storage
}

func New() Config {
	return mainConfig{}
}

// Load reads envFile into the process environment (existing variables win) and returns the config.
// A missing default file is not an error; a missing explicitly named file is.
func Load(envFile string) (Config, error) {
	path := envFile
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if envFile != "" || !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "[config.Load] %s", path)
		}
	}
	return New(), nil
}
