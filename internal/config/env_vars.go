package config

import (
	"os"
	"strings"
)

const (
	appNameVar      = "APP_NAME"
	logLevelVar     = "LOG_LEVEL"
	logFormatVar    = "LOG_FORMAT"
	backendURLVar   = "BACKEND_URL"
	anonKeyVar      = "BACKEND_ANON_KEY"
	weatherFuncVar  = "WEATHER_FUNCTION"
	defaultAppName  = "Climate Crusade"
	defaultFunction = "get-weather"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, defaultAppName)
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetLogFormat() string {
	return GetEnv(logFormatVar, "console")
}

type Backend struct{}

var _ BackendConfig = Backend{}

// GetBackendURL returns the base URL of the backend-as-a-service project (e.g., "https://xyz.example.co")
// with any trailing slash removed.
func (Backend) GetBackendURL() string {
	return strings.TrimRight(GetEnv(backendURLVar, "http://localhost:54321"), "/")
}

func (Backend) GetBackendAnonKey() string {
	return GetEnv(anonKeyVar, "")
}

func (Backend) GetWeatherFunction() string {
	return GetEnv(weatherFuncVar, defaultFunction)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
