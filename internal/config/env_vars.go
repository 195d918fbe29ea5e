package config

import (
	"os"
	"time"

	"github.com/brixsport/go-auth-client/token"
)

const (
	appNameVar   = "BRIX_APP_NAME"
	baseURLVar   = "BRIX_AUTH_URL"
	tokenFileVar = "BRIX_TOKEN_FILE"
	leadTimeVar  = "BRIX_REFRESH_LEAD_TIME"
)

type EnvVars struct{}

var _ Config = mainConfig{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "BrixSport Logger")
}

// GetAuthBaseURL returns the base URL of the auth service
// (e.g. "https://api.brixsport.app").
func (EnvVars) GetAuthBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

func (EnvVars) GetTokenFile() string {
	return GetEnv(tokenFileVar, "./data/session.json")
}

// GetRefreshLeadTime returns how long before expiry the proactive refresh
// fires. Malformed values fall back to the default.
func (EnvVars) GetRefreshLeadTime() time.Duration {
	raw := GetEnv(leadTimeVar, "")
	if raw == "" {
		return token.DefaultLeadTime
	}
	leadTime, err := time.ParseDuration(raw)
	if err != nil || leadTime <= 0 {
		return token.DefaultLeadTime
	}
	return leadTime
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
