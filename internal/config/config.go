package config

import "time"

// Config is the process-level configuration surface. The subsystem only
// needs the auth service base address, the token file location, and the
// refresh lead time; everything else is supplied by the embedding
// application.
type Config interface {
	GetAppName() string
	GetAuthBaseURL() string
	GetTokenFile() string
	GetRefreshLeadTime() time.Duration
	GetEnv() string
}

type mainConfig struct {
	EnvVars
}

func New() Config {
	return mainConfig{}
}
