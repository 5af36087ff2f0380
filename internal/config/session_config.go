package config

import "time"

type SessionConfig interface {
	GetRefreshInterval() time.Duration
	GetMinRefreshInterval() time.Duration
	GetWatchdogInterval() time.Duration
	GetExpiryWindow() time.Duration
	GetMaxLoginAttempts() int
	GetLockoutDuration() time.Duration
	GetSessionDBPath() string
	GetSessionSealKey() string
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetRefreshInterval() time.Duration {
	return 15 * time.Minute
}

func (Session) GetMinRefreshInterval() time.Duration {
	return 60 * time.Second
}

func (Session) GetWatchdogInterval() time.Duration {
	return 60 * time.Second
}

// GetExpiryWindow is how far ahead of expiry the watchdog asks for a refresh.
func (Session) GetExpiryWindow() time.Duration {
	return 5 * time.Minute
}

func (Session) GetMaxLoginAttempts() int {
	return 5
}

func (Session) GetLockoutDuration() time.Duration {
	return 15 * time.Minute
}

func (Session) GetSessionDBPath() string {
	return GetEnv("SESSION_DB_PATH", "./data/session.db")
}

// GetSessionSealKey is the secret the persisted tokens are sealed with. Empty disables sealing.
func (Session) GetSessionSealKey() string {
	return GetEnv("SESSION_SEAL_KEY", "")
}
