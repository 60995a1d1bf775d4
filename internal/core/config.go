package core

import (
	"time"
)

type Config struct {
	Spotify   SpotifyConfig
	Store     StoreConfig
	Convert   ConvertConfig
	Admission AdmissionConfig
	Server    ServerConfig
	Log       LogConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
}

type StoreConfig struct {
	Path         string
	MaxOpenConns int
	MaxIdleConns int
	// MemoTTL bounds the seconds-scale memoization of repeated resolution
	// lookups for the same identifier.
	MemoTTL  time.Duration
	MemoSize int
	// BloomCapacity and BloomFalsePositiveRate size the negative-lookup filter.
	BloomCapacity          int
	BloomFalsePositiveRate float64
}

type ConvertConfig struct {
	// Poll-with-backoff fallback bounds. Tuned empirically, not a contract.
	PollAttempts     int
	PollInitialDelay time.Duration
	PollBackoff      float64
	PollMaxWait      time.Duration
}

type AdmissionConfig struct {
	BotSecret      string
	BotLimit       int
	APIKeyLimit    int
	UserLimit      int
	AnonymousLimit int
	// KeyLimits overrides the hourly quota for individual API keys.
	KeyLimits map[string]int
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:                   "./tunebridge.db",
			MaxOpenConns:           8,
			MaxIdleConns:           4,
			MemoTTL:                30 * time.Second,
			MemoSize:               1024,
			BloomCapacity:          100000,
			BloomFalsePositiveRate: 0.001,
		},
		Convert: ConvertConfig{
			PollAttempts:     12,
			PollInitialDelay: 400 * time.Millisecond,
			PollBackoff:      1.35,
			PollMaxWait:      30 * time.Second,
		},
		Admission: AdmissionConfig{
			BotLimit:       3600,
			APIKeyLimit:    600,
			UserLimit:      300,
			AnonymousLimit: 60,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
