// Package config holds broker settings populated from the environment
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"google.golang.org/grpc/backoff"
)

// Broker groups all tunables of the broker process.
// Every field can be overridden via BROKER_* environment variables.
type Broker struct {
	// Binder worker pool size
	Workers int `default:"4"`
	// how often pending claims are requeued
	ResyncInterval time.Duration `split_words:"true" default:"5s"`
	// how often released volumes are swept
	ReclaimInterval time.Duration `split_words:"true" default:"30s"`

	// provisioning retry policy
	RetryBaseDelay   time.Duration `split_words:"true" default:"250ms"`
	RetryMultiplier  float64       `split_words:"true" default:"1.6"`
	RetryJitter      float64       `split_words:"true" default:"0.2"`
	RetryMaxDelay    time.Duration `split_words:"true" default:"30s"`
	RetryMaxAttempts int           `split_words:"true" default:"5"`

	// listen address of the REST endpoint
	RestAddress string `split_words:"true" default:":8055"`

	// raw capacity budgets of the reference backends,
	// human-readable quantities like "1Ti"
	BlockPool     string `split_words:"true" default:"1Ti"`
	FilePool      string `split_words:"true" default:"1Ti"`
	ObjectPool    string `split_words:"true" default:"4Ti"`
	EphemeralPool string `split_words:"true" default:"256Gi"`

	LogPath  string `split_words:"true" default:""`
	LogLevel string `split_words:"true" default:"info"`
}

// Load populates Broker from BROKER_* environment variables
func Load() (*Broker, error) {
	cfg := &Broker{}
	if err := envconfig.Process("broker", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BackoffConfig converts the retry knobs into a grpc backoff config
func (c *Broker) BackoffConfig() *backoff.Config {
	return &backoff.Config{
		BaseDelay:  c.RetryBaseDelay,
		Multiplier: c.RetryMultiplier,
		Jitter:     c.RetryJitter,
		MaxDelay:   c.RetryMaxDelay,
	}
}
