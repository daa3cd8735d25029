package cleanup

import (
	"time"

	"github.com/simbavista/tour360-go/pkg/config"
)

// Config controls the cleanup worker cadence and reporting.
type Config struct {
	Interval         time.Duration
	VerboseReporting bool
}

// NewConfigFromEnv builds worker configuration from the environment.
func NewConfigFromEnv() *Config {
	return &Config{
		Interval:         config.CleanupInterval,
		VerboseReporting: config.CleanupVerbose,
	}
}
