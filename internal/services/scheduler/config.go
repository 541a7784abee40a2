// File: internal/services/scheduler/config.go
package scheduler

import (
	"fmt"
	"time"
)

type Config struct {
	// MaxQueue bounds the jobs waiting behind the active one.
	MaxQueue int
	// IdleTimeout cancels a job that produced no fragment for this long.
	IdleTimeout time.Duration
	// ReleaseGrace is how long a cancelled model call may take to return
	// before the slot is reclaimed anyway.
	ReleaseGrace time.Duration
}

func (c Config) Validate() error {
	if c.MaxQueue < 1 {
		return fmt.Errorf("max queue must be at least 1")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.ReleaseGrace <= 0 {
		return fmt.Errorf("release grace must be positive")
	}
	return nil
}

func DefaultConfig() Config {
	return Config{
		MaxQueue:     8,
		IdleTimeout:  60 * time.Second,
		ReleaseGrace: 10 * time.Second,
	}
}
