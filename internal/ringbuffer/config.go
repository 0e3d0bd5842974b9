package ringbuffer

import (
	"github.com/loopgrid/ringd/internal/errors"
	"github.com/loopgrid/ringd/internal/serialization"
)

const (
	// DefaultCapacity is used when a ringbuffer definition omits capacity.
	DefaultCapacity = 10000
	// MaxBackupCount bounds the combined sync and async backup fan-out.
	MaxBackupCount = 6
)

// Config is the immutable definition of one named ringbuffer. A
// TimeToLiveSeconds of 0 disables expiration entirely.
type Config struct {
	Name              string
	Capacity          int32
	BackupCount       int
	AsyncBackupCount  int
	InMemoryFormat    serialization.InMemoryFormat
	TimeToLiveSeconds int64
}

// TTLMs returns the time-to-live in milliseconds, 0 when disabled.
func (c Config) TTLMs() int64 {
	return c.TimeToLiveSeconds * 1000
}

// TotalBackupCount returns the number of backup replicas this ringbuffer
// wants, sync and async combined.
func (c Config) TotalBackupCount() int {
	return c.BackupCount + c.AsyncBackupCount
}

// Validate checks the definition before a container is built from it.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.InvalidRingbufferName(c.Name, "must not be empty")
	}
	if c.Capacity < 1 {
		return errors.InvalidArgument("ringbuffer capacity must be at least 1", nil).
			WithDetail("name", c.Name).
			WithDetail("capacity", c.Capacity)
	}
	if c.BackupCount < 0 || c.AsyncBackupCount < 0 {
		return errors.InvalidArgument("backup counts must not be negative", nil).
			WithDetail("name", c.Name)
	}
	if c.TotalBackupCount() > MaxBackupCount {
		return errors.InvalidArgument("combined backup count exceeds maximum", nil).
			WithDetail("name", c.Name).
			WithDetail("total", c.TotalBackupCount()).
			WithDetail("max", MaxBackupCount)
	}
	if !c.InMemoryFormat.Valid() {
		return errors.InvalidArgument("unknown in-memory format", nil).
			WithDetail("name", c.Name).
			WithDetail("format", string(c.InMemoryFormat))
	}
	if c.TimeToLiveSeconds < 0 {
		return errors.InvalidArgument("time to live must not be negative", nil).
			WithDetail("name", c.Name).
			WithDetail("time_to_live_seconds", c.TimeToLiveSeconds)
	}
	return nil
}
