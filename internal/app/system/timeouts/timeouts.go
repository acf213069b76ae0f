// Package timeouts centralizes the context budgets used around backend
// calls.
//
//   - Ping: health checks
//   - Short: single-document reads and writes
//   - Medium: list queries and simple multi-step operations
//   - Long: workflow decisions and anything touching several collections
//   - Maintenance: bulk clears and presence sweeps
//
// Values start at the defaults below and may be overridden once at startup
// with Configure.
package timeouts

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config holds every budget. Zero fields keep their current value when
// passed to Configure.
type Config struct {
	Ping        time.Duration
	Short       time.Duration
	Medium      time.Duration
	Long        time.Duration
	Maintenance time.Duration
}

// Defaults are used until Configure is called.
var Defaults = Config{
	Ping:        2 * time.Second,
	Short:       5 * time.Second,
	Medium:      10 * time.Second,
	Long:        30 * time.Second,
	Maintenance: 60 * time.Second,
}

var current atomic.Pointer[Config]

func init() { Reset() }

func get() *Config { return current.Load() }

func Ping() time.Duration        { return get().Ping }
func Short() time.Duration       { return get().Short }
func Medium() time.Duration      { return get().Medium }
func Long() time.Duration        { return get().Long }
func Maintenance() time.Duration { return get().Maintenance }

// Current returns a copy of the active configuration.
func Current() Config { return *get() }

// Configure overrides the non-zero fields of cfg.
func Configure(cfg Config) {
	next := *get()
	if cfg.Ping > 0 {
		next.Ping = cfg.Ping
	}
	if cfg.Short > 0 {
		next.Short = cfg.Short
	}
	if cfg.Medium > 0 {
		next.Medium = cfg.Medium
	}
	if cfg.Long > 0 {
		next.Long = cfg.Long
	}
	if cfg.Maintenance > 0 {
		next.Maintenance = cfg.Maintenance
	}
	current.Store(&next)
}

// Reset restores the defaults.
func Reset() {
	d := Defaults
	current.Store(&d)
}

// WithTimeout is context.WithTimeout whose cancel func logs a warning when
// the deadline was hit, naming the operation.
//
//	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.log, "process voucher request")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout))
		}
		cancel()
	}
}
