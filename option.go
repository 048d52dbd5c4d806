// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package rvm

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

type config struct {
	logger     log.Logger
	registerer prometheus.Registerer
	fsync      bool
}

func defaultConfig() *config {
	return &config{
		logger:     log.NewNopLogger(),
		registerer: prometheus.NewRegistry(),
		fsync:      true,
	}
}

// Option configures a Library at Open time.
type Option func(*config)

// WithLogger sets the go-kit logger used for conditions the public API
// has no channel to report (recovery warnings, commit-time I/O failures
// per spec.md §7). Defaults to a no-op logger.
func WithLogger(logger log.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer sets the Prometheus registerer metrics are registered
// against. Defaults to a private registry scoped to this Library instance
// so multiple libraries (e.g. across tests) never collide on metric
// names.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) {
		if reg != nil {
			c.registerer = reg
		}
	}
}

// WithFsync toggles fsyncing data and log files on every write. Defaults
// to true; spec.md §9 notes fsync isn't mandated by the base contract, so
// tests that don't care about real crash durability can disable it for
// speed.
func WithFsync(enabled bool) Option {
	return func(c *config) {
		c.fsync = enabled
	}
}
