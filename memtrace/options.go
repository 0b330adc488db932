// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import (
	"io"

	"github.com/coder/quartz"
)

// DefaultLogPath is where the event journal lands when no option
// overrides it.
const DefaultLogPath = "memory.log"

type config struct {
	logPath   string
	logWriter io.Writer
	clock     quartz.Clock
}

// Option configures an Analyzer at construction.
type Option func(*config)

// WithLogPath routes the event journal to path instead of DefaultLogPath.
// The file is opened in append mode and kept open until Close.
func WithLogPath(path string) Option {
	return func(c *config) { c.logPath = path }
}

// WithLogWriter routes the event journal into w instead of a file. Hosts
// use this to fold the journal into their own logging; tests use it to
// capture lines in memory.
func WithLogWriter(w io.Writer) Option {
	return func(c *config) { c.logWriter = w }
}

// WithClock substitutes the time source. Used for tests.
func WithClock(clock quartz.Clock) Option {
	return func(c *config) { c.clock = clock }
}
