// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package eventlog implements the analyzer's append-only event journal.
//
// Every allocation the ledger accepts lands here as one timestamped line:
//
//	[2026-08-23 14:02:11] alloc 128 B at 0x1a2b3c from interp.go:88 (vm.run)
//
// The sink owns its file handle and its own mutex. The ledger finishes
// its critical section before appending, so the journal lock and the
// ledger lock are never held at the same time.
package eventlog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/pkg/errors"
)

// timeLayout is the bracketed timestamp format of a journal line.
const timeLayout = "2006-01-02 15:04:05"

// FormatLine renders one journal line for a message observed at ts.
// Pure function; the terminating newline is added by Append.
func FormatLine(ts time.Time, msg string) string {
	return "[" + ts.Format(timeLayout) + "] " + msg
}

// Sink is an append-only, internally synchronized journal.
//
// A Sink writes each line with a single unbuffered Write, so with a file
// target every line reaches the operating system before Append returns.
type Sink struct {
	mu   sync.Mutex
	w    io.Writer
	file *os.File // owned handle when opened from a path, else nil

	clock quartz.Clock
}

// Open opens (creating if necessary) the journal file at path in append
// mode. The file stays open for the life of the sink.
func Open(path string, clock quartz.Clock) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "eventlog: open %s", path)
	}
	return &Sink{w: f, file: f, clock: clock}, nil
}

// NewWriterSink wraps an arbitrary writer as a journal sink. Used by
// tests and by hosts that route the journal into their own logging.
func NewWriterSink(w io.Writer, clock quartz.Clock) *Sink {
	return &Sink{w: w, clock: clock}
}

// Append writes one timestamped line to the journal.
//
// Write errors are deliberately dropped: the journal is an observability
// aid and must never fail the allocation path it is called from.
func (s *Sink) Append(msg string) {
	line := FormatLine(s.clock.Now(), msg)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, line+"\n")
}

// Close releases the journal file. Sinks over caller-provided writers
// close nothing and return nil.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return errors.Wrap(err, "eventlog: close")
}
