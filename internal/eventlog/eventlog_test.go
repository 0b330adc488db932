// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eventlog

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestFormatLine(t *testing.T) {
	ts := time.Date(2026, time.August, 23, 14, 2, 11, 0, time.UTC)

	got := FormatLine(ts, "alloc 128 B at 0x1000")
	require.Equal(t, "[2026-08-23 14:02:11] alloc 128 B at 0x1000", got)
}

func TestAppend_WritesTimestampedLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, quartz.NewMock(t))

	sink.Append("first")
	sink.Append("second")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	shape := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] `)
	require.Regexp(t, shape, lines[0])
	require.True(t, strings.HasSuffix(lines[0], "first"))
	require.True(t, strings.HasSuffix(lines[1], "second"))
}

func TestOpen_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.log")

	sink, err := Open(path, quartz.NewReal())
	require.NoError(t, err)
	sink.Append("run one")
	require.NoError(t, sink.Close())

	sink, err = Open(path, quartz.NewReal())
	require.NoError(t, err)
	sink.Append("run two")
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Contains(t, string(data), "run one")
	require.Contains(t, string(data), "run two")
	require.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestOpen_FailsOnUnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "memory.log")

	_, err := Open(path, quartz.NewReal())
	require.Error(t, err)
	require.Contains(t, err.Error(), "eventlog: open")
}

func TestAppend_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, quartz.NewReal())

	const (
		writers = 8
		perG    = 200
	)

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			for j := 0; j < perG; j++ {
				sink.Append("event")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, writers*perG)
	for _, line := range lines {
		require.True(t, strings.HasSuffix(line, "] event"), "torn line: %q", line)
	}
}

func TestClose_NilForWriterSink(t *testing.T) {
	sink := NewWriterSink(&bytes.Buffer{}, quartz.NewReal())
	require.NoError(t, sink.Close())
}
