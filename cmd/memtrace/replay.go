// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// replay.go implements the 'memtrace replay' command.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/netesy/limitly-sub009/memtrace"
)

// replayCommand implements the 'memtrace replay' command.
//
// Flow:
//  1. Resolve configuration (defaults, -config file, flags)
//  2. Open the trace and a fresh analyzer
//  3. Replay every event through a parse/apply pipeline
//  4. Render the usage report to stdout
//
// Example:
//
//	memtrace replay trace.txt
//	memtrace replay -format json -log events.log trace.txt
func replayCommand(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	format := fs.String("format", "", "report format: text or json (overrides config)")
	logPath := fs.String("log", "", "event journal path (overrides config)")
	verbose := fs.Bool("verbose", false, "log every replayed event")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: replay expects exactly one trace file")
		fmt.Fprintln(os.Stderr, "Usage: memtrace replay [flags] <trace-file>")
		os.Exit(1)
	}

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *format != "" {
		cfg.Format = *format
	}
	if *logPath != "" {
		cfg.LogPath = *logPath
	}
	if *verbose {
		cfg.Verbose = true
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	}))

	trace, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer trace.Close()

	analyzer, err := memtrace.New(memtrace.WithLogPath(cfg.LogPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer analyzer.Close()

	n, err := replayTrace(context.Background(), analyzer, trace, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("replay complete", "events", n, "journal", cfg.LogPath)

	report := analyzer.Usage()
	switch cfg.Format {
	case "json":
		out, err := report.FormatJSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(out)
	default:
		fmt.Print(report.FormatText())
	}
}

// event is one parsed trace line.
type event struct {
	op     string
	addr   memtrace.Address
	size   uint64
	offset uint64
	length uint64
	site   string
	delta  int // +1 or -1 for the counter ops
}

// replayTrace streams trace lines through a parse stage and an apply
// stage, connected by a channel. Parsing stops at the first malformed
// line; the error names the line number.
func replayTrace(ctx context.Context, analyzer *memtrace.Analyzer, trace io.Reader, logger *slog.Logger) (int, error) {
	events := make(chan event, 256)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(events)

		scanner := bufio.NewScanner(trace)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			ev, err := parseEvent(line)
			if err != nil {
				return errors.Wrapf(err, "trace line %d", lineNo)
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return errors.Wrap(scanner.Err(), "read trace")
	})

	applied := 0
	g.Go(func() error {
		for ev := range events {
			apply(analyzer, ev)
			applied++
			logger.Debug("replayed", "op", ev.op, "addr", ev.addr)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return applied, err
	}
	return applied, nil
}

// parseEvent turns one non-empty trace line into an event.
//
// Accepted forms:
//
//	alloc <addr> <size> <call site ...>
//	free <addr>
//	access <addr> <offset> <length>
//	region +|-
//	ref +|-
//	linear +|-
func parseEvent(line string) (event, error) {
	fields := strings.Fields(line)
	op := fields[0]

	switch op {
	case "alloc":
		if len(fields) < 3 {
			return event{}, errors.Errorf("alloc wants addr, size and call site: %q", line)
		}
		addr, err := parseAddr(fields[1])
		if err != nil {
			return event{}, err
		}
		size, err := strconv.ParseUint(fields[2], 0, 64)
		if err != nil {
			return event{}, errors.Wrapf(err, "size %q", fields[2])
		}
		site := ""
		if len(fields) > 3 {
			site = strings.Join(fields[3:], " ")
		}
		return event{op: op, addr: addr, size: size, site: site}, nil

	case "free":
		if len(fields) != 2 {
			return event{}, errors.Errorf("free wants one address: %q", line)
		}
		addr, err := parseAddr(fields[1])
		if err != nil {
			return event{}, err
		}
		return event{op: op, addr: addr}, nil

	case "access":
		if len(fields) != 4 {
			return event{}, errors.Errorf("access wants addr, offset and length: %q", line)
		}
		addr, err := parseAddr(fields[1])
		if err != nil {
			return event{}, err
		}
		offset, err := strconv.ParseUint(fields[2], 0, 64)
		if err != nil {
			return event{}, errors.Wrapf(err, "offset %q", fields[2])
		}
		length, err := strconv.ParseUint(fields[3], 0, 64)
		if err != nil {
			return event{}, errors.Wrapf(err, "length %q", fields[3])
		}
		return event{op: op, addr: addr, offset: offset, length: length}, nil

	case "region", "ref", "linear":
		if len(fields) != 2 || (fields[1] != "+" && fields[1] != "-") {
			return event{}, errors.Errorf("%s wants + or -: %q", op, line)
		}
		delta := 1
		if fields[1] == "-" {
			delta = -1
		}
		return event{op: op, delta: delta}, nil

	default:
		return event{}, errors.Errorf("unknown event %q", op)
	}
}

// apply feeds one event into the analyzer.
func apply(a *memtrace.Analyzer, ev event) {
	switch ev.op {
	case "alloc":
		a.RecordAllocation(ev.addr, ev.size, ev.site)
	case "free":
		a.RecordDeallocation(ev.addr)
	case "access":
		a.RecordAccess(ev.addr, ev.offset, ev.length)
	case "region":
		if ev.delta > 0 {
			a.IncActiveRegions()
		} else {
			a.DecActiveRegions()
		}
	case "ref":
		if ev.delta > 0 {
			a.IncActiveReferences()
		} else {
			a.DecActiveReferences()
		}
	case "linear":
		if ev.delta > 0 {
			a.IncActiveLinears()
		} else {
			a.DecActiveLinears()
		}
	}
}

// parseAddr accepts decimal or 0x-prefixed hex addresses.
func parseAddr(s string) (memtrace.Address, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "address %q", s)
	}
	return memtrace.Address(v), nil
}
