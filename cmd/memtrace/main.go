// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package main implements the memtrace CLI tool.
//
// The memtrace tool replays recorded allocation traces from the Limitly
// runtime through the memory-behavior analyzer and prints the resulting
// usage report. It works by:
//
//  1. Parsing a line-oriented trace of alloc/free/access events
//  2. Replaying every event into a fresh analyzer ledger
//  3. Rendering the aggregated report as text or JSON
//
// Usage:
//
//	memtrace replay trace.txt            # Replay a trace, print the report
//	memtrace replay -format json trace.txt
//	memtrace replay -config memtrace.yaml trace.txt
//
// This is the CLI entry point for the standalone replay tool.
package main

import (
	"fmt"
	"os"

	"github.com/netesy/limitly-sub009/memtrace"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "replay":
		replayCommand(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("memtrace version %s\n", memtrace.Version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`memtrace - Limitly Memory Trace Analyzer

USAGE:
    memtrace <command> [arguments]

COMMANDS:
    replay     Replay an allocation trace and print the usage report
    version    Show version information
    help       Show this help message

EXAMPLES:
    # Replay a trace and print the text report
    memtrace replay trace.txt

    # Print the report as JSON
    memtrace replay -format json trace.txt

    # Route the event journal and pick the format from a config file
    memtrace replay -config memtrace.yaml trace.txt

TRACE FORMAT:
    One event per line; blank lines and lines starting with # are skipped.

        alloc <addr> <size> <call site ...>
        free <addr>
        access <addr> <offset> <length>
        region +|-
        ref +|-
        linear +|-

    Addresses accept decimal or 0x-prefixed hex.

ABOUT:
    memtrace is the offline companion to the in-process analyzer: the
    Limitly runtime records its allocator events to a trace, and this tool
    rebuilds the full ledger from that trace to produce fragmentation,
    temporal, access-pattern, thread and health diagnostics after the run.

`)
}
