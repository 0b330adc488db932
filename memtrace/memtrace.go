// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import (
	"fmt"
	"os"

	"go.uber.org/atomic"
)

// The process-wide default analyzer. Runtimes that instrument allocation
// sites mechanically call the package-level functions below instead of
// threading an *Analyzer through every call path.
var (
	std  atomic.Pointer[Analyzer]
	gate atomic.Bool
)

// Init creates the process-wide default analyzer.
//
// Call it once at runtime startup, before the first recorded event:
//
//	func main() {
//		if err := memtrace.Init(); err != nil {
//			log.Fatal(err)
//		}
//		defer memtrace.Fini()
//		// ... run the interpreter
//	}
//
// Init is safe to call multiple times; calls after the first are no-ops.
// The error is the journal-open failure from New.
func Init(opts ...Option) error {
	if std.Load() != nil {
		return nil
	}
	a, err := New(opts...)
	if err != nil {
		return err
	}
	if !std.CompareAndSwap(nil, a) {
		// Lost to a concurrent Init; discard the spare.
		_ = a.Close()
		return nil
	}
	gate.Store(true)
	return nil
}

// Fini prints a closing summary to stderr, closes the default analyzer's
// journal and discards the instance. Events recorded after Fini are
// dropped. Safe to call without Init and safe to call twice.
func Fini() {
	gate.Store(false)
	a := std.Swap(nil)
	if a == nil {
		return
	}

	stats := a.Stats()
	health := a.Health()
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "==================\n")
	fmt.Fprintf(os.Stderr, "Memory Analyzer Summary\n")
	fmt.Fprintf(os.Stderr, "==================\n")
	fmt.Fprintf(os.Stderr, "%d allocation(s), %d freed, %d live\n",
		stats.Allocations, stats.Deallocations, stats.LiveCount)
	fmt.Fprintf(os.Stderr, "overall health %.1f/100\n", health.Overall)
	fmt.Fprintf(os.Stderr, "==================\n\n")

	_ = a.Close()
}

// Enabled reports whether the default analyzer exists and is recording.
func Enabled() bool {
	return gate.Load() && std.Load() != nil
}

// Enable resumes recording on the default analyzer after a Disable.
func Enable() { gate.Store(true) }

// Disable pauses recording. Events reported while disabled are dropped
// cheaply at the call site; the ledger keeps what it already has.
func Disable() { gate.Store(false) }

// Default returns the default analyzer, or nil before Init / after Fini.
// Use it to reach the query surface that has no package-level wrapper.
func Default() *Analyzer { return std.Load() }

// RecordAllocation forwards to the default analyzer. Dropped while
// disabled or before Init.
func RecordAllocation(addr Address, size uint64, site string) {
	if !gate.Load() {
		return
	}
	if a := std.Load(); a != nil {
		a.RecordAllocation(addr, size, site)
	}
}

// RecordDeallocation forwards to the default analyzer. Dropped while
// disabled or before Init.
func RecordDeallocation(addr Address) {
	if !gate.Load() {
		return
	}
	if a := std.Load(); a != nil {
		a.RecordDeallocation(addr)
	}
}

// RecordAccess forwards to the default analyzer. Dropped while disabled
// or before Init.
func RecordAccess(addr Address, offset, length uint64) {
	if !gate.Load() {
		return
	}
	if a := std.Load(); a != nil {
		a.RecordAccess(addr, offset, length)
	}
}

// GetAllocation queries the default analyzer. Before Init (and after
// Fini) every address reports ErrNotFound.
func GetAllocation(addr Address) (AllocationInfo, error) {
	a := std.Load()
	if a == nil {
		return AllocationInfo{}, ErrNotFound
	}
	return a.GetAllocation(addr)
}

// Usage returns the default analyzer's full report, or a zero report
// before Init.
func Usage() UsageReport {
	a := std.Load()
	if a == nil {
		return UsageReport{}
	}
	return a.Usage()
}

// IncActiveRegions bumps the default analyzer's region gauge.
func IncActiveRegions() {
	if !gate.Load() {
		return
	}
	if a := std.Load(); a != nil {
		a.IncActiveRegions()
	}
}

// DecActiveRegions drops the default analyzer's region gauge.
func DecActiveRegions() {
	if !gate.Load() {
		return
	}
	if a := std.Load(); a != nil {
		a.DecActiveRegions()
	}
}

// IncActiveReferences bumps the default analyzer's reference gauge.
func IncActiveReferences() {
	if !gate.Load() {
		return
	}
	if a := std.Load(); a != nil {
		a.IncActiveReferences()
	}
}

// DecActiveReferences drops the default analyzer's reference gauge.
func DecActiveReferences() {
	if !gate.Load() {
		return
	}
	if a := std.Load(); a != nil {
		a.DecActiveReferences()
	}
}

// IncActiveLinears bumps the default analyzer's linear gauge.
func IncActiveLinears() {
	if !gate.Load() {
		return
	}
	if a := std.Load(); a != nil {
		a.IncActiveLinears()
	}
}

// DecActiveLinears drops the default analyzer's linear gauge.
func DecActiveLinears() {
	if !gate.Load() {
		return
	}
	if a := std.Load(); a != nil {
		a.DecActiveLinears()
	}
}
