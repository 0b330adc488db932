// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import (
	"fmt"
	"sync"

	"github.com/coder/quartz"
	"go.uber.org/atomic"

	"github.com/netesy/limitly-sub009/internal/callsite"
	"github.com/netesy/limitly-sub009/internal/eventlog"
	"github.com/netesy/limitly-sub009/internal/gid"
)

// maxAlignment is the strictest alignment the runtime guarantees for raw
// allocations. Padding is the distance of the allocation base from that
// boundary: address mod maxAlignment.
const maxAlignment = 16

// Analyzer is the ledger and analysis engine for one runtime instance.
//
// The runtime reports allocation, deallocation and access events into the
// analyzer; the query surface derives fragmentation, temporal, access,
// thread and health analyses from the accumulated ledger on demand.
//
// All ledger state sits behind one exclusive mutex, held for the full
// duration of every recording operation and every report computation, so
// any report describes the ledger at a single instant. The event journal
// and the ownership counters synchronize independently and are never
// touched while the ledger lock is held.
type Analyzer struct {
	mu      sync.Mutex
	live    map[Address]*record
	history []*record
	sites   map[string]*siteStats

	liveBytes     uint64 // running total of live allocation sizes
	peakBytes     uint64
	largestAlloc  uint64
	allocations   uint64
	deallocations uint64

	journal *eventlog.Sink
	clock   quartz.Clock

	// Ownership-construct gauges, bumped straight from runtime hot
	// paths without the ledger lock. Reports read them atomically and
	// may observe them slightly ahead of or behind the ledger.
	activeRegions    atomic.Int64
	activeReferences atomic.Int64
	activeLinears    atomic.Int64
}

// New builds an Analyzer and opens its event journal.
//
// Opening the journal is the only fallible step: on failure no analyzer
// is returned. By default the journal appends to DefaultLogPath; see
// WithLogPath and WithLogWriter.
func New(opts ...Option) (*Analyzer, error) {
	cfg := config{
		logPath: DefaultLogPath,
		clock:   quartz.NewReal(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var journal *eventlog.Sink
	if cfg.logWriter != nil {
		journal = eventlog.NewWriterSink(cfg.logWriter, cfg.clock)
	} else {
		var err error
		journal, err = eventlog.Open(cfg.logPath, cfg.clock)
		if err != nil {
			return nil, err
		}
	}

	return &Analyzer{
		live:    make(map[Address]*record),
		sites:   make(map[string]*siteStats),
		journal: journal,
		clock:   cfg.clock,
	}, nil
}

// Close releases the event journal. Recording into a closed analyzer is
// not meaningful; hosts call Close after the runtime has quiesced.
func (a *Analyzer) Close() error {
	return a.journal.Close()
}

// RecordAllocation records that the runtime produced an allocation of
// size bytes at addr, attributed to the given call site.
//
// An empty site is resolved by capturing the caller's frame. If addr is
// already live the new record silently replaces the old one: the stale
// record leaves the live set without entering the historical archive, and
// its bytes leave the running total, so totals always equal the sum of
// live sizes.
//
// One line is appended to the event journal after the ledger update
// completes.
func (a *Analyzer) RecordAllocation(addr Address, size uint64, site string) {
	if site == "" {
		site = callsite.Capture(0)
	} else {
		site = callsite.Canonical(site)
	}
	goroutine := gid.Get()

	a.mu.Lock()
	now := a.clock.Now()

	if old, ok := a.live[addr]; ok {
		a.liveBytes -= old.size
	}

	rec := &record{
		addr:        addr,
		size:        size,
		site:        site,
		goroutine:   goroutine,
		allocatedAt: now,
		padding:     uint64(addr) % maxAlignment,
	}
	a.live[addr] = rec

	a.liveBytes += size
	if a.liveBytes > a.peakBytes {
		a.peakBytes = a.liveBytes
	}
	if size > a.largestAlloc {
		a.largestAlloc = size
	}
	a.allocations++
	a.recordSiteLocked(site, size)
	a.mu.Unlock()

	a.journal.Append(fmt.Sprintf("alloc %d B at %s from %s", size, addr, site))
}

// RecordDeallocation records that the runtime released addr.
//
// Unknown addresses are silent no-ops, which makes double frees and
// frees of foreign pointers harmless to the ledger. A released record is
// stamped with the free time and moved to the historical archive.
func (a *Analyzer) RecordDeallocation(addr Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.live[addr]
	if !ok {
		return
	}

	delete(a.live, addr)
	a.liveBytes -= rec.size
	a.deallocations++

	rec.freed = true
	rec.freedAt = a.clock.Now()
	a.history = append(a.history, rec)
}

// RecordAccess records one access of length bytes at offset inside the
// allocation at addr. Unknown addresses are silent no-ops.
func (a *Analyzer) RecordAccess(addr Address, offset, length uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.live[addr]
	if !ok {
		return
	}
	rec.accesses = append(rec.accesses, AccessEvent{Offset: offset, Length: length})
}

// GetAllocation returns an owned copy of the live record at addr, or
// ErrNotFound. The copy shares nothing with ledger state.
func (a *Analyzer) GetAllocation(addr Address) (AllocationInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.live[addr]
	if !ok {
		return AllocationInfo{}, ErrNotFound
	}
	return rec.info(), nil
}

// OwnershipCounts is a weakly consistent snapshot of the three
// ownership-construct gauges.
type OwnershipCounts struct {
	Regions    int64 `json:"regions"`
	References int64 `json:"references"`
	Linears    int64 `json:"linears"`
}

// IncActiveRegions notes that the runtime opened a region.
func (a *Analyzer) IncActiveRegions() { a.activeRegions.Inc() }

// DecActiveRegions notes that the runtime closed a region.
func (a *Analyzer) DecActiveRegions() { a.activeRegions.Dec() }

// IncActiveReferences notes that the runtime created a reference.
func (a *Analyzer) IncActiveReferences() { a.activeReferences.Inc() }

// DecActiveReferences notes that the runtime dropped a reference.
func (a *Analyzer) DecActiveReferences() { a.activeReferences.Dec() }

// IncActiveLinears notes that the runtime created a linear value.
func (a *Analyzer) IncActiveLinears() { a.activeLinears.Inc() }

// DecActiveLinears notes that the runtime consumed a linear value.
func (a *Analyzer) DecActiveLinears() { a.activeLinears.Dec() }

// OwnershipCounts reads the three gauges without taking the ledger lock.
func (a *Analyzer) OwnershipCounts() OwnershipCounts {
	return OwnershipCounts{
		Regions:    a.activeRegions.Load(),
		References: a.activeReferences.Load(),
		Linears:    a.activeLinears.Load(),
	}
}
