// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import "time"

// LedgerStats are the raw ledger counters.
type LedgerStats struct {
	LiveBytes         uint64 `json:"live_bytes"`
	PeakBytes         uint64 `json:"peak_bytes"`
	LargestAllocation uint64 `json:"largest_allocation"`
	Allocations       uint64 `json:"allocations"`
	Deallocations     uint64 `json:"deallocations"`
	LiveCount         int    `json:"live_count"`
	HistoricalCount   int    `json:"historical_count"`
}

// UsageReport is the full aggregated analysis of one analyzer at one
// instant. Every section is computed inside the same critical section,
// so sections never disagree about ledger state; only the ownership
// gauges, which are read atomically outside the ledger lock, may run
// slightly ahead or behind.
type UsageReport struct {
	GeneratedAt      time.Time           `json:"generated_at"`
	Stats            LedgerStats         `json:"stats"`
	Ownership        OwnershipCounts     `json:"ownership"`
	Leaks            LeakReport          `json:"leaks"`
	Fragmentation    FragmentationReport `json:"fragmentation"`
	SizeDistribution SizeDistribution    `json:"size_distribution"`
	Temporal         TemporalReport      `json:"temporal"`
	Threads          []ThreadStat        `json:"threads,omitempty"`
	Alignment        AlignmentReport     `json:"alignment"`
	Cache            CacheReport         `json:"cache"`
	AccessPatterns   []AccessSummary     `json:"access_patterns,omitempty"`
	Recommendations  []string            `json:"recommendations"`
	Health           HealthReport        `json:"health"`
}

// Usage computes the full usage report.
//
// The report owns all of its data: slices and maps are copies, safe to
// hold, render or marshal after the ledger has moved on. Individual
// getters (Stats, Leaks, Fragmentation, ...) compute their sections with
// exactly the same algorithms, so a getter called on a quiet ledger
// agrees with the corresponding report section.
func (a *Analyzer) Usage() UsageReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usageLocked()
}

func (a *Analyzer) usageLocked() UsageReport {
	now := a.clock.Now()

	frag := a.fragmentationLocked()
	leaks := a.leaksLocked(now)
	temporal := a.temporalLocked()
	summaries, cache := a.accessLocked()
	align := a.alignmentLocked()

	return UsageReport{
		GeneratedAt:      now,
		Stats:            a.statsLocked(),
		Ownership:        a.OwnershipCounts(),
		Leaks:            leaks,
		Fragmentation:    frag,
		SizeDistribution: a.sizeDistributionLocked(),
		Temporal:         temporal,
		Threads:          a.threadsLocked(),
		Alignment:        align,
		Cache:            cache,
		AccessPatterns:   summaries,
		Recommendations:  buildRecommendations(frag, align, temporal.AverageLifetime, len(a.history)),
		Health:           buildHealth(frag, cache, align, len(leaks.Candidates), len(a.live), temporal.AverageLifetime),
	}
}

func (a *Analyzer) statsLocked() LedgerStats {
	return LedgerStats{
		LiveBytes:         a.liveBytes,
		PeakBytes:         a.peakBytes,
		LargestAllocation: a.largestAlloc,
		Allocations:       a.allocations,
		Deallocations:     a.deallocations,
		LiveCount:         len(a.live),
		HistoricalCount:   len(a.history),
	}
}

// Stats returns the raw ledger counters.
func (a *Analyzer) Stats() LedgerStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statsLocked()
}

// Leaks returns the live allocations older than the leak age.
func (a *Analyzer) Leaks() LeakReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.leaksLocked(a.clock.Now())
}

// Fragmentation returns the gap analysis of the live address ranges.
func (a *Analyzer) Fragmentation() FragmentationReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fragmentationLocked()
}

// SizeDistribution returns the size-class histograms.
func (a *Analyzer) SizeDistribution() SizeDistribution {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sizeDistributionLocked()
}

// Temporal returns allocation rate, lifetime and time patterns.
func (a *Analyzer) Temporal() TemporalReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.temporalLocked()
}

// Threads returns per-goroutine allocation stats.
func (a *Analyzer) Threads() []ThreadStat {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.threadsLocked()
}

// Alignment returns padding waste over the live set.
func (a *Analyzer) Alignment() AlignmentReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alignmentLocked()
}

// Cache returns the synthetic cache model's verdict.
func (a *Analyzer) Cache() CacheReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, cache := a.accessLocked()
	return cache
}

// AccessPatterns returns the per-allocation access classification.
func (a *Analyzer) AccessPatterns() []AccessSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	summaries, _ := a.accessLocked()
	return summaries
}

// Recommendations returns the advisory lines for the current ledger.
func (a *Analyzer) Recommendations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	frag := a.fragmentationLocked()
	align := a.alignmentLocked()
	temporal := a.temporalLocked()
	return buildRecommendations(frag, align, temporal.AverageLifetime, len(a.history))
}

// Health returns the scored summary of the current ledger.
func (a *Analyzer) Health() HealthReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	frag := a.fragmentationLocked()
	_, cache := a.accessLocked()
	align := a.alignmentLocked()
	leaks := a.leaksLocked(now)
	temporal := a.temporalLocked()
	return buildHealth(frag, cache, align, len(leaks.Candidates), len(a.live), temporal.AverageLifetime)
}
