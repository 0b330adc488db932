// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import (
	"sort"
	"time"
)

// Temporal pattern thresholds.
const (
	// hotspotShare is the fraction of all archived allocations a single
	// call site must exceed to be reported as a hotspot.
	hotspotShare = 0.10

	// periodicMinAllocs is the minimum archived allocations per site
	// before periodicity is considered.
	periodicMinAllocs = 3

	// periodicJitter is how far an interval may sit from the mean and
	// still count as periodic.
	periodicJitter = 100 * time.Millisecond

	// patternQuorum is the fraction of samples that must agree before a
	// periodic or geometric pattern is flagged.
	patternQuorum = 0.8

	// geometricTolerance is how far a bucket-count ratio may sit from
	// the mean ratio and still count as geometric.
	geometricTolerance = 0.1
)

// Hotspot is a call site responsible for an outsized share of archived
// allocations.
type Hotspot struct {
	Site  string  `json:"site"`
	Count uint64  `json:"count"`
	Share float64 `json:"share"`
}

// PeriodicPattern marks a call site that allocates on a steady interval.
type PeriodicPattern struct {
	Site         string        `json:"site"`
	Allocations  int           `json:"allocations"`
	MeanInterval time.Duration `json:"mean_interval"`
}

// GeometricPattern marks a call site whose size-class histogram grows or
// shrinks by a steady factor from bucket to bucket.
type GeometricPattern struct {
	Site      string  `json:"site"`
	Buckets   int     `json:"buckets"`
	MeanRatio float64 `json:"mean_ratio"`
}

// TemporalReport is the time-behavior section of the usage report.
type TemporalReport struct {
	AllocationRate  float64            `json:"allocation_rate"`
	AverageLifetime time.Duration      `json:"average_lifetime"`
	Hotspots        []Hotspot          `json:"hotspots,omitempty"`
	Periodic        []PeriodicPattern  `json:"periodic,omitempty"`
	Geometric       []GeometricPattern `json:"geometric,omitempty"`
}

// temporalLocked derives rate, lifetime and per-site time patterns.
//
// Rate and lifetime come from the historical archive alone. The rate
// denominator is the span between the earliest and latest archived
// allocation timestamps, floored to one second so a burst that frees
// instantly does not divide by zero. Lifetime is the held duration
// measured at free time. Geometric detection reads the lifetime size
// histograms, so it can fire before anything has been freed.
func (a *Analyzer) temporalLocked() TemporalReport {
	var rep TemporalReport

	if n := len(a.history); n > 0 {
		first := a.history[0].allocatedAt
		last := first
		var lifetimes time.Duration
		for _, rec := range a.history {
			if rec.allocatedAt.Before(first) {
				first = rec.allocatedAt
			}
			if rec.allocatedAt.After(last) {
				last = rec.allocatedAt
			}
			lifetimes += rec.freedAt.Sub(rec.allocatedAt)
		}

		span := last.Sub(first)
		if span < time.Second {
			span = time.Second
		}
		rep.AllocationRate = float64(n) / span.Seconds()
		rep.AverageLifetime = lifetimes / time.Duration(n)

		rep.Hotspots = a.hotspotsLocked(n)
		rep.Periodic = a.periodicLocked()
	}

	rep.Geometric = a.geometricLocked()
	return rep
}

// hotspotsLocked lists archived call sites above the hotspot share.
func (a *Analyzer) hotspotsLocked(total int) []Hotspot {
	counts := make(map[string]uint64)
	for _, rec := range a.history {
		counts[rec.site]++
	}

	var hotspots []Hotspot
	for site, count := range counts {
		share := float64(count) / float64(total)
		if share > hotspotShare {
			hotspots = append(hotspots, Hotspot{Site: site, Count: count, Share: share})
		}
	}

	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].Count != hotspots[j].Count {
			return hotspots[i].Count > hotspots[j].Count
		}
		return hotspots[i].Site < hotspots[j].Site
	})
	return hotspots
}

// periodicLocked flags sites whose archived allocations arrive on a
// steady beat: with at least periodicMinAllocs samples, the quorum of
// inter-allocation intervals must sit within periodicJitter of the mean.
func (a *Analyzer) periodicLocked() []PeriodicPattern {
	times := make(map[string][]time.Time)
	for _, rec := range a.history {
		times[rec.site] = append(times[rec.site], rec.allocatedAt)
	}

	var patterns []PeriodicPattern
	for site, ts := range times {
		if len(ts) < periodicMinAllocs {
			continue
		}
		// Archive order is free order; intervals want allocation order.
		sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

		intervals := make([]time.Duration, len(ts)-1)
		var sum time.Duration
		for i := 1; i < len(ts); i++ {
			intervals[i-1] = ts[i].Sub(ts[i-1])
			sum += intervals[i-1]
		}
		mean := sum / time.Duration(len(intervals))

		within := 0
		for _, iv := range intervals {
			delta := iv - mean
			if delta < 0 {
				delta = -delta
			}
			if delta <= periodicJitter {
				within++
			}
		}
		if float64(within) >= patternQuorum*float64(len(intervals)) {
			patterns = append(patterns, PeriodicPattern{
				Site:         site,
				Allocations:  len(ts),
				MeanInterval: mean,
			})
		}
	}

	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Site < patterns[j].Site })
	return patterns
}

// geometricLocked flags sites whose size-class histogram steps by a
// near-constant factor. Bucket counts are walked in index order with
// absent buckets as zero; ratios with a zero denominator are skipped.
func (a *Analyzer) geometricLocked() []GeometricPattern {
	var patterns []GeometricPattern
	for site, st := range a.sites {
		if len(st.classes) < 3 {
			continue
		}

		lo, hi := 0, 0
		first := true
		for class := range st.classes {
			if first {
				lo, hi = class, class
				first = false
				continue
			}
			if class < lo {
				lo = class
			}
			if class > hi {
				hi = class
			}
		}

		var ratios []float64
		var sum float64
		for class := lo; class < hi; class++ {
			denom := st.classes[class]
			if denom == 0 {
				continue
			}
			r := float64(st.classes[class+1]) / float64(denom)
			ratios = append(ratios, r)
			sum += r
		}
		if len(ratios) == 0 {
			continue
		}
		mean := sum / float64(len(ratios))

		within := 0
		for _, r := range ratios {
			delta := r - mean
			if delta < 0 {
				delta = -delta
			}
			if delta <= geometricTolerance {
				within++
			}
		}
		if float64(within) >= patternQuorum*float64(len(ratios)) {
			patterns = append(patterns, GeometricPattern{
				Site:      site,
				Buckets:   len(st.classes),
				MeanRatio: mean,
			})
		}
	}

	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Site < patterns[j].Site })
	return patterns
}
