// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import (
	"math"
	"sort"
	"time"
)

// Access-model constants.
const (
	// sequentialGapMax is the largest forward gap between consecutive
	// accesses still treated as sequential.
	sequentialGapMax = 64

	// cacheLineSize annotates strides that land on cache-line
	// boundaries.
	cacheLineSize = 64

	// strideQuorum is the fraction of offset deltas the winning delta
	// must reach before it is reported as a stride.
	strideQuorum = 0.75

	// Synthetic cache cost model.
	hitCost  = 1 * time.Nanosecond
	missCost = 10 * time.Nanosecond
)

// AccessPattern classifies the transition between two accesses, or the
// dominant behavior of a whole allocation.
type AccessPattern int

const (
	// PatternNone means too few accesses to classify.
	PatternNone AccessPattern = iota
	// PatternSequential covers contiguous, small-forward-gap and
	// half-overlap transitions.
	PatternSequential
	// PatternRandom covers everything else.
	PatternRandom
)

// String returns a human-readable pattern name.
func (p AccessPattern) String() string {
	switch p {
	case PatternSequential:
		return "sequential"
	case PatternRandom:
		return "random"
	default:
		return "none"
	}
}

// MarshalJSON renders the pattern as its name.
func (p AccessPattern) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// AccessSummary is the per-allocation entry of the access-pattern report.
type AccessSummary struct {
	Address      Address       `json:"address"`
	Site         string        `json:"site"`
	Accesses     int           `json:"accesses"`
	Sequential   int           `json:"sequential"`
	Random       int           `json:"random"`
	Pattern      AccessPattern `json:"pattern"`
	Stride       int64         `json:"stride"`
	CacheAligned bool          `json:"cache_line_aligned"`
}

// CacheReport is the synthetic cache model's verdict: sequential
// transitions count as hits, random ones as misses, with a 1ns/10ns
// blended latency.
type CacheReport struct {
	Hits       uint64        `json:"hits"`
	Misses     uint64        `json:"misses"`
	HitRate    float64       `json:"hit_rate"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// classifyTransition labels the step from prev to cur.
//
// The gap is cur.Offset − (prev.Offset + prev.Length): zero means dead
// contiguous, a forward gap up to sequentialGapMax still reads ahead
// within prefetch reach, and a backward step counts as sequential only
// while it overlaps no more than half of the previous access.
//
// The previous end saturates at the top of the offset range instead of
// wrapping, so the classifier stays total even for offset/length pairs
// that exceed any real allocation.
func classifyTransition(prev, cur AccessEvent) AccessPattern {
	prevEnd := prev.Offset + prev.Length
	if prevEnd < prev.Offset {
		prevEnd = math.MaxUint64
	}
	switch {
	case cur.Offset == prevEnd:
		return PatternSequential
	case cur.Offset > prevEnd && cur.Offset-prevEnd <= sequentialGapMax:
		return PatternSequential
	case cur.Offset < prevEnd && prevEnd-cur.Offset <= prev.Length/2:
		return PatternSequential
	default:
		return PatternRandom
	}
}

// detectStride finds the dominant successive offset delta. The winner is
// reported only when it reaches strideQuorum of all deltas; ties below
// quorum report stride zero.
func detectStride(events []AccessEvent) (stride int64, cacheAligned bool) {
	if len(events) < 2 {
		return 0, false
	}

	deltas := make(map[int64]int)
	for i := 1; i < len(events); i++ {
		d := int64(events[i].Offset) - int64(events[i-1].Offset)
		deltas[d]++
	}

	var best int64
	bestCount := -1
	for d, n := range deltas {
		if n > bestCount || (n == bestCount && d < best) {
			best, bestCount = d, n
		}
	}

	total := len(events) - 1
	if float64(bestCount) < strideQuorum*float64(total) {
		return 0, false
	}
	return best, best != 0 && best%cacheLineSize == 0
}

// accessLocked classifies every live allocation's access log and runs
// the synthetic cache model over the same transitions.
//
// Only live allocations participate; an allocation needs two accesses to
// produce a transition. If accesses exist but no transition was ever
// formed, the model credits one hit so the hit rate is defined.
func (a *Analyzer) accessLocked() ([]AccessSummary, CacheReport) {
	var (
		summaries []AccessSummary
		cache     CacheReport
		anyAccess bool
	)

	for _, rec := range a.live {
		if len(rec.accesses) == 0 {
			continue
		}
		anyAccess = true

		sum := AccessSummary{
			Address:  rec.addr,
			Site:     rec.site,
			Accesses: len(rec.accesses),
		}
		for i := 1; i < len(rec.accesses); i++ {
			switch classifyTransition(rec.accesses[i-1], rec.accesses[i]) {
			case PatternSequential:
				sum.Sequential++
				cache.Hits++
			case PatternRandom:
				sum.Random++
				cache.Misses++
			}
		}

		switch {
		case sum.Sequential == 0 && sum.Random == 0:
			sum.Pattern = PatternNone
		case sum.Sequential >= sum.Random:
			sum.Pattern = PatternSequential
		default:
			sum.Pattern = PatternRandom
		}
		sum.Stride, sum.CacheAligned = detectStride(rec.accesses)
		summaries = append(summaries, sum)
	}

	if anyAccess && cache.Hits == 0 && cache.Misses == 0 {
		cache.Hits = 1
	}
	if total := cache.Hits + cache.Misses; total > 0 {
		cache.HitRate = float64(cache.Hits) / float64(total)
		blended := time.Duration(cache.Hits)*hitCost + time.Duration(cache.Misses)*missCost
		cache.AvgLatency = blended / time.Duration(total)
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Address < summaries[j].Address })
	return summaries, cache
}
