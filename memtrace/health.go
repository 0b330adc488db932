// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import (
	"sort"
	"time"
)

// leakAge is how long an allocation may stay live before the leak report
// lists it as a candidate.
const leakAge = 24 * time.Hour

// Recommendation thresholds, each re-evaluated independently.
const (
	latencyBudget   = 100 * time.Microsecond
	churnLifetime   = 100 * time.Millisecond
	churnMinSamples = 10
)

// Advisory strings. One fixed line per triggered threshold; the nominal
// line stands alone when nothing triggers.
const (
	adviceNominal       = "Memory usage is within normal operating parameters."
	adviceFragmentation = "High fragmentation detected: group allocations by size class or lifetime to close address-space gaps."
	adviceAlignment     = "Allocations waste more than half the guaranteed alignment on average: review base address selection."
	adviceLatency       = "Average allocation latency exceeds 100us: consider pooling long-held buffers."
	adviceChurn         = "Allocations turn over in under 100ms on average: consider object reuse to cut churn."
)

// LeakCandidate is one live allocation old enough to look abandoned.
type LeakCandidate struct {
	Address   Address       `json:"address"`
	Size      uint64        `json:"size"`
	Age       time.Duration `json:"age"`
	Site      string        `json:"site"`
	Goroutine int64         `json:"goroutine"`
}

// LeakReport lists live allocations older than leakAge, oldest first.
type LeakReport struct {
	Candidates []LeakCandidate `json:"candidates,omitempty"`
	TotalBytes uint64          `json:"total_bytes"`
}

// HealthReport is the scored summary of the whole ledger. Scores live on
// a 0–100 scale.
type HealthReport struct {
	Fragmentation float64 `json:"fragmentation_score"`
	Efficiency    float64 `json:"efficiency_score"`
	Cache         float64 `json:"cache_score"`
	Safety        float64 `json:"safety_score"`
	Overall       float64 `json:"overall_score"`
}

// leaksLocked scans the live set for allocations older than leakAge.
func (a *Analyzer) leaksLocked(now time.Time) LeakReport {
	var rep LeakReport
	for _, rec := range a.live {
		age := now.Sub(rec.allocatedAt)
		if age <= leakAge {
			continue
		}
		rep.Candidates = append(rep.Candidates, LeakCandidate{
			Address:   rec.addr,
			Size:      rec.size,
			Age:       age,
			Site:      rec.site,
			Goroutine: rec.goroutine,
		})
		rep.TotalBytes += rec.size
	}

	sort.Slice(rep.Candidates, func(i, j int) bool {
		if rep.Candidates[i].Age != rep.Candidates[j].Age {
			return rep.Candidates[i].Age > rep.Candidates[j].Age
		}
		return rep.Candidates[i].Address < rep.Candidates[j].Address
	})
	return rep
}

// buildHealth scores the ledger from the already-computed sections, so
// every figure here agrees with the section it came from.
//
// The efficiency score divides the mean padding by the live allocation
// count before normalizing against the cache line; the double averaging
// is the established scale for this score and is kept as-is.
func buildHealth(frag FragmentationReport, cache CacheReport, align AlignmentReport,
	leakCount, liveCount int, avgLifetime time.Duration) HealthReport {

	var h HealthReport

	h.Fragmentation = clampScore(100 * (1 - frag.Ratio))

	efficiency := 100.0
	if liveCount > 0 {
		norm := (align.AveragePadding / float64(liveCount)) / float64(cacheLineSize)
		if norm > 1 {
			norm = 1
		}
		efficiency = 100 * (1 - norm)
	}
	h.Efficiency = clampScore(efficiency)

	if cache.Hits+cache.Misses == 0 {
		h.Cache = 100
	} else {
		h.Cache = clampScore(cache.HitRate * 100)
	}

	safety := 100 - 5*float64(leakCount)
	if safety < 0 {
		safety = 0
	}
	h.Safety = safety

	leakPenalty := 10 * float64(leakCount)
	if leakPenalty > 30 {
		leakPenalty = 30
	}

	latMicros := float64(avgLifetime) / float64(time.Microsecond)
	latPenalty := (latMicros - 100) / 10
	if latPenalty < 0 {
		latPenalty = 0
	}
	if latPenalty > 20 {
		latPenalty = 20
	}

	h.Overall = clampScore(100 - 30*frag.Ratio - leakPenalty - latPenalty)
	return h
}

// buildRecommendations re-evaluates each advisory threshold on the
// section values and emits its fixed line.
func buildRecommendations(frag FragmentationReport, align AlignmentReport,
	avgLifetime time.Duration, archived int) []string {

	var recs []string
	if frag.Ratio > fragmentationThreshold {
		recs = append(recs, adviceFragmentation)
	}
	if align.AveragePadding > float64(maxAlignment)/2 {
		recs = append(recs, adviceAlignment)
	}
	if avgLifetime > latencyBudget {
		recs = append(recs, adviceLatency)
	}
	if archived >= churnMinSamples && avgLifetime < churnLifetime {
		recs = append(recs, adviceChurn)
	}
	if len(recs) == 0 {
		recs = append(recs, adviceNominal)
	}
	return recs
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
