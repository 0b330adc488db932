// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import (
	"math"
	"sort"
)

// siteStats is the per-call-site lifetime aggregate. It only ever grows:
// deallocation does not shrink it, so the histogram describes everything
// a site ever allocated, not what it holds now.
type siteStats struct {
	totalBytes     uint64
	allocations    uint64
	peakConcurrent uint64
	classes        map[int]uint64 // size-class bucket → count

	// Reserved. The runtime does not report failed or retried attempts
	// yet, nor reallocations; the fields hold their slot in the wire
	// shape until it does.
	failedAttempts uint64
	reallocations  uint64
}

// sizeClass buckets a size on a logarithmic scale: floor(log(size)),
// natural log. Sizes 0 and 1 land in bucket 0.
func sizeClass(size uint64) int {
	if size <= 1 {
		return 0
	}
	return int(math.Log(float64(size)))
}

// recordSiteLocked folds one allocation into its call-site aggregate.
// Caller holds the ledger lock.
func (a *Analyzer) recordSiteLocked(site string, size uint64) {
	st, ok := a.sites[site]
	if !ok {
		st = &siteStats{classes: make(map[int]uint64)}
		a.sites[site] = st
	}

	st.totalBytes += size
	st.allocations++
	if st.allocations > st.peakConcurrent {
		st.peakConcurrent = st.allocations
	}
	st.classes[sizeClass(size)]++
}

// CallSiteMetrics is the published aggregate for one call site.
type CallSiteMetrics struct {
	Site           string         `json:"site"`
	TotalBytes     uint64         `json:"total_bytes"`
	Allocations    uint64         `json:"allocations"`
	PeakConcurrent uint64         `json:"peak_concurrent"`
	SizeClasses    map[int]uint64 `json:"size_classes,omitempty"`
	FailedAttempts uint64         `json:"failed_attempts"`
	Reallocations  uint64         `json:"reallocations"`
}

// SizeDistribution is the histogram section of the usage report: the
// global size-class histogram plus the per-site table, heaviest first.
type SizeDistribution struct {
	Classes map[int]uint64    `json:"classes,omitempty"`
	Sites   []CallSiteMetrics `json:"sites,omitempty"`
}

// sizeDistributionLocked snapshots the aggregator. Maps are deep-copied
// so the returned value owns everything it points at.
func (a *Analyzer) sizeDistributionLocked() SizeDistribution {
	dist := SizeDistribution{}
	if len(a.sites) == 0 {
		return dist
	}

	dist.Classes = make(map[int]uint64)
	dist.Sites = make([]CallSiteMetrics, 0, len(a.sites))
	for site, st := range a.sites {
		classes := make(map[int]uint64, len(st.classes))
		for class, n := range st.classes {
			classes[class] = n
			dist.Classes[class] += n
		}
		dist.Sites = append(dist.Sites, CallSiteMetrics{
			Site:           site,
			TotalBytes:     st.totalBytes,
			Allocations:    st.allocations,
			PeakConcurrent: st.peakConcurrent,
			SizeClasses:    classes,
			FailedAttempts: st.failedAttempts,
			Reallocations:  st.reallocations,
		})
	}

	sort.Slice(dist.Sites, func(i, j int) bool {
		if dist.Sites[i].TotalBytes != dist.Sites[j].TotalBytes {
			return dist.Sites[i].TotalBytes > dist.Sites[j].TotalBytes
		}
		return dist.Sites[i].Site < dist.Sites[j].Site
	})
	return dist
}
