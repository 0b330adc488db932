// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import "sort"

// fragmentationThreshold is the gap-to-live ratio above which the report
// flags fragmentation as an issue.
const fragmentationThreshold = 0.3

// FragmentationReport describes the address-space gaps between live
// allocations.
type FragmentationReport struct {
	GapCount   int      `json:"gap_count"`
	LargestGap uint64   `json:"largest_gap"`
	TotalGap   uint64   `json:"total_gap_bytes"`
	Gaps       []uint64 `json:"gaps,omitempty"`
	Ratio      float64  `json:"ratio"`
	Severe     bool     `json:"severe"`
}

// fragmentationLocked walks the live set as sorted [start, start+size)
// ranges. A gap is next.start − previous.end between neighbours; only
// positive gaps count, so overlapping ranges contribute nothing. The
// ratio is total gap bytes over total live bytes, zero when nothing is
// live.
func (a *Analyzer) fragmentationLocked() FragmentationReport {
	var rep FragmentationReport
	if len(a.live) == 0 {
		return rep
	}

	type span struct {
		start, end uint64
	}
	spans := make([]span, 0, len(a.live))
	var liveBytes uint64
	for _, rec := range a.live {
		spans = append(spans, span{start: uint64(rec.addr), end: uint64(rec.addr) + rec.size})
		liveBytes += rec.size
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	for i := 1; i < len(spans); i++ {
		if spans[i].start <= spans[i-1].end {
			continue
		}
		gap := spans[i].start - spans[i-1].end
		rep.Gaps = append(rep.Gaps, gap)
		rep.TotalGap += gap
		if gap > rep.LargestGap {
			rep.LargestGap = gap
		}
	}
	rep.GapCount = len(rep.Gaps)

	if liveBytes > 0 {
		rep.Ratio = float64(rep.TotalGap) / float64(liveBytes)
	}
	rep.Severe = rep.Ratio > fragmentationThreshold
	return rep
}
