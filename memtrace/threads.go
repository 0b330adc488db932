// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import "sort"

// ThreadStat aggregates one goroutine's allocation behavior across live
// and historical records: a freed record still counts toward its
// goroutine's lifetime total but not its live count.
type ThreadStat struct {
	Goroutine      int64  `json:"goroutine"`
	Allocations    uint64 `json:"allocations"`
	Live           uint64 `json:"live"`
	PeakAllocation uint64 `json:"peak_allocation"`
}

// AlignmentReport summarizes padding waste across live allocations.
// AveragePadding is the mean over the allocations that actually pay
// padding; allocations already on the boundary do not dilute it.
type AlignmentReport struct {
	SuboptimalCount int     `json:"suboptimal_count"`
	AveragePadding  float64 `json:"average_padding"`
	WastedBytes     uint64  `json:"wasted_bytes"`
}

// threadsLocked derives per-goroutine stats from live and historical
// records at query time.
func (a *Analyzer) threadsLocked() []ThreadStat {
	byGoroutine := make(map[int64]*ThreadStat)

	tally := func(rec *record, live bool) {
		st, ok := byGoroutine[rec.goroutine]
		if !ok {
			st = &ThreadStat{Goroutine: rec.goroutine}
			byGoroutine[rec.goroutine] = st
		}
		st.Allocations++
		if live {
			st.Live++
		}
		if rec.size > st.PeakAllocation {
			st.PeakAllocation = rec.size
		}
	}

	for _, rec := range a.live {
		tally(rec, true)
	}
	for _, rec := range a.history {
		tally(rec, false)
	}

	stats := make([]ThreadStat, 0, len(byGoroutine))
	for _, st := range byGoroutine {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Goroutine < stats[j].Goroutine })
	return stats
}

// alignmentLocked measures padding waste over the live set.
func (a *Analyzer) alignmentLocked() AlignmentReport {
	var rep AlignmentReport
	for _, rec := range a.live {
		if rec.padding == 0 {
			continue
		}
		rep.SuboptimalCount++
		rep.WastedBytes += rec.padding
	}
	if rep.SuboptimalCount > 0 {
		rep.AveragePadding = float64(rep.WastedBytes) / float64(rep.SuboptimalCount)
	}
	return rep
}
