// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// maxRenderedSites caps the per-site table in the text rendering; the
// JSON rendering always carries the full table.
const maxRenderedSites = 10

// FormatJSON returns the report as formatted JSON (2-space indentation).
func (r UsageReport) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "memtrace: marshal report")
	}
	return string(data), nil
}

// FormatText returns a human-readable sectioned report.
func (r UsageReport) FormatText() string {
	var b strings.Builder

	b.WriteString("=" + strings.Repeat("=", 78) + "\n")
	b.WriteString("Limitly Memory Usage Report\n")
	b.WriteString("=" + strings.Repeat("=", 78) + "\n\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05")))

	r.renderStatistics(&b)
	r.renderLeaks(&b)
	r.renderFragmentation(&b)
	r.renderSizeDistribution(&b)
	r.renderTemporal(&b)
	r.renderThreads(&b)
	r.renderCache(&b)
	r.renderAccessPatterns(&b)
	r.renderRecommendations(&b)
	r.renderHealth(&b)

	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("-", 79) + "\n")
}

func (r UsageReport) renderStatistics(b *strings.Builder) {
	section(b, "STATISTICS")
	b.WriteString(fmt.Sprintf("  Live bytes:       %s\n", humanize.IBytes(r.Stats.LiveBytes)))
	b.WriteString(fmt.Sprintf("  Peak bytes:       %s\n", humanize.IBytes(r.Stats.PeakBytes)))
	b.WriteString(fmt.Sprintf("  Largest single:   %s\n", humanize.IBytes(r.Stats.LargestAllocation)))
	b.WriteString(fmt.Sprintf("  Allocations:      %d\n", r.Stats.Allocations))
	b.WriteString(fmt.Sprintf("  Deallocations:    %d\n", r.Stats.Deallocations))
	b.WriteString(fmt.Sprintf("  Live records:     %d\n", r.Stats.LiveCount))
	b.WriteString(fmt.Sprintf("  Archived records: %d\n", r.Stats.HistoricalCount))
	b.WriteString(fmt.Sprintf("  Active regions:   %d\n", r.Ownership.Regions))
	b.WriteString(fmt.Sprintf("  Active refs:      %d\n", r.Ownership.References))
	b.WriteString(fmt.Sprintf("  Active linears:   %d\n\n", r.Ownership.Linears))
}

func (r UsageReport) renderLeaks(b *strings.Builder) {
	section(b, "LEAK REPORT")
	if len(r.Leaks.Candidates) == 0 {
		b.WriteString("  No leak candidates.\n\n")
		return
	}
	b.WriteString(fmt.Sprintf("  %d candidate(s), %s still held\n\n",
		len(r.Leaks.Candidates), humanize.IBytes(r.Leaks.TotalBytes)))
	for i, c := range r.Leaks.Candidates {
		b.WriteString(fmt.Sprintf("  %d. %s  %s  held %v  goroutine %d\n",
			i+1, c.Address, humanize.IBytes(c.Size), c.Age.Round(time.Second), c.Goroutine))
		b.WriteString(fmt.Sprintf("     from %s\n", c.Site))
	}
	b.WriteString("\n")
}

func (r UsageReport) renderFragmentation(b *strings.Builder) {
	section(b, "FRAGMENTATION ANALYSIS")
	b.WriteString(fmt.Sprintf("  Gaps:        %d\n", r.Fragmentation.GapCount))
	b.WriteString(fmt.Sprintf("  Largest gap: %s\n", humanize.IBytes(r.Fragmentation.LargestGap)))
	b.WriteString(fmt.Sprintf("  Total gap:   %s\n", humanize.IBytes(r.Fragmentation.TotalGap)))
	b.WriteString(fmt.Sprintf("  Ratio:       %.2f\n", r.Fragmentation.Ratio))
	if r.Fragmentation.Severe {
		b.WriteString("  Status:      FRAGMENTED\n\n")
	} else {
		b.WriteString("  Status:      ok\n\n")
	}
}

func (r UsageReport) renderSizeDistribution(b *strings.Builder) {
	section(b, "SIZE DISTRIBUTION")
	if len(r.SizeDistribution.Classes) == 0 {
		b.WriteString("  No allocations recorded.\n\n")
		return
	}

	classes := make([]int, 0, len(r.SizeDistribution.Classes))
	for class := range r.SizeDistribution.Classes {
		classes = append(classes, class)
	}
	sort.Ints(classes)
	for _, class := range classes {
		lo, hi := sizeClassBounds(class)
		b.WriteString(fmt.Sprintf("  class %2d (%s – %s): %d\n",
			class, humanize.IBytes(lo), humanize.IBytes(hi), r.SizeDistribution.Classes[class]))
	}

	b.WriteString("\n  By call site:\n")
	sites := r.SizeDistribution.Sites
	truncated := false
	if len(sites) > maxRenderedSites {
		sites = sites[:maxRenderedSites]
		truncated = true
	}
	for _, site := range sites {
		b.WriteString(fmt.Sprintf("    %-44s %8s in %d alloc(s), peak %d\n",
			site.Site, humanize.IBytes(site.TotalBytes), site.Allocations, site.PeakConcurrent))
	}
	if truncated {
		b.WriteString(fmt.Sprintf("    ... and %d more site(s)\n", len(r.SizeDistribution.Sites)-maxRenderedSites))
	}
	b.WriteString("\n")
}

func (r UsageReport) renderTemporal(b *strings.Builder) {
	section(b, "TEMPORAL PATTERNS")
	b.WriteString(fmt.Sprintf("  Allocation rate:  %.2f alloc/s\n", r.Temporal.AllocationRate))
	b.WriteString(fmt.Sprintf("  Average lifetime: %v\n", r.Temporal.AverageLifetime))

	if len(r.Temporal.Hotspots) > 0 {
		b.WriteString("  Hotspots:\n")
		for _, h := range r.Temporal.Hotspots {
			b.WriteString(fmt.Sprintf("    %-44s %d alloc(s) (%.0f%%)\n", h.Site, h.Count, h.Share*100))
		}
	}
	if len(r.Temporal.Periodic) > 0 {
		b.WriteString("  Periodic:\n")
		for _, p := range r.Temporal.Periodic {
			b.WriteString(fmt.Sprintf("    %-44s every %v over %d alloc(s)\n", p.Site, p.MeanInterval, p.Allocations))
		}
	}
	if len(r.Temporal.Geometric) > 0 {
		b.WriteString("  Geometric growth:\n")
		for _, g := range r.Temporal.Geometric {
			b.WriteString(fmt.Sprintf("    %-44s ratio %.2f across %d bucket(s)\n", g.Site, g.MeanRatio, g.Buckets))
		}
	}
	b.WriteString("\n")
}

func (r UsageReport) renderThreads(b *strings.Builder) {
	section(b, "THREAD & ALIGNMENT")
	if len(r.Threads) == 0 {
		b.WriteString("  No thread activity recorded.\n")
	}
	for _, t := range r.Threads {
		b.WriteString(fmt.Sprintf("  goroutine %-6d %5d alloc(s), %5d live, largest %s\n",
			t.Goroutine, t.Allocations, t.Live, humanize.IBytes(t.PeakAllocation)))
	}
	b.WriteString(fmt.Sprintf("\n  Suboptimal alignment: %d allocation(s)\n", r.Alignment.SuboptimalCount))
	b.WriteString(fmt.Sprintf("  Average padding:      %.1f B\n", r.Alignment.AveragePadding))
	b.WriteString(fmt.Sprintf("  Wasted bytes:         %s\n\n", humanize.IBytes(r.Alignment.WastedBytes)))
}

func (r UsageReport) renderCache(b *strings.Builder) {
	section(b, "CACHE BEHAVIOR")
	b.WriteString(fmt.Sprintf("  Hits:        %d\n", r.Cache.Hits))
	b.WriteString(fmt.Sprintf("  Misses:      %d\n", r.Cache.Misses))
	b.WriteString(fmt.Sprintf("  Hit rate:    %.1f%%\n", r.Cache.HitRate*100))
	b.WriteString(fmt.Sprintf("  Avg latency: %v\n\n", r.Cache.AvgLatency))
}

func (r UsageReport) renderAccessPatterns(b *strings.Builder) {
	section(b, "ACCESS PATTERNS")
	if len(r.AccessPatterns) == 0 {
		b.WriteString("  No accesses recorded.\n\n")
		return
	}
	for _, s := range r.AccessPatterns {
		line := fmt.Sprintf("  %s  %4d access(es)  %-10s", s.Address, s.Accesses, s.Pattern)
		if s.Stride != 0 {
			line += fmt.Sprintf("  stride %d", s.Stride)
			if s.CacheAligned {
				line += " (cache-line aligned)"
			}
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
}

func (r UsageReport) renderRecommendations(b *strings.Builder) {
	section(b, "RECOMMENDATIONS")
	for i, rec := range r.Recommendations {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, rec))
	}
	b.WriteString("\n")
}

func (r UsageReport) renderHealth(b *strings.Builder) {
	section(b, "HEALTH BREAKDOWN")
	b.WriteString(fmt.Sprintf("  Fragmentation: %5.1f\n", r.Health.Fragmentation))
	b.WriteString(fmt.Sprintf("  Efficiency:    %5.1f\n", r.Health.Efficiency))
	b.WriteString(fmt.Sprintf("  Cache:         %5.1f\n", r.Health.Cache))
	b.WriteString(fmt.Sprintf("  Safety:        %5.1f\n", r.Health.Safety))
	b.WriteString(fmt.Sprintf("  Overall:       %5.1f\n", r.Health.Overall))
}

// sizeClassBounds gives the approximate byte range of a log-scale bucket.
func sizeClassBounds(class int) (lo, hi uint64) {
	if class == 0 {
		return 0, 2
	}
	lo = uint64(math.Exp(float64(class)))
	hi = uint64(math.Exp(float64(class + 1)))
	if hi > 0 {
		hi--
	}
	return lo, hi
}
