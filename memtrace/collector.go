// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes the ledger's headline figures to a Prometheus
// registry. Each scrape takes the ledger lock once for a consistent
// stats/fragmentation snapshot; the ownership gauges are read atomically
// alongside it.
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(memtrace.NewCollector(analyzer))
type Collector struct {
	analyzer *Analyzer

	liveBytes     *prometheus.Desc
	peakBytes     *prometheus.Desc
	largestAlloc  *prometheus.Desc
	liveRecords   *prometheus.Desc
	allocations   *prometheus.Desc
	deallocations *prometheus.Desc
	fragRatio     *prometheus.Desc
	regions       *prometheus.Desc
	references    *prometheus.Desc
	linears       *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector over a. Register it with any registry;
// the collector holds no state of its own.
func NewCollector(a *Analyzer) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName("limitly", "memtrace", name), help, nil, nil,
		)
	}
	return &Collector{
		analyzer:      a,
		liveBytes:     desc("live_bytes", "Bytes currently held by live allocations."),
		peakBytes:     desc("peak_bytes", "High-water mark of live bytes."),
		largestAlloc:  desc("largest_allocation_bytes", "Largest single allocation seen."),
		liveRecords:   desc("live_records", "Number of live allocation records."),
		allocations:   desc("allocations_total", "Allocations recorded since construction."),
		deallocations: desc("deallocations_total", "Deallocations recorded since construction."),
		fragRatio:     desc("fragmentation_ratio", "Gap bytes over live bytes across the live set."),
		regions:       desc("active_regions", "Ownership gauge: open regions."),
		references:    desc("active_references", "Ownership gauge: live references."),
		linears:       desc("active_linears", "Ownership gauge: live linear values."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.liveBytes
	ch <- c.peakBytes
	ch <- c.largestAlloc
	ch <- c.liveRecords
	ch <- c.allocations
	ch <- c.deallocations
	ch <- c.fragRatio
	ch <- c.regions
	ch <- c.references
	ch <- c.linears
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.analyzer.mu.Lock()
	stats := c.analyzer.statsLocked()
	frag := c.analyzer.fragmentationLocked()
	c.analyzer.mu.Unlock()
	ownership := c.analyzer.OwnershipCounts()

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.liveBytes, float64(stats.LiveBytes))
	gauge(c.peakBytes, float64(stats.PeakBytes))
	gauge(c.largestAlloc, float64(stats.LargestAllocation))
	gauge(c.liveRecords, float64(stats.LiveCount))
	counter(c.allocations, float64(stats.Allocations))
	counter(c.deallocations, float64(stats.Deallocations))
	gauge(c.fragRatio, frag.Ratio)
	gauge(c.regions, float64(ownership.Regions))
	gauge(c.references, float64(ownership.References))
	gauge(c.linears, float64(ownership.Linears))
}
