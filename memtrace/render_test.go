// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPopulatedAnalyzer fills a ledger so every report section has
// something to say.
func buildPopulatedAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, mock, _ := newTestAnalyzer(t)

	a.RecordAllocation(0x1000, 4096, "interp.go:88 (vm.run)")
	a.RecordAllocation(0x3000, 256, "interp.go:12 (vm.boot)")
	a.RecordAccess(0x1000, 0, 64)
	a.RecordAccess(0x1000, 64, 64)
	a.RecordAccess(0x1000, 9000, 8)
	a.RecordAllocation(0x5003, 128, "interp.go:40 (vm.spill)")
	a.RecordDeallocation(0x3000)
	a.IncActiveRegions()
	a.IncActiveReferences()
	mock.Advance(25 * time.Hour) // the survivors become leak candidates

	return a
}

// TestFormatText_AllSectionsPresent tests that the text rendering carries
// every report section.
func TestFormatText_AllSectionsPresent(t *testing.T) {
	a := buildPopulatedAnalyzer(t)

	text := a.Usage().FormatText()
	for _, section := range []string{
		"STATISTICS",
		"LEAK REPORT",
		"FRAGMENTATION ANALYSIS",
		"SIZE DISTRIBUTION",
		"TEMPORAL PATTERNS",
		"THREAD & ALIGNMENT",
		"CACHE BEHAVIOR",
		"ACCESS PATTERNS",
		"RECOMMENDATIONS",
		"HEALTH BREAKDOWN",
	} {
		assert.Contains(t, text, section)
	}
}

// TestFormatText_PopulatedFromReport spot-checks that section bodies come
// from the report fields.
func TestFormatText_PopulatedFromReport(t *testing.T) {
	a := buildPopulatedAnalyzer(t)
	rep := a.Usage()
	text := rep.FormatText()

	assert.Contains(t, text, "Allocations:      3")
	assert.Contains(t, text, "Deallocations:    1")
	assert.Contains(t, text, "interp.go:88 (vm.run)")
	assert.Contains(t, text, "0x1000")
	assert.Contains(t, text, "Active regions:   1")

	// Two live allocations older than 24h.
	require.Len(t, rep.Leaks.Candidates, 2)
	assert.Contains(t, text, "2 candidate(s)")
}

// TestFormatText_EmptyLedger tests that an idle analyzer still renders
// every section without placeholder noise.
func TestFormatText_EmptyLedger(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	text := a.Usage().FormatText()
	assert.Contains(t, text, "No leak candidates.")
	assert.Contains(t, text, "No allocations recorded.")
	assert.Contains(t, text, "No accesses recorded.")
	assert.Contains(t, text, adviceNominal)
}

// TestFormatJSON_RoundTrips tests that the JSON rendering parses back
// with the headline fields intact.
func TestFormatJSON_RoundTrips(t *testing.T) {
	a := buildPopulatedAnalyzer(t)
	rep := a.Usage()

	raw, err := rep.FormatJSON()
	require.NoError(t, err)

	var decoded struct {
		Stats  LedgerStats `json:"stats"`
		Health struct {
			Overall float64 `json:"overall_score"`
		} `json:"health"`
		Recommendations []string `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))

	assert.Equal(t, rep.Stats, decoded.Stats)
	assert.Equal(t, rep.Health.Overall, decoded.Health.Overall)
	assert.Equal(t, rep.Recommendations, decoded.Recommendations)
}

// TestUsage_GettersAgreeWithReport tests that each standalone getter
// computes the same section a quiet ledger's Usage() carries.
func TestUsage_GettersAgreeWithReport(t *testing.T) {
	a := buildPopulatedAnalyzer(t)
	rep := a.Usage()

	assert.Equal(t, rep.Stats, a.Stats())
	assert.Equal(t, rep.Leaks, a.Leaks())
	assert.Equal(t, rep.Fragmentation, a.Fragmentation())
	assert.Equal(t, rep.SizeDistribution, a.SizeDistribution())
	assert.Equal(t, rep.Temporal, a.Temporal())
	assert.Equal(t, rep.Threads, a.Threads())
	assert.Equal(t, rep.Alignment, a.Alignment())
	assert.Equal(t, rep.Cache, a.Cache())
	assert.Equal(t, rep.AccessPatterns, a.AccessPatterns())
	assert.Equal(t, rep.Recommendations, a.Recommendations())
	assert.Equal(t, rep.Health, a.Health())
	assert.Equal(t, rep.Ownership, a.OwnershipCounts())
}
