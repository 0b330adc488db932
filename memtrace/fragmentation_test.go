// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFragmentation_Empty tests the zero-live case: no gaps, ratio 0.
func TestFragmentation_Empty(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	frag := a.Fragmentation()
	require.Zero(t, frag.GapCount)
	require.Zero(t, frag.Ratio)
	require.False(t, frag.Severe)
}

// TestFragmentation_Contiguous tests that back-to-back ranges produce no
// gaps.
func TestFragmentation_Contiguous(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	a.RecordAllocation(0, 10, "x")
	a.RecordAllocation(10, 10, "x")
	a.RecordAllocation(20, 10, "x")

	frag := a.Fragmentation()
	require.Zero(t, frag.GapCount)
	require.Zero(t, frag.TotalGap)
	require.Zero(t, frag.Ratio)
}

// TestFragmentation_WorkedExample drives the canonical layout: live
// ranges [0,10), [20,30), [30,40) leave one 10-byte gap over 30 live
// bytes.
func TestFragmentation_WorkedExample(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	a.RecordAllocation(0, 10, "x")
	a.RecordAllocation(20, 10, "x")
	a.RecordAllocation(30, 10, "x")

	frag := a.Fragmentation()
	require.Equal(t, 1, frag.GapCount)
	require.Equal(t, uint64(10), frag.LargestGap)
	require.Equal(t, uint64(10), frag.TotalGap)
	require.Equal(t, []uint64{10}, frag.Gaps)
	require.InDelta(t, 10.0/30.0, frag.Ratio, 1e-9)
	require.True(t, frag.Severe, "ratio 1/3 exceeds the 0.3 threshold")
}

// TestFragmentation_FreeOpensGap tests that freeing the middle of three
// contiguous ranges turns its span into a gap.
func TestFragmentation_FreeOpensGap(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	a.RecordAllocation(0x1000, 256, "x")
	a.RecordAllocation(0x1100, 256, "x")
	a.RecordAllocation(0x1200, 256, "x")
	require.Zero(t, a.Fragmentation().GapCount)

	a.RecordDeallocation(0x1100)

	frag := a.Fragmentation()
	require.Equal(t, 1, frag.GapCount)
	require.Equal(t, uint64(256), frag.LargestGap)
	require.InDelta(t, 256.0/512.0, frag.Ratio, 1e-9)
}

// TestFragmentation_OverlapIgnored tests that overlapping ranges never
// contribute negative gaps.
func TestFragmentation_OverlapIgnored(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	// [0,100) and [50,150) overlap; [300,310) sits apart.
	a.RecordAllocation(0, 100, "x")
	a.RecordAllocation(50, 100, "x")
	a.RecordAllocation(300, 10, "x")

	frag := a.Fragmentation()
	require.Equal(t, 1, frag.GapCount)
	require.Equal(t, uint64(150), frag.TotalGap, "gap runs from 150 to 300")
}
