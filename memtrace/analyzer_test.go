// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import (
	"bytes"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/coder/quartz"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestAnalyzer builds an analyzer on a mock clock with the journal
// captured in memory.
func newTestAnalyzer(t *testing.T) (*Analyzer, *quartz.Mock, *bytes.Buffer) {
	t.Helper()

	mock := quartz.NewMock(t)
	var journal bytes.Buffer
	a, err := New(WithLogWriter(&journal), WithClock(mock))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return a, mock, &journal
}

// TestNew_InitializesLedger verifies that New creates an empty, usable
// analyzer.
func TestNew_InitializesLedger(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	if a.live == nil {
		t.Error("live set not initialized")
	}
	if a.sites == nil {
		t.Error("call-site aggregator not initialized")
	}

	stats := a.Stats()
	if stats.Allocations != 0 || stats.LiveBytes != 0 {
		t.Errorf("fresh analyzer reports activity: %+v", stats)
	}
}

// TestNew_JournalOpenFailure verifies that a bad journal path fails
// construction and returns no analyzer.
func TestNew_JournalOpenFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "memory.log")

	a, err := New(WithLogPath(path))
	if err == nil {
		t.Fatal("New() with unwritable journal path succeeded")
	}
	if a != nil {
		t.Error("New() returned an analyzer alongside an error")
	}
}

// TestRecordAllocation_Basic tests the common path: one allocation lands
// in the live set with all fields derived.
func TestRecordAllocation_Basic(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	a.RecordAllocation(0x1003, 256, "interp.go:88 (vm.run)")

	stats := a.Stats()
	if stats.LiveBytes != 256 {
		t.Errorf("LiveBytes = %d, want 256", stats.LiveBytes)
	}
	if stats.Allocations != 1 || stats.LiveCount != 1 {
		t.Errorf("counters = %d allocs / %d live, want 1/1", stats.Allocations, stats.LiveCount)
	}

	info, err := a.GetAllocation(0x1003)
	if err != nil {
		t.Fatalf("GetAllocation() failed: %v", err)
	}
	if info.Size != 256 {
		t.Errorf("Size = %d, want 256", info.Size)
	}
	if info.CallSite != "interp.go:88 (vm.run)" {
		t.Errorf("CallSite = %q", info.CallSite)
	}
	// 0x1003 mod 16 = 3.
	if info.Padding != 3 {
		t.Errorf("Padding = %d, want 3", info.Padding)
	}
	if info.Goroutine <= 0 {
		t.Errorf("Goroutine = %d, want positive", info.Goroutine)
	}
	if info.Freed {
		t.Error("fresh allocation marked freed")
	}
}

// TestRecordAllocation_ReplacesLiveAddress tests that re-allocating a
// live address silently swaps the record and keeps totals conserved.
func TestRecordAllocation_ReplacesLiveAddress(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	a.RecordAllocation(0x2000, 100, "a")
	a.RecordAllocation(0x2000, 40, "b")

	stats := a.Stats()
	if stats.LiveBytes != 40 {
		t.Errorf("LiveBytes = %d, want 40 (replacement must release old size)", stats.LiveBytes)
	}
	if stats.LiveCount != 1 {
		t.Errorf("LiveCount = %d, want 1", stats.LiveCount)
	}
	if stats.Allocations != 2 {
		t.Errorf("Allocations = %d, want 2", stats.Allocations)
	}
	// The replaced record vanishes without entering the archive.
	if stats.HistoricalCount != 0 {
		t.Errorf("HistoricalCount = %d, want 0", stats.HistoricalCount)
	}

	info, err := a.GetAllocation(0x2000)
	if err != nil {
		t.Fatalf("GetAllocation() failed: %v", err)
	}
	if info.Size != 40 || info.CallSite != "b" {
		t.Errorf("live record = %d B from %q, want the replacement", info.Size, info.CallSite)
	}
}

// TestRecordAllocation_Watermarks tests peak-total and largest-size
// tracking across an alloc/free cycle.
func TestRecordAllocation_Watermarks(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	a.RecordAllocation(0x1000, 300, "x")
	a.RecordAllocation(0x2000, 200, "x")
	a.RecordDeallocation(0x1000)
	a.RecordAllocation(0x3000, 50, "x")

	stats := a.Stats()
	if stats.PeakBytes != 500 {
		t.Errorf("PeakBytes = %d, want 500", stats.PeakBytes)
	}
	if stats.LiveBytes != 250 {
		t.Errorf("LiveBytes = %d, want 250", stats.LiveBytes)
	}
	if stats.LargestAllocation != 300 {
		t.Errorf("LargestAllocation = %d, want 300", stats.LargestAllocation)
	}
}

// TestRecordDeallocation_MovesToArchive tests the free path.
func TestRecordDeallocation_MovesToArchive(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	a.RecordAllocation(0x4000, 128, "x")
	a.RecordDeallocation(0x4000)

	stats := a.Stats()
	if stats.LiveBytes != 0 || stats.LiveCount != 0 {
		t.Errorf("freed allocation still live: %+v", stats)
	}
	if stats.Deallocations != 1 {
		t.Errorf("Deallocations = %d, want 1", stats.Deallocations)
	}
	if stats.HistoricalCount != 1 {
		t.Errorf("HistoricalCount = %d, want 1", stats.HistoricalCount)
	}

	if _, err := a.GetAllocation(0x4000); err != ErrNotFound {
		t.Errorf("GetAllocation(freed) = %v, want ErrNotFound", err)
	}

	// The archived record keeps its identity and is marked freed.
	rec := a.history[0]
	if rec.addr != 0x4000 || !rec.freed {
		t.Errorf("archived record = %+v", rec)
	}
}

// TestRecordDeallocation_UnknownAddress tests that foreign and repeated
// frees are no-ops.
func TestRecordDeallocation_UnknownAddress(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	a.RecordAllocation(0x5000, 64, "x")
	a.RecordDeallocation(0xDEAD) // never allocated
	a.RecordDeallocation(0x5000)
	a.RecordDeallocation(0x5000) // double free

	stats := a.Stats()
	if stats.Deallocations != 1 {
		t.Errorf("Deallocations = %d, want 1 (no-ops must not count)", stats.Deallocations)
	}
	if stats.HistoricalCount != 1 {
		t.Errorf("HistoricalCount = %d, want 1", stats.HistoricalCount)
	}
	if stats.LiveBytes != 0 {
		t.Errorf("LiveBytes = %d, want 0", stats.LiveBytes)
	}
}

// TestRecordAccess_AppendsEvents tests access bookkeeping and the
// unknown-address no-op.
func TestRecordAccess_AppendsEvents(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	a.RecordAllocation(0x6000, 4096, "x")
	a.RecordAccess(0x6000, 0, 64)
	a.RecordAccess(0x6000, 64, 64)
	a.RecordAccess(0xBEEF, 0, 8) // unknown, dropped

	info, err := a.GetAllocation(0x6000)
	if err != nil {
		t.Fatalf("GetAllocation() failed: %v", err)
	}
	if info.AccessCount != 2 {
		t.Fatalf("AccessCount = %d, want 2", info.AccessCount)
	}
	if info.Accesses[0] != (AccessEvent{Offset: 0, Length: 64}) {
		t.Errorf("first access = %+v", info.Accesses[0])
	}
	if info.Accesses[1] != (AccessEvent{Offset: 64, Length: 64}) {
		t.Errorf("second access = %+v", info.Accesses[1])
	}
}

// TestGetAllocation_OwnedCopy tests that the returned info shares no
// state with the ledger.
func TestGetAllocation_OwnedCopy(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	a.RecordAllocation(0x7000, 32, "x")
	a.RecordAccess(0x7000, 0, 8)

	info, err := a.GetAllocation(0x7000)
	if err != nil {
		t.Fatalf("GetAllocation() failed: %v", err)
	}

	// Mutating the copy must not reach the ledger.
	info.Accesses[0] = AccessEvent{Offset: 999, Length: 999}
	info.Size = 0

	fresh, err := a.GetAllocation(0x7000)
	if err != nil {
		t.Fatalf("GetAllocation() failed: %v", err)
	}
	if fresh.Size != 32 {
		t.Errorf("Size = %d after copy mutation, want 32", fresh.Size)
	}
	if fresh.Accesses[0] != (AccessEvent{Offset: 0, Length: 8}) {
		t.Errorf("Accesses[0] = %+v after copy mutation", fresh.Accesses[0])
	}
}

// TestTotals_ConservationUnderReplay drives a scripted mix of
// allocations, replacements, frees and bogus frees, and checks that the
// running total always equals the sum of live sizes.
func TestTotals_ConservationUnderReplay(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	type op struct {
		free bool
		addr Address
		size uint64
	}
	script := []op{
		{free: false, addr: 0x1000, size: 100},
		{free: false, addr: 0x2000, size: 200},
		{free: false, addr: 0x1000, size: 50}, // replacement
		{free: true, addr: 0x9999},            // unknown
		{free: true, addr: 0x2000},
		{free: false, addr: 0x3000, size: 300},
		{free: true, addr: 0x2000}, // double free
		{free: false, addr: 0x2000, size: 10},
		{free: false, addr: 0x4000, size: 0}, // zero-size allocation
	}

	expected := make(map[Address]uint64)
	for _, o := range script {
		if o.free {
			a.RecordDeallocation(o.addr)
			delete(expected, o.addr)
		} else {
			a.RecordAllocation(o.addr, o.size, "replay")
			expected[o.addr] = o.size
		}

		var want uint64
		for _, size := range expected {
			want += size
		}
		if got := a.Stats().LiveBytes; got != want {
			t.Fatalf("LiveBytes = %d, want %d after op %+v", got, want, o)
		}
	}

	if got, want := a.Stats().LiveCount, len(expected); got != want {
		t.Errorf("LiveCount = %d, want %d", got, want)
	}
}

// TestConcurrentRecording hammers the ledger from many goroutines and
// checks that nothing is lost or torn.
func TestConcurrentRecording(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	const (
		workers = 8
		perG    = 200
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			base := Address(0x10000 * (w + 1))
			for i := 0; i < perG; i++ {
				addr := base + Address(i)*32
				a.RecordAllocation(addr, 64, "worker")
				a.RecordAccess(addr, 0, 8)
				a.IncActiveRegions()
				if i%2 == 0 {
					a.RecordDeallocation(addr)
				}
				a.DecActiveRegions()
			}
		}(w)
	}
	wg.Wait()

	stats := a.Stats()
	if stats.Allocations != workers*perG {
		t.Errorf("Allocations = %d, want %d", stats.Allocations, workers*perG)
	}
	wantFreed := uint64(workers * perG / 2)
	if stats.Deallocations != wantFreed {
		t.Errorf("Deallocations = %d, want %d", stats.Deallocations, wantFreed)
	}
	if wantLive := uint64(workers*perG) - wantFreed; stats.LiveBytes != wantLive*64 {
		t.Errorf("LiveBytes = %d, want %d", stats.LiveBytes, wantLive*64)
	}

	if got := a.OwnershipCounts().Regions; got != 0 {
		t.Errorf("Regions gauge = %d after balanced inc/dec, want 0", got)
	}
}

// TestUsage_NotTornUnderConcurrentRecording pulls full reports while
// recorder goroutines hammer the ledger, and checks that every snapshot
// is internally consistent: all sections of one Usage() call must
// describe the same instant, never a mix of ledger states.
func TestUsage_NotTornUnderConcurrentRecording(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	const (
		workers = 4
		perG    = 500
		size    = 64
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// Unique 16-byte-aligned addresses: no replacements, so
			// every allocation either stays live or reaches the archive.
			base := Address(0x100000 * (w + 1))
			for i := 0; i < perG; i++ {
				addr := base + Address(i)*128
				a.RecordAllocation(addr, size, "hammer")
				a.RecordAccess(addr, 0, 8)
				a.RecordDeallocation(addr)
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	checkSnapshot := func(st LedgerStats) {
		t.Helper()
		if st.LiveBytes != uint64(st.LiveCount)*size {
			t.Fatalf("torn report: LiveBytes = %d with %d live records of %d B",
				st.LiveBytes, st.LiveCount, size)
		}
		if st.Allocations-st.Deallocations != uint64(st.LiveCount) {
			t.Fatalf("torn report: %d allocs, %d frees, but %d live records",
				st.Allocations, st.Deallocations, st.LiveCount)
		}
		if st.Deallocations != uint64(st.HistoricalCount) {
			t.Fatalf("torn report: %d frees but %d archived records",
				st.Deallocations, st.HistoricalCount)
		}
	}

	for {
		checkSnapshot(a.Usage().Stats)
		select {
		case <-done:
			st := a.Usage().Stats
			checkSnapshot(st)
			if st.Allocations != workers*perG || st.LiveCount != 0 {
				t.Errorf("final stats = %d allocs / %d live, want %d/0",
					st.Allocations, st.LiveCount, workers*perG)
			}
			return
		default:
		}
	}
}

// TestJournal_AllocationLines tests the journal line shape and content.
func TestJournal_AllocationLines(t *testing.T) {
	a, _, journal := newTestAnalyzer(t)

	a.RecordAllocation(0x2a, 128, "interp.go:12 (vm.boot)")
	a.RecordDeallocation(0x2a) // frees are not journaled

	lines := strings.Split(strings.TrimRight(journal.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("journal has %d line(s), want 1: %q", len(lines), journal.String())
	}

	shape := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] alloc 128 B at 0x2a from interp\.go:12 \(vm\.boot\)$`)
	if !shape.MatchString(lines[0]) {
		t.Errorf("journal line %q does not match expected shape", lines[0])
	}
}

// TestOwnershipCounters_IndependentGauges tests the three gauges.
func TestOwnershipCounters_IndependentGauges(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	a.IncActiveRegions()
	a.IncActiveRegions()
	a.IncActiveReferences()
	a.IncActiveLinears()
	a.DecActiveLinears()
	a.DecActiveRegions()

	counts := a.OwnershipCounts()
	if counts.Regions != 1 || counts.References != 1 || counts.Linears != 0 {
		t.Errorf("OwnershipCounts = %+v, want {1 1 0}", counts)
	}
}

// TestClose_Idempotent tests that Close can be called twice.
func TestClose_Idempotent(t *testing.T) {
	a, err := New(WithLogWriter(io.Discard))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("first Close() = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
