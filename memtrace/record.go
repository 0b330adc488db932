// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import (
	"fmt"
	"time"
)

// Address is the opaque allocation key the runtime reports. It is an
// integer token, never dereferenced; the analyzer does arithmetic on it
// only for alignment padding and fragmentation gap math.
type Address uint64

// String renders the address in the conventional hex form.
func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// AccessEvent describes one memory access inside an allocation, as an
// offset/length pair relative to the allocation base.
type AccessEvent struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// record is the ledger's mutable bookkeeping for one allocation. All
// fields are guarded by the analyzer mutex.
type record struct {
	addr        Address
	size        uint64
	site        string
	goroutine   int64
	allocatedAt time.Time
	freedAt     time.Time
	freed       bool
	padding     uint64
	accesses    []AccessEvent
}

// info returns an owned copy of the record. The access list is cloned so
// the caller can hold the copy without touching ledger state.
func (r *record) info() AllocationInfo {
	var accesses []AccessEvent
	if len(r.accesses) > 0 {
		accesses = make([]AccessEvent, len(r.accesses))
		copy(accesses, r.accesses)
	}
	return AllocationInfo{
		Address:     r.addr,
		Size:        r.size,
		CallSite:    r.site,
		Goroutine:   r.goroutine,
		AllocatedAt: r.allocatedAt,
		FreedAt:     r.freedAt,
		Freed:       r.freed,
		Padding:     r.padding,
		AccessCount: len(r.accesses),
		Accesses:    accesses,
	}
}

// AllocationInfo is an owned snapshot of one allocation record, safe to
// retain after the call that produced it.
type AllocationInfo struct {
	Address     Address       `json:"address"`
	Size        uint64        `json:"size"`
	CallSite    string        `json:"call_site"`
	Goroutine   int64         `json:"goroutine"`
	AllocatedAt time.Time     `json:"allocated_at"`
	FreedAt     time.Time     `json:"freed_at"`
	Freed       bool          `json:"freed"`
	Padding     uint64        `json:"padding"`
	AccessCount int           `json:"access_count"`
	Accesses    []AccessEvent `json:"accesses,omitempty"`
}
