// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

import "errors"

// Sentinel errors returned by the query surface. Recording operations
// never return errors: unknown addresses are silent no-ops.
var (
	// ErrNotFound is returned by GetAllocation when no live record
	// exists for the address.
	ErrNotFound = errors.New("memtrace: allocation not found")
)
