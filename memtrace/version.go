// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memtrace

// Version information for the Limitly memory analyzer.
const (
	// Version is the current version of the analyzer.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides runtime information about the analyzer build.
type Info struct {
	// Version is the analyzer version string.
	Version string

	// MaxAlignment is the alignment boundary padding is measured
	// against, in bytes.
	MaxAlignment int

	// CacheLine is the cache-line size the access model assumes, in
	// bytes.
	CacheLine int

	// Enabled indicates whether the default analyzer is recording.
	Enabled bool
}

// GetInfo returns information about the analyzer.
//
// Example:
//
//	info := memtrace.GetInfo()
//	fmt.Printf("memtrace %s (align %d, line %d)\n", info.Version, info.MaxAlignment, info.CacheLine)
func GetInfo() Info {
	return Info{
		Version:      Version,
		MaxAlignment: maxAlignment,
		CacheLine:    cacheLineSize,
		Enabled:      Enabled(),
	}
}
