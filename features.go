// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl

import "strings"

// Features is a bitmask of optional device capabilities. A kernel
// declares the features it needs; Build fails unless the target device
// provides all of them.
type Features uint32

const (
	// FeatureFloat64 enables float64 buffer elements and push constants.
	FeatureFloat64 Features = 1 << iota

	// FeatureInt64 enables int64 and uint64 buffer elements and push
	// constants.
	FeatureInt64
)

// hostFeatures is what Host() reports. The host executes kernels as
// ordinary Go code, so every scalar width is available.
const hostFeatures = FeatureFloat64 | FeatureInt64

// Contains reports whether f provides every feature in sub.
func (f Features) Contains(sub Features) bool { return f&sub == sub }

// String returns a "+"-joined list of feature names.
func (f Features) String() string {
	if f == 0 {
		return "base"
	}
	var parts []string
	if f&FeatureFloat64 != 0 {
		parts = append(parts, "float64")
	}
	if f&FeatureInt64 != 0 {
		parts = append(parts, "int64")
	}
	return strings.Join(parts, "+")
}
