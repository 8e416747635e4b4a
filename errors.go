// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl

import "errors"

// Runtime errors. Every public operation returns one of these sentinels
// (usually wrapped with context via fmt.Errorf and %w); nothing in the
// core panics across the API boundary, and nothing retries internally.
var (
	// ErrDeviceUnavailable is returned when device selection criteria match
	// no device. Callers can recover by falling back to Host().
	ErrDeviceUnavailable = errors.New("krnl: no matching device available")

	// ErrAllocationFailed is returned when a device or host allocation
	// fails. It is surfaced to the caller, never retried internally.
	ErrAllocationFailed = errors.New("krnl: buffer allocation failed")

	// ErrDescriptorNotFound is returned when a kernel descriptor is
	// missing from the registry, the cache artifact was built from a
	// different source revision (hash mismatch), or no compiled variant
	// exists for the requesting device's capability set.
	ErrDescriptorNotFound = errors.New("krnl: kernel descriptor not found")

	// ErrDeviceMismatch is returned before submission when a buffer's
	// location differs from the kernel instance's device, or when a
	// transfer is attempted directly between two device locations.
	ErrDeviceMismatch = errors.New("krnl: buffer and kernel bound to different devices")

	// ErrLengthMismatch is returned before submission when element-wise
	// buffer arguments disagree in length.
	ErrLengthMismatch = errors.New("krnl: element-wise buffer lengths disagree")

	// ErrSubmissionFailed is returned when device-level execution fails
	// (device lost, driver error, fence timeout). The underlying cause is
	// surfaced verbatim in the wrapped error.
	ErrSubmissionFailed = errors.New("krnl: device submission failed")

	// ErrBufferBorrowed is returned when acquiring a SliceMut over a range
	// with a live overlapping borrow, or a Slice over a range with a live
	// overlapping mutable borrow. Violations are caught at acquisition,
	// never at use.
	ErrBufferBorrowed = errors.New("krnl: buffer range already borrowed")

	// ErrHostOnly is returned for operations that require host-located
	// data, such as materializing a direct memory view of a device buffer.
	ErrHostOnly = errors.New("krnl: operation requires a host buffer")

	// ErrInvalidArgument is returned when a dispatch argument list does
	// not match the kernel's parameter schema.
	ErrInvalidArgument = errors.New("krnl: dispatch argument does not match parameter schema")
)
