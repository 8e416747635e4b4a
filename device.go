// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Leif-Rydenfalk/krnl/internal/engine"
)

// DeviceInfo describes a compute location.
type DeviceInfo struct {
	// Index is the adapter's enumeration index. -1 for the host.
	Index int

	// Name is the driver-reported adapter name, or "host".
	Name string

	// Kind classifies the location ("host", "discrete", "integrated",
	// "other").
	Kind string

	// Features are the optional capabilities the location provides.
	Features Features

	// MaxThreadsPerGroup is the largest workgroup size a kernel may use.
	// Zero on the host, which has no limit.
	MaxThreadsPerGroup uint32

	// MaxGroupsPerDimension is the largest group count per dispatch
	// dimension. Zero on the host.
	MaxGroupsPerDimension uint32

	// MaxBufferSize is the largest single allocation in bytes. Zero on
	// the host.
	MaxBufferSize uint64
}

// deviceInner is the shared state behind an opened hardware device.
// refs counts keep-alive shares: one for the opener, one per live
// buffer, one per built kernel instance. The adapter is released when
// the count reaches zero.
type deviceInner struct {
	info      DeviceInfo
	eng       *engine.Engine
	refs      atomic.Int64
	closeOnce sync.Once
}

// Device is a handle to a compute location: either the host or one
// opened hardware adapter. Handles are cheap values; copies refer to
// the same underlying device and compare equal under Is.
//
// The zero Device is the host.
type Device struct {
	inner *deviceInner
}

// Host returns the host device. Kernels dispatched to it run as
// ordinary Go code, so it is always available and supports every
// feature.
func Host() Device { return Device{} }

// Devices enumerates the available hardware adapters without opening
// any. The host is not listed; it always exists. A machine with no
// usable adapters returns an empty list and no error.
func Devices() ([]DeviceInfo, error) {
	adapters, err := engine.Enumerate()
	if err != nil {
		return nil, err
	}
	infos := make([]DeviceInfo, 0, len(adapters))
	for _, a := range adapters {
		infos = append(infos, DeviceInfo{
			Index: a.Index,
			Name:  a.Name,
			Kind:  a.Kind,
		})
	}
	return infos, nil
}

// NewDevice opens the hardware adapter at the given enumeration index.
// If no adapter exists at that index the error wraps
// [ErrDeviceUnavailable]; callers typically fall back to [Host].
func NewDevice(index int) (Device, error) {
	adapters, err := engine.Enumerate()
	if err != nil {
		return Device{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if index < 0 || index >= len(adapters) {
		return Device{}, fmt.Errorf("%w: index %d (have %d adapters)", ErrDeviceUnavailable, index, len(adapters))
	}

	eng, err := engine.Open(index)
	if err != nil {
		return Device{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	limits := eng.Limits()
	inner := &deviceInner{
		info: DeviceInfo{
			Index: index,
			Name:  eng.Info().Name,
			Kind:  eng.Info().Kind,
			// Hardware devices stay on the base feature set. WGSL has no
			// 64-bit scalar types, so wider elements are host only.
			Features:              0,
			MaxThreadsPerGroup:    limits.MaxThreadsPerGroup,
			MaxGroupsPerDimension: limits.MaxGroupsPerDimension,
			MaxBufferSize:         limits.MaxBufferSize,
		},
		eng: eng,
	}
	inner.refs.Store(1)
	Logger().Info("krnl: device opened", "index", index, "adapter", inner.info.Name, "kind", inner.info.Kind)
	return Device{inner: inner}, nil
}

// IsHost reports whether the device is the host.
func (d Device) IsHost() bool { return d.inner == nil }

// Is reports whether two handles refer to the same compute location.
func (d Device) Is(other Device) bool { return d.inner == other.inner }

// Info returns the device description.
func (d Device) Info() DeviceInfo {
	if d.inner == nil {
		return DeviceInfo{Index: -1, Name: "host", Kind: "host", Features: hostFeatures}
	}
	return d.inner.info
}

// Features returns the optional capabilities the device provides.
func (d Device) Features() Features {
	if d.inner == nil {
		return hostFeatures
	}
	return d.inner.info.Features
}

// Wait blocks until all work previously dispatched to the device has
// completed. On the host it returns immediately; dispatch is already
// synchronous there.
func (d Device) Wait() error {
	if d.inner == nil {
		return nil
	}
	if err := d.inner.eng.Wait(); err != nil {
		return fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	return nil
}

// Close drops the opener's keep-alive share of the adapter. Buffers
// and kernel instances hold their own shares, so teardown happens when
// the last of them is released. Closing the host or closing twice is a
// no-op.
func (d Device) Close() error {
	if d.inner == nil {
		return nil
	}
	d.inner.closeOnce.Do(func() {
		d.release()
	})
	return nil
}

// retain adds a keep-alive share. No-op on the host.
func (d Device) retain() {
	if d.inner != nil {
		d.inner.refs.Add(1)
	}
}

// release drops a keep-alive share, tearing the adapter down when the
// last share goes away.
func (d Device) release() {
	if d.inner != nil && d.inner.refs.Add(-1) == 0 {
		d.inner.eng.Close()
	}
}

// String returns a short identifier like "host" or "device(0)".
func (d Device) String() string {
	if d.inner == nil {
		return "host"
	}
	return fmt.Sprintf("device(%d)", d.inner.info.Index)
}

// engine returns the hardware engine, or nil on the host.
func (d Device) engine() *engine.Engine {
	if d.inner == nil {
		return nil
	}
	return d.inner.eng
}
