// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl

import "testing"

func TestBuildAttachesDeviceShare(t *testing.T) {
	Register(testSpec("refcounttest.build"))

	k, err := NewKernelBuilder("refcounttest.build").Build(Host())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if k.share == nil {
		t.Fatal("built instance holds no device share")
	}
	// Closing on the host is a no-op; twice is still fine.
	if err := k.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := k.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestKernelCloseReleasesShareOnce(t *testing.T) {
	inner := &deviceInner{}
	inner.refs.Store(2) // opener + the instance's share
	dev := Device{inner: inner}

	k := &Kernel{dev: dev, share: &deviceShare{dev: dev}}
	if err := k.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := inner.refs.Load(); got != 1 {
		t.Fatalf("refs after Close = %d; want 1", got)
	}

	// Configured copies share the instance's keep-alive share, so
	// further closes on any copy must not release again.
	copied := k.WithGroups(1, 1, 1)
	if err := copied.Close(); err != nil {
		t.Fatalf("copy Close: %v", err)
	}
	if err := k.Close(); err != nil {
		t.Fatalf("repeat Close: %v", err)
	}
	if got := inner.refs.Load(); got != 1 {
		t.Fatalf("refs after repeated Close = %d; want 1", got)
	}
}
