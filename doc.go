// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package krnl provides a portable GPGPU compute runtime for Go.
//
// # Overview
//
// krnl exposes CUDA/OpenCL-style compute kernels on top of the
// cross-platform gogpu/wgpu hardware abstraction layer. Kernels are
// authored in WGSL alongside a Go host body; the offline compiler
// (cmd/krnlc) cross-compiles the WGSL to SPIR-V, validates it, and packs
// everything into a content-addressed cache artifact that the runtime
// loads lazily. Ordinary builds never invoke the compiler.
//
// # Quick Start
//
//	import (
//	    "github.com/Leif-Rydenfalk/krnl"
//	    _ "github.com/Leif-Rydenfalk/krnl/kernels" // built-in kernel set
//	)
//
//	// Pick the first available device, or fall back to the host.
//	device, err := krnl.NewDevice(0)
//	if err != nil {
//	    device = krnl.Host()
//	}
//	defer device.Close()
//
//	x, _ := krnl.FromSlice(krnl.Host(), []float32{1, 1, 1})
//	x, _ = x.Transfer(device)
//	y, _ := krnl.NewBuffer[float32](device, 3)
//
//	xs, _ := x.Slice()
//	defer xs.Release()
//	ys, _ := y.SliceMut()
//	defer ys.Release()
//
//	kern, err := krnl.NewKernelBuilder("kernels.saxpy").Build(device)
//	if err == nil {
//	    err = kern.Dispatch(krnl.Push(float32(2)), krnl.Arg(xs), krnl.ArgMut(ys))
//	}
//
// # Architecture
//
// The module is organized into:
//   - Public API: Device, Buffer, Slice/SliceMut, KernelBuilder, Kernel
//   - internal/engine: wgpu/hal device engine (buffers, pipelines, submission)
//   - internal/artifact: cache artifact wire format and content hashing
//   - cmd/krnlc/internal/pipeline: the offline compilation pipeline
//   - cache: sharded cache backing the engine's pipeline cache
//
// # Execution Model
//
// Dispatch is synchronous from the caller's perspective: a call returns
// once the host body finished or the device signalled completion. Two
// dispatches submitted sequentially on the same device execute in
// submission order. There is no cancellation in the core contract;
// callers needing time-bounding build it above this layer.
package krnl
