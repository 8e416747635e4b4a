// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// BufferArg is one storage buffer argument of a dispatch, in binding
// order. Mutable selects read_write versus read storage access and must
// agree with the kernel's bytecode.
type BufferArg struct {
	Buf     *Buffer
	Mutable bool
}

// Dispatch runs one kernel variant over the given workgroup grid and
// blocks until the device signals completion.
//
// params is the packed contents of the uniform buffer at binding 0;
// args occupy bindings 1..N. The pipeline for key is built from spirv
// on first use and cached.
func (e *Engine) Dispatch(key PipelineKey, spirv []uint32, params []byte, args []BufferArg, groups [3]uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine: device closed")
	}
	for i, g := range groups {
		if g == 0 || g > e.limits.MaxGroupsPerDimension {
			return fmt.Errorf("engine: group count %d in dimension %d outside device range [1, %d]",
				g, i, e.limits.MaxGroupsPerDimension)
		}
	}

	p, err := e.pipelines.GetOrCreate(key, func() (*pipeline, error) {
		mutable := make([]bool, len(args))
		for i, a := range args {
			mutable[i] = a.Mutable
		}
		return e.buildPipeline(key, spirv, mutable)
	})
	if err != nil {
		return err
	}
	if p.bindings != len(args) {
		return fmt.Errorf("engine: kernel %q expects %d buffer bindings, got %d", key.Name, p.bindings, len(args))
	}

	// Uniform bindings have a minimum size; pad the params blob to a
	// 16-byte boundary so short packings stay valid.
	padded := params
	if rem := len(padded) % 16; rem != 0 || len(padded) == 0 {
		padded = append(append([]byte(nil), params...), make([]byte, 16-rem)...)
	}
	paramsBuf, err := e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: key.Name + "_params",
		Size:  uint64(len(padded)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("engine: create params buffer: %w", err)
	}
	defer e.device.DestroyBuffer(paramsBuf)
	e.queue.WriteBuffer(paramsBuf, 0, padded)

	entries := make([]gputypes.BindGroupEntry, 0, len(args)+1)
	entries = append(entries, gputypes.BindGroupEntry{
		Binding: 0,
		Resource: gputypes.BufferBinding{
			Buffer: paramsBuf.NativeHandle(),
			Offset: 0,
			Size:   0, // 0 = entire buffer
		},
	})
	for i, a := range args {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: uint32(i + 1),
			Resource: gputypes.BufferBinding{
				Buffer: a.Buf.raw.NativeHandle(),
				Offset: 0,
				Size:   0,
			},
		})
	}
	bg, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   key.Name + "_bg",
		Layout:  p.bgLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("engine: create bind group %q: %w", key.Name, err)
	}
	defer e.device.DestroyBindGroup(bg)

	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: key.Name})
	if err != nil {
		return fmt.Errorf("engine: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(key.Name); err != nil {
		return fmt.Errorf("engine: begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: key.Name})
	pass.SetPipeline(p.raw)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(groups[0], groups[1], groups[2])
	pass.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("engine: end encoding: %w", err)
	}
	defer e.device.FreeCommandBuffer(cmdBuf)

	if err := e.submitLocked(cmdBuf); err != nil {
		return err
	}

	slogger().Debug("engine: dispatched",
		"kernel", key.Name,
		"threads", key.Threads,
		"groups_x", groups[0],
		"groups_y", groups[1],
		"groups_z", groups[2])
	return nil
}
