// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffer is a raw device allocation. Element typing and borrow tracking
// are layered on top by the root package.
type Buffer struct {
	raw  hal.Buffer
	size uint64
}

// Size returns the allocation size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// NewBuffer allocates a device storage buffer of the given byte size.
// The buffer supports shader access and copies in both directions.
func (e *Engine) NewBuffer(label string, size uint64) (*Buffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("engine: device closed")
	}
	if size > e.limits.MaxBufferSize {
		return nil, fmt.Errorf("engine: buffer size %d exceeds device limit %d", size, e.limits.MaxBufferSize)
	}

	// Zero-sized WGSL bindings are invalid, so keep a 4-byte floor.
	alloc := size
	if alloc < 4 {
		alloc = 4
	}
	raw, err := e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  alloc,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: create buffer %q (%d bytes): %w", label, alloc, err)
	}

	slogger().Debug("engine: buffer allocated", "label", label, "bytes", alloc)
	return &Buffer{raw: raw, size: size}, nil
}

// Upload copies host bytes into the buffer at the given byte offset.
func (e *Engine) Upload(b *Buffer, offset uint64, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine: device closed")
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("engine: upload of %d bytes at offset %d exceeds buffer size %d", len(data), offset, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	e.queue.WriteBuffer(b.raw, offset, data)
	return nil
}

// Download copies len(dst) bytes out of the buffer starting at the given
// byte offset. The storage buffer is not host-visible, so the copy goes
// through a transient staging buffer and a full submit/fence round trip.
func (e *Engine) Download(b *Buffer, offset uint64, dst []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine: device closed")
	}
	size := uint64(len(dst))
	if offset+size > b.size {
		return fmt.Errorf("engine: download of %d bytes at offset %d exceeds buffer size %d", size, offset, b.size)
	}
	if size == 0 {
		return nil
	}

	staging, err := e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "krnl_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("engine: create staging buffer: %w", err)
	}
	defer e.device.DestroyBuffer(staging)

	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "krnl_download"})
	if err != nil {
		return fmt.Errorf("engine: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("krnl_download"); err != nil {
		return fmt.Errorf("engine: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(b.raw, staging, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("engine: end encoding: %w", err)
	}
	defer e.device.FreeCommandBuffer(cmdBuf)

	if err := e.submitLocked(cmdBuf); err != nil {
		return err
	}
	if err := e.queue.ReadBuffer(staging, 0, dst); err != nil {
		return fmt.Errorf("engine: readback: %w", err)
	}
	return nil
}

// CopyBuffer copies a byte range between two buffers on this device.
func (e *Engine) CopyBuffer(src, dst *Buffer, srcOff, dstOff, size uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine: device closed")
	}
	if srcOff+size > src.size {
		return fmt.Errorf("engine: copy source range %d+%d exceeds buffer size %d", srcOff, size, src.size)
	}
	if dstOff+size > dst.size {
		return fmt.Errorf("engine: copy destination range %d+%d exceeds buffer size %d", dstOff, size, dst.size)
	}
	if size == 0 {
		return nil
	}

	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "krnl_copy"})
	if err != nil {
		return fmt.Errorf("engine: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("krnl_copy"); err != nil {
		return fmt.Errorf("engine: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(src.raw, dst.raw, []hal.BufferCopy{
		{SrcOffset: srcOff, DstOffset: dstOff, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("engine: end encoding: %w", err)
	}
	defer e.device.FreeCommandBuffer(cmdBuf)

	return e.submitLocked(cmdBuf)
}

// FreeBuffer releases the device allocation. Safe on a nil buffer.
func (e *Engine) FreeBuffer(b *Buffer) {
	if b == nil || b.raw == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.device.DestroyBuffer(b.raw)
	b.raw = nil
}

// submitLocked submits one command buffer and waits for its fence.
// The caller must hold e.mu.
func (e *Engine) submitLocked(cmdBuf hal.CommandBuffer) error {
	fence, err := e.device.CreateFence()
	if err != nil {
		return fmt.Errorf("engine: create fence: %w", err)
	}
	defer e.device.DestroyFence(fence)

	if err := e.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("engine: submit: %w", err)
	}
	ok, err := e.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("engine: wait for fence: %w", err)
	}
	if !ok {
		return fmt.Errorf("engine: fence timeout after %v", fenceTimeout)
	}
	return nil
}
