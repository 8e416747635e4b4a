// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/Leif-Rydenfalk/krnl/internal/engine"
)

// Buffer is a fixed-length array of scalars pinned to one compute
// location. A buffer never migrates; Transfer produces a new buffer on
// the target device instead.
//
// Kernels never see a Buffer directly. Dispatch arguments are built
// from [Slice] and [SliceMut] borrows, whose exclusivity is enforced at
// acquisition time.
type Buffer[T Scalar] struct {
	dev Device
	n   int

	host []T            // backing store when dev is the host
	raw  *engine.Buffer // device allocation otherwise

	mu      sync.Mutex
	borrows []borrow
	nextID  uint64
	freed   bool
}

// borrow records one live range borrow in element coordinates.
type borrow struct {
	id      uint64
	lo, hi  int
	mutable bool
}

func elemSize[T Scalar]() uint64 {
	var v T
	return uint64(unsafe.Sizeof(v))
}

// newBuffer allocates storage without initial contents.
func newBuffer[T Scalar](dev Device, n int) (*Buffer[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrInvalidArgument, n)
	}
	st := scalarTypeOf[T]()
	if st == ScalarInvalid {
		return nil, fmt.Errorf("%w: unsupported element type", ErrInvalidArgument)
	}
	if !dev.Features().Contains(st.Features()) {
		return nil, fmt.Errorf("%w: %s elements need features %s, device %s has %s",
			ErrInvalidArgument, st, st.Features(), dev, dev.Features())
	}

	b := &Buffer[T]{dev: dev, n: n}
	if dev.IsHost() {
		b.host = make([]T, n)
		return b, nil
	}
	raw, err := dev.engine().NewBuffer("krnl_buffer", uint64(n)*elemSize[T]())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	b.raw = raw
	dev.retain()
	return b, nil
}

// NewBuffer allocates a zero-filled buffer of n elements on the device.
func NewBuffer[T Scalar](dev Device, n int) (*Buffer[T], error) {
	b, err := newBuffer[T](dev, n)
	if err != nil {
		return nil, err
	}
	// Device storage comes back zeroed only on some drivers; make it a
	// guarantee.
	if !dev.IsHost() && n > 0 {
		zeros := make([]byte, uint64(n)*elemSize[T]())
		if err := dev.engine().Upload(b.raw, 0, zeros); err != nil {
			b.Free()
			return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
		}
	}
	return b, nil
}

// Zeros is an alias for [NewBuffer]; both return zero-filled storage.
func Zeros[T Scalar](dev Device, n int) (*Buffer[T], error) {
	return NewBuffer[T](dev, n)
}

// FromSlice allocates a buffer on the device holding a copy of data.
// The input slice is not retained.
func FromSlice[T Scalar](dev Device, data []T) (*Buffer[T], error) {
	b, err := newBuffer[T](dev, len(data))
	if err != nil {
		return nil, err
	}
	if dev.IsHost() {
		copy(b.host, data)
		return b, nil
	}
	if len(data) > 0 {
		if err := dev.engine().Upload(b.raw, 0, scalarBytes(data)); err != nil {
			b.Free()
			return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
		}
	}
	return b, nil
}

// scalarBytes reinterprets a scalar slice as its little-endian byte
// representation. All supported targets are little endian, so this is a
// view, not a copy.
func scalarBytes[T Scalar](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), uintptr(len(data))*unsafe.Sizeof(data[0]))
}

// Len returns the element count.
func (b *Buffer[T]) Len() int { return b.n }

// Device returns the location the buffer is pinned to.
func (b *Buffer[T]) Device() Device { return b.dev }

// ScalarType returns the element type tag.
func (b *Buffer[T]) ScalarType() ScalarType { return scalarTypeOf[T]() }

// HostView returns the backing slice of a host buffer. Mutations are
// visible to subsequent dispatches. Device buffers have no host-visible
// storage; use [Buffer.Read] instead.
func (b *Buffer[T]) HostView() ([]T, error) {
	if !b.dev.IsHost() {
		return nil, fmt.Errorf("%w: buffer lives on %s", ErrHostOnly, b.dev)
	}
	return b.host, nil
}

// Read copies up to len(dst) elements from the buffer into dst and
// returns the number copied. Device buffers round-trip through the
// transfer queue.
func (b *Buffer[T]) Read(dst []T) (int, error) {
	n := len(dst)
	if n > b.n {
		n = b.n
	}
	if n == 0 {
		return 0, nil
	}
	if b.dev.IsHost() {
		return copy(dst[:n], b.host), nil
	}
	if err := b.dev.engine().Download(b.raw, 0, scalarBytes(dst[:n])); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	return n, nil
}

// Transfer copies the buffer to another location and returns the copy.
// One side of the transfer must be the host: moving data between two
// hardware devices requires an explicit host staging hop, which this
// API refuses to hide.
func (b *Buffer[T]) Transfer(dst Device) (*Buffer[T], error) {
	if b.dev.Is(dst) {
		// Same location: plain copy.
		out, err := newBuffer[T](dst, b.n)
		if err != nil {
			return nil, err
		}
		if err := out.CopyFrom(b); err != nil {
			out.Free()
			return nil, err
		}
		return out, nil
	}
	if !b.dev.IsHost() && !dst.IsHost() {
		return nil, fmt.Errorf("%w: transfer %s to %s must stage through the host", ErrDeviceMismatch, b.dev, dst)
	}

	out, err := newBuffer[T](dst, b.n)
	if err != nil {
		return nil, err
	}
	if b.n == 0 {
		return out, nil
	}
	if b.dev.IsHost() {
		// Host to device.
		if err := dst.engine().Upload(out.raw, 0, scalarBytes(b.host)); err != nil {
			out.Free()
			return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
		}
		return out, nil
	}
	// Device to host.
	if err := b.dev.engine().Download(b.raw, 0, scalarBytes(out.host)); err != nil {
		out.Free()
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	return out, nil
}

// CopyFrom overwrites the buffer with the contents of src. Both buffers
// must be on the same device and have the same length.
func (b *Buffer[T]) CopyFrom(src *Buffer[T]) error {
	if !b.dev.Is(src.dev) {
		return fmt.Errorf("%w: copy from %s to %s", ErrDeviceMismatch, src.dev, b.dev)
	}
	if b.n != src.n {
		return fmt.Errorf("%w: copy %d elements into %d", ErrLengthMismatch, src.n, b.n)
	}
	if b.n == 0 {
		return nil
	}
	if b.dev.IsHost() {
		copy(b.host, src.host)
		return nil
	}
	size := uint64(b.n) * elemSize[T]()
	if err := b.dev.engine().CopyBuffer(src.raw, b.raw, 0, 0, size); err != nil {
		return fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	return nil
}

// Free releases device storage eagerly. Host buffers are reclaimed by
// the garbage collector; Free on them only marks the buffer unusable.
// Free is idempotent.
func (b *Buffer[T]) Free() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return
	}
	b.freed = true
	if b.raw != nil {
		b.dev.engine().FreeBuffer(b.raw)
		b.raw = nil
		b.dev.release()
	}
	b.host = nil
}

// acquire registers a borrow over [lo, hi), failing on any conflicting
// live borrow. Shared borrows conflict with overlapping mutable ones;
// mutable borrows conflict with any overlap.
func (b *Buffer[T]) acquire(lo, hi int, mutable bool) (uint64, error) {
	if lo < 0 || hi > b.n || lo > hi {
		return 0, fmt.Errorf("%w: range [%d, %d) outside buffer of length %d", ErrInvalidArgument, lo, hi, b.n)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return 0, fmt.Errorf("%w: buffer freed", ErrInvalidArgument)
	}
	for _, br := range b.borrows {
		if br.lo < hi && lo < br.hi && (mutable || br.mutable) {
			return 0, fmt.Errorf("%w: range [%d, %d) overlaps live borrow [%d, %d)",
				ErrBufferBorrowed, lo, hi, br.lo, br.hi)
		}
	}
	b.nextID++
	id := b.nextID
	b.borrows = append(b.borrows, borrow{id: id, lo: lo, hi: hi, mutable: mutable})
	return id, nil
}

// release drops the borrow with the given id. Releasing twice is a
// no-op.
func (b *Buffer[T]) release(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, br := range b.borrows {
		if br.id == id {
			b.borrows = append(b.borrows[:i], b.borrows[i+1:]...)
			return
		}
	}
}
