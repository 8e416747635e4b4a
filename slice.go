// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl

// Slice is a shared (read-only) borrow of a buffer range. Any number of
// shared borrows may coexist over overlapping ranges, but none may
// overlap a live [SliceMut].
//
// A Slice stays live until Release is called; dropping it without
// releasing leaks the borrow and blocks future mutable borrows of the
// range.
type Slice[T Scalar] struct {
	buf    *Buffer[T]
	lo, hi int
	id     uint64
}

// SliceMut is an exclusive (read-write) borrow of a buffer range. It
// conflicts with every other live borrow that overlaps its range.
type SliceMut[T Scalar] struct {
	buf    *Buffer[T]
	lo, hi int
	id     uint64
}

// Slice borrows the whole buffer for reading.
func (b *Buffer[T]) Slice() (Slice[T], error) {
	return b.SliceRange(0, b.n)
}

// SliceRange borrows the element range [lo, hi) for reading.
func (b *Buffer[T]) SliceRange(lo, hi int) (Slice[T], error) {
	id, err := b.acquire(lo, hi, false)
	if err != nil {
		return Slice[T]{}, err
	}
	return Slice[T]{buf: b, lo: lo, hi: hi, id: id}, nil
}

// SliceMut borrows the whole buffer for writing.
func (b *Buffer[T]) SliceMut() (SliceMut[T], error) {
	return b.SliceMutRange(0, b.n)
}

// SliceMutRange borrows the element range [lo, hi) for writing.
func (b *Buffer[T]) SliceMutRange(lo, hi int) (SliceMut[T], error) {
	id, err := b.acquire(lo, hi, true)
	if err != nil {
		return SliceMut[T]{}, err
	}
	return SliceMut[T]{buf: b, lo: lo, hi: hi, id: id}, nil
}

// Len returns the borrowed element count.
func (s Slice[T]) Len() int { return s.hi - s.lo }

// Device returns the location of the underlying buffer.
func (s Slice[T]) Device() Device { return s.buf.dev }

// Release ends the borrow. Calling Release twice is a no-op.
func (s Slice[T]) Release() { s.buf.release(s.id) }

// Len returns the borrowed element count.
func (s SliceMut[T]) Len() int { return s.hi - s.lo }

// Device returns the location of the underlying buffer.
func (s SliceMut[T]) Device() Device { return s.buf.dev }

// Release ends the borrow. Calling Release twice is a no-op.
func (s SliceMut[T]) Release() { s.buf.release(s.id) }
