// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl_test

import (
	"errors"
	"testing"

	"github.com/Leif-Rydenfalk/krnl"
)

func TestNewBufferZeroed(t *testing.T) {
	b, err := krnl.NewBuffer[int32](krnl.Host(), 16)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if b.Len() != 16 {
		t.Fatalf("Len = %d; want 16", b.Len())
	}
	view, err := b.HostView()
	if err != nil {
		t.Fatalf("HostView: %v", err)
	}
	for i, v := range view {
		if v != 0 {
			t.Fatalf("element %d = %d; want 0", i, v)
		}
	}
}

func TestFromSliceCopies(t *testing.T) {
	src := []float32{1, 2, 3}
	b, err := krnl.FromSlice(krnl.Host(), src)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}

	// The buffer must not alias the input.
	src[0] = 99
	view, _ := b.HostView()
	if view[0] != 1 {
		t.Fatalf("buffer aliases input slice: view[0] = %v", view[0])
	}
}

func TestHostViewMutationVisible(t *testing.T) {
	b, _ := krnl.NewBuffer[float32](krnl.Host(), 4)
	view, _ := b.HostView()
	view[2] = 42

	out := make([]float32, 4)
	if _, err := b.Read(out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out[2] != 42 {
		t.Fatalf("Read[2] = %v; want 42", out[2])
	}
}

func TestReadPartial(t *testing.T) {
	b, _ := krnl.FromSlice(krnl.Host(), []int32{10, 20, 30, 40})

	short := make([]int32, 2)
	n, err := b.Read(short)
	if err != nil || n != 2 {
		t.Fatalf("Read(short) = %d, %v; want 2, nil", n, err)
	}
	if short[0] != 10 || short[1] != 20 {
		t.Fatalf("short = %v; want [10 20]", short)
	}

	long := make([]int32, 10)
	n, err = b.Read(long)
	if err != nil || n != 4 {
		t.Fatalf("Read(long) = %d, %v; want 4, nil", n, err)
	}
}

func TestTransferHostToHost(t *testing.T) {
	a, _ := krnl.FromSlice(krnl.Host(), []uint32{1, 2, 3})
	b, err := a.Transfer(krnl.Host())
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	// Independent copies.
	viewA, _ := a.HostView()
	viewB, _ := b.HostView()
	viewA[0] = 99
	if viewB[0] != 1 {
		t.Fatalf("transfer aliases source: viewB[0] = %d", viewB[0])
	}
}

func TestCopyFrom(t *testing.T) {
	src, _ := krnl.FromSlice(krnl.Host(), []float32{5, 6, 7})
	dst, _ := krnl.NewBuffer[float32](krnl.Host(), 3)
	if err := dst.CopyFrom(src); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	view, _ := dst.HostView()
	if view[0] != 5 || view[2] != 7 {
		t.Fatalf("dst = %v; want [5 6 7]", view)
	}

	bad, _ := krnl.NewBuffer[float32](krnl.Host(), 4)
	if err := bad.CopyFrom(src); !errors.Is(err, krnl.ErrLengthMismatch) {
		t.Fatalf("CopyFrom length mismatch = %v; want ErrLengthMismatch", err)
	}
}

func TestHostOnlyView(t *testing.T) {
	dev := testDevice(t)
	b, err := krnl.NewBuffer[float32](dev, 8)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	defer b.Free()

	if _, err := b.HostView(); !errors.Is(err, krnl.ErrHostOnly) {
		t.Fatalf("HostView on device buffer = %v; want ErrHostOnly", err)
	}
}

type myFloat float32

func TestNamedScalarTypeRejected(t *testing.T) {
	_, err := krnl.NewBuffer[myFloat](krnl.Host(), 4)
	if !errors.Is(err, krnl.ErrInvalidArgument) {
		t.Fatalf("NewBuffer[myFloat] = %v; want ErrInvalidArgument", err)
	}
}

func TestBorrowExclusivity(t *testing.T) {
	b, _ := krnl.NewBuffer[float32](krnl.Host(), 10)

	// Two shared borrows may coexist.
	s1, err := b.Slice()
	if err != nil {
		t.Fatalf("first Slice: %v", err)
	}
	s2, err := b.Slice()
	if err != nil {
		t.Fatalf("second Slice: %v", err)
	}

	// A mutable borrow conflicts with live shared borrows.
	if _, err := b.SliceMut(); !errors.Is(err, krnl.ErrBufferBorrowed) {
		t.Fatalf("SliceMut over shared = %v; want ErrBufferBorrowed", err)
	}

	s1.Release()
	s2.Release()

	m, err := b.SliceMut()
	if err != nil {
		t.Fatalf("SliceMut after release: %v", err)
	}
	// A shared borrow conflicts with the live mutable one.
	if _, err := b.Slice(); !errors.Is(err, krnl.ErrBufferBorrowed) {
		t.Fatalf("Slice over mut = %v; want ErrBufferBorrowed", err)
	}
	// So does a second mutable borrow.
	if _, err := b.SliceMut(); !errors.Is(err, krnl.ErrBufferBorrowed) {
		t.Fatalf("second SliceMut = %v; want ErrBufferBorrowed", err)
	}
	m.Release()
}

func TestBorrowRanges(t *testing.T) {
	b, _ := krnl.NewBuffer[float32](krnl.Host(), 10)

	// Disjoint mutable borrows may coexist.
	lo, err := b.SliceMutRange(0, 5)
	if err != nil {
		t.Fatalf("SliceMutRange(0,5): %v", err)
	}
	hi, err := b.SliceMutRange(5, 10)
	if err != nil {
		t.Fatalf("SliceMutRange(5,10): %v", err)
	}
	if lo.Len() != 5 || hi.Len() != 5 {
		t.Fatalf("Len = %d, %d; want 5, 5", lo.Len(), hi.Len())
	}

	// Any overlap with a live mutable borrow fails, shared or mutable.
	if _, err := b.SliceRange(4, 6); !errors.Is(err, krnl.ErrBufferBorrowed) {
		t.Fatalf("overlapping Slice = %v; want ErrBufferBorrowed", err)
	}
	if _, err := b.SliceMutRange(9, 10); !errors.Is(err, krnl.ErrBufferBorrowed) {
		t.Fatalf("overlapping SliceMut = %v; want ErrBufferBorrowed", err)
	}

	lo.Release()
	if _, err := b.SliceRange(4, 5); err != nil {
		t.Fatalf("Slice after release: %v", err)
	}
	hi.Release()

	// Out-of-range borrows are invalid, not borrowed.
	if _, err := b.SliceRange(8, 12); !errors.Is(err, krnl.ErrInvalidArgument) {
		t.Fatalf("out-of-range Slice = %v; want ErrInvalidArgument", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	b, _ := krnl.NewBuffer[float32](krnl.Host(), 4)
	s, _ := b.Slice()
	s.Release()
	s.Release() // second release is a no-op

	if _, err := b.SliceMut(); err != nil {
		t.Fatalf("SliceMut after double release: %v", err)
	}
}

func TestFreeIdempotent(t *testing.T) {
	b, _ := krnl.NewBuffer[float32](krnl.Host(), 4)
	b.Free()
	b.Free()

	if _, err := b.Slice(); !errors.Is(err, krnl.ErrInvalidArgument) {
		t.Fatalf("Slice of freed buffer = %v; want ErrInvalidArgument", err)
	}
}
