// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernels registers the built-in kernel set. Importing it for
// side effects makes the kernels dispatchable by name:
//
//	import _ "github.com/Leif-Rydenfalk/krnl/kernels"
//
// Each kernel pairs a WGSL source (compiled offline by krnlc) with a Go
// host body executing the same computation. The embedded sources are
// the exact files krnlc consumes, so the runtime's artifact hash check
// holds.
package kernels

import (
	_ "embed"

	"github.com/Leif-Rydenfalk/krnl"
)

//go:embed saxpy.wgsl
var saxpySrc string

//go:embed fill.wgsl
var fillSrc string

//go:embed scale.wgsl
var scaleSrc string

//go:embed cast.wgsl
var castSrc string

//go:embed sum.wgsl
var sumSrc string

func init() {
	// kernels.saxpy: y = alpha*x + y
	krnl.Register(krnl.KernelSpec{
		Name:    "kernels.saxpy",
		Source:  saxpySrc,
		Threads: []uint32{256, 64},
		Params: []krnl.ParamDesc{
			{Name: "alpha", Kind: krnl.PushParam, Scalar: krnl.ScalarF32},
			{Name: "x", Kind: krnl.ItemParam, Scalar: krnl.ScalarF32},
			{Name: "y", Kind: krnl.ItemParam, Scalar: krnl.ScalarF32, Mutable: true},
		},
		Host: func(k *krnl.Kctx) {
			i := k.GlobalID()
			if i >= k.Items() {
				return
			}
			alpha := k.PushArg(0).F32()
			x := krnl.BindingOf[float32](k, 0)
			y := krnl.BindingOf[float32](k, 1)
			y[i] = alpha*x[i] + y[i]
		},
	})

	// kernels.fill: out[i] = value
	krnl.Register(krnl.KernelSpec{
		Name:    "kernels.fill",
		Source:  fillSrc,
		Threads: []uint32{256},
		Params: []krnl.ParamDesc{
			{Name: "value", Kind: krnl.PushParam, Scalar: krnl.ScalarF32},
			{Name: "out", Kind: krnl.ItemParam, Scalar: krnl.ScalarF32, Mutable: true},
		},
		Host: func(k *krnl.Kctx) {
			i := k.GlobalID()
			if i >= k.Items() {
				return
			}
			out := krnl.BindingOf[float32](k, 0)
			out[i] = k.PushArg(0).F32()
		},
	})

	// kernels.scale: x[i] *= alpha, in place
	krnl.Register(krnl.KernelSpec{
		Name:    "kernels.scale",
		Source:  scaleSrc,
		Threads: []uint32{256},
		Params: []krnl.ParamDesc{
			{Name: "alpha", Kind: krnl.PushParam, Scalar: krnl.ScalarF32},
			{Name: "x", Kind: krnl.ItemParam, Scalar: krnl.ScalarF32, Mutable: true},
		},
		Host: func(k *krnl.Kctx) {
			i := k.GlobalID()
			if i >= k.Items() {
				return
			}
			x := krnl.BindingOf[float32](k, 0)
			x[i] = k.PushArg(0).F32() * x[i]
		},
	})

	// kernels.cast: out[i] = float32(x[i])
	krnl.Register(krnl.KernelSpec{
		Name:    "kernels.cast",
		Source:  castSrc,
		Threads: []uint32{256},
		Params: []krnl.ParamDesc{
			{Name: "x", Kind: krnl.ItemParam, Scalar: krnl.ScalarU32},
			{Name: "out", Kind: krnl.ItemParam, Scalar: krnl.ScalarF32, Mutable: true},
		},
		Host: func(k *krnl.Kctx) {
			i := k.GlobalID()
			if i >= k.Items() {
				return
			}
			x := krnl.BindingOf[uint32](k, 0)
			out := krnl.BindingOf[float32](k, 1)
			out[i] = float32(x[i])
		},
	})

	// kernels.sum: partial[i] = sum of x[i], x[i+n], x[i+2n], ... where
	// n = len(partial). The input is raw indexed, so each logical thread
	// walks its own stride; callers reduce the partials on the host.
	krnl.Register(krnl.KernelSpec{
		Name:    "kernels.sum",
		Source:  sumSrc,
		Threads: []uint32{256},
		Params: []krnl.ParamDesc{
			{Name: "x", Kind: krnl.GlobalParam, Scalar: krnl.ScalarF32},
			{Name: "partial", Kind: krnl.ItemParam, Scalar: krnl.ScalarF32, Mutable: true},
		},
		Host: func(k *krnl.Kctx) {
			i := k.GlobalID()
			if i >= k.Items() {
				return
			}
			x := krnl.BindingOf[float32](k, 0)
			partial := krnl.BindingOf[float32](k, 1)
			var acc float32
			for j := i; j < uint64(len(x)); j += k.Items() {
				acc += x[j]
			}
			partial[i] = acc
		},
	})
}
