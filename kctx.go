// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl

import (
	"fmt"
	"runtime"
	"sync"
)

// Kctx carries the per-invocation state a host kernel body sees. It
// mirrors the intrinsics a device kernel reads from its builtin inputs:
// global and group identifiers, grid extents, push constants, and the
// bound buffer ranges.
//
// A Kctx is only valid for the duration of one body invocation; bodies
// must not retain it.
type Kctx struct {
	globalID      uint64
	globalThreads uint64
	items         uint64
	groupID       uint32
	threadID      uint32
	groups        uint32
	threads       uint32

	pushes   []ScalarElem
	bindings []any // typed []T sub-slices, in buffer-parameter order
}

// GlobalID returns the linear invocation index across the whole grid.
func (k *Kctx) GlobalID() uint64 { return k.globalID }

// GlobalThreads returns the total invocation count of the dispatch,
// which is the group count times the workgroup size. It can exceed
// Items when the item count is not a workgroup multiple.
func (k *Kctx) GlobalThreads() uint64 { return k.globalThreads }

// Items returns the common length of the item buffers, or GlobalThreads
// when the kernel has none. Element-wise bodies bound their work with
// it.
func (k *Kctx) Items() uint64 { return k.items }

// GroupID returns the linear workgroup index.
func (k *Kctx) GroupID() uint32 { return k.groupID }

// ThreadID returns the invocation index within its workgroup.
func (k *Kctx) ThreadID() uint32 { return k.threadID }

// Groups returns the total workgroup count of the dispatch.
func (k *Kctx) Groups() uint32 { return k.groups }

// Threads returns the workgroup size.
func (k *Kctx) Threads() uint32 { return k.threads }

// PushArg returns the i-th push constant, counting push parameters only
// in declaration order.
func (k *Kctx) PushArg(i int) ScalarElem { return k.pushes[i] }

// BindingOf returns the i-th bound buffer range, counting buffer
// parameters only in declaration order. The type parameter must match
// the parameter's declared scalar type; dispatch validation guarantees
// the dynamic type, so a mismatch here is a bug in the kernel body and
// panics.
func BindingOf[T Scalar](k *Kctx, i int) []T {
	data, ok := k.bindings[i].([]T)
	if !ok {
		panic(fmt.Sprintf("krnl: binding %d is %T, kernel body asked for []%s", i, k.bindings[i], scalarTypeOf[T]()))
	}
	return data
}

// runHost executes the kernel body for every logical thread of the
// grid. Workgroups are distributed over a worker pool; invocations
// within a group run sequentially on one worker, so bodies may assume
// group-internal ordering but never cross-group ordering, matching
// device semantics closely enough for data-parallel kernels.
func (k *Kernel) runHost(args []DispatchArg, bufArgs []*DispatchArg, itemLen int, groups [3]uint32) {
	totalGroups := uint64(groups[0]) * uint64(groups[1]) * uint64(groups[2])
	globalThreads := totalGroups * uint64(k.threads)

	items := globalThreads
	if itemLen >= 0 {
		items = uint64(itemLen)
	}

	var pushes []ScalarElem
	for i := range args {
		if args[i].isPush {
			pushes = append(pushes, args[i].push)
		}
	}
	bindings := make([]any, len(bufArgs))
	for i, a := range bufArgs {
		bindings[i] = a.hostData
	}

	workers := runtime.GOMAXPROCS(0)
	if uint64(workers) > totalGroups {
		workers = int(totalGroups)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	next := make(chan uint64)
	body := k.spec.Host

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := Kctx{
				globalThreads: globalThreads,
				items:         items,
				groups:        uint32(totalGroups),
				threads:       k.threads,
				pushes:        pushes,
				bindings:      bindings,
			}
			for g := range next {
				ctx.groupID = uint32(g)
				base := g * uint64(k.threads)
				for t := uint32(0); t < k.threads; t++ {
					ctx.threadID = t
					ctx.globalID = base + uint64(t)
					body(&ctx)
				}
			}
		}()
	}
	for g := uint64(0); g < totalGroups; g++ {
		next <- g
	}
	close(next)
	wg.Wait()
}
