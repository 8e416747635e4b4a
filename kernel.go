// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl

import (
	"fmt"
	"math"
	"sync"

	"github.com/Leif-Rydenfalk/krnl/internal/engine"
)

// DispatchArg is one argument of a kernel dispatch. Build values with
// [Push], [Arg], and [ArgMut]; the zero value is invalid.
type DispatchArg struct {
	isPush  bool
	push    ScalarElem
	scalar  ScalarType
	mutable bool

	// buffer view
	dev      Device
	off, n   int
	raw      *engine.Buffer
	hostData any // typed []T sub-slice when the buffer lives on the host
}

// Push wraps a scalar value as a push-constant argument.
func Push[T Scalar](v T) DispatchArg {
	e := scalarElemOf(v)
	return DispatchArg{isPush: true, push: e, scalar: e.Type()}
}

// Arg wraps a shared borrow as a read-only buffer argument.
func Arg[T Scalar](s Slice[T]) DispatchArg {
	a := DispatchArg{
		scalar: scalarTypeOf[T](),
		dev:    s.buf.dev,
		off:    s.lo,
		n:      s.Len(),
		raw:    s.buf.raw,
	}
	if s.buf.dev.IsHost() {
		a.hostData = s.buf.host[s.lo:s.hi:s.hi]
	}
	return a
}

// ArgMut wraps an exclusive borrow as a writable buffer argument.
func ArgMut[T Scalar](s SliceMut[T]) DispatchArg {
	a := DispatchArg{
		scalar:  scalarTypeOf[T](),
		mutable: true,
		dev:     s.buf.dev,
		off:     s.lo,
		n:       s.Len(),
		raw:     s.buf.raw,
	}
	if s.buf.dev.IsHost() {
		a.hostData = s.buf.host[s.lo:s.hi:s.hi]
	}
	return a
}

// KernelBuilder configures a kernel instantiation. Builders are cheap
// and single-use; Build resolves the registered kernel against a
// device.
type KernelBuilder struct {
	name    string
	threads uint32
}

// NewKernelBuilder starts building an instance of the named kernel.
// Names are fully qualified, e.g. "kernels.saxpy".
func NewKernelBuilder(name string) *KernelBuilder {
	return &KernelBuilder{name: name}
}

// WithThreads selects the workgroup-size variant to instantiate. The
// kernel must declare the value; the default is the first declared
// variant.
func (b *KernelBuilder) WithThreads(threads uint32) *KernelBuilder {
	b.threads = threads
	return b
}

// Build resolves the kernel for the given device. For hardware devices
// this locates the compiled bytecode variant in the cache artifact and
// verifies it matches the registered source; the host needs no
// bytecode.
func (b *KernelBuilder) Build(dev Device) (*Kernel, error) {
	spec, err := lookupSpec(b.name)
	if err != nil {
		return nil, err
	}

	threads := b.threads
	if threads == 0 {
		threads = spec.Threads[0]
	}
	declared := false
	for _, t := range spec.Threads {
		if t == threads {
			declared = true
			break
		}
	}
	if !declared {
		return nil, fmt.Errorf("%w: %q declares no %d-thread variant (have %v)",
			ErrDescriptorNotFound, b.name, threads, spec.Threads)
	}
	if !dev.Features().Contains(spec.Features) {
		return nil, fmt.Errorf("%w: %q needs features %s, device %s has %s",
			ErrDescriptorNotFound, b.name, spec.Features, dev, dev.Features())
	}

	k := &Kernel{spec: spec, dev: dev, threads: threads}
	if !dev.IsHost() {
		if max := dev.Info().MaxThreadsPerGroup; threads > max {
			return nil, fmt.Errorf("%w: %d threads exceeds device limit %d", ErrInvalidArgument, threads, max)
		}
		spirv, err := deviceBytecode(spec, threads)
		if err != nil {
			return nil, err
		}
		k.spirv = spirv
	}
	dev.retain()
	k.share = &deviceShare{dev: dev}
	return k, nil
}

// deviceShare is the keep-alive share an instance holds on its device.
// Configured copies of a Kernel reference the same share, so it is
// released exactly once no matter which copy is closed.
type deviceShare struct {
	dev  Device
	once sync.Once
}

// Kernel is a kernel instance bound to one device and one
// workgroup-size variant. Instances are immutable and safe for
// concurrent dispatch; WithGroups and WithGlobalThreads return
// configured copies.
type Kernel struct {
	spec    *KernelSpec
	dev     Device
	threads uint32
	spirv   []uint32
	share   *deviceShare

	groups    [3]uint32
	hasGroups bool
	cfgErr    error
}

// Name returns the fully qualified kernel name.
func (k *Kernel) Name() string { return k.spec.Name }

// Device returns the device the instance is bound to.
func (k *Kernel) Device() Device { return k.dev }

// Threads returns the workgroup size of the instantiated variant.
func (k *Kernel) Threads() uint32 { return k.threads }

// label identifies the instance in errors, e.g. "kernels.saxpy<threads=256>".
func (k *Kernel) label() string {
	return fmt.Sprintf("%s<threads=%d>", k.spec.Name, k.threads)
}

// WithGroups returns a copy configured to dispatch the given workgroup
// grid. All three counts must be at least 1.
func (k *Kernel) WithGroups(x, y, z uint32) *Kernel {
	c := *k
	c.groups = [3]uint32{x, y, z}
	c.hasGroups = true
	return &c
}

// WithGlobalThreads returns a copy configured to cover at least n
// logical threads: the group count is n divided by the workgroup size,
// rounded up. Kernels see the rounded-up thread total and bound their
// own work. An extent needing more groups than a dispatch dimension can
// express fails at the next Dispatch.
func (k *Kernel) WithGlobalThreads(n uint64) *Kernel {
	groups := n / uint64(k.threads)
	if n%uint64(k.threads) != 0 {
		groups++
	}
	c := *k
	if groups > math.MaxUint32 {
		c.cfgErr = fmt.Errorf("%w: %s: %d global threads needs %d groups, more than one dimension holds",
			ErrInvalidArgument, k.label(), n, groups)
		return &c
	}
	c.groups = [3]uint32{uint32(groups), 1, 1}
	c.hasGroups = true
	return &c
}

// Close drops the instance's keep-alive share of its device. All
// configured copies of the instance share it, so closing any one of
// them releases it; further closes are no-ops. Dispatching after the
// device has been torn down fails with ErrSubmissionFailed.
func (k *Kernel) Close() error {
	if k.share != nil {
		k.share.once.Do(func() { k.share.dev.release() })
	}
	return nil
}

// Dispatch validates args against the kernel's parameter schema and
// executes. The call is synchronous: it returns once the host body has
// finished or the device has signalled completion.
//
// The workgroup count comes from WithGroups or WithGlobalThreads if
// configured; otherwise it is inferred from the common length of the
// item buffers. A kernel with neither must be configured explicitly.
func (k *Kernel) Dispatch(args ...DispatchArg) error {
	if k.cfgErr != nil {
		return k.cfgErr
	}
	params := k.spec.Params
	if len(args) != len(params) {
		return fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidArgument, k.label(), len(params), len(args))
	}

	itemLen := -1
	var bufArgs []*DispatchArg
	for i := range args {
		a := &args[i]
		p := &params[i]
		if a.isPush != (p.Kind == PushParam) {
			return fmt.Errorf("%w: argument %d (%s) must be a %s", ErrInvalidArgument, i, p.Name, p.Kind)
		}
		if a.scalar != p.Scalar {
			return fmt.Errorf("%w: argument %d (%s) has scalar type %s, want %s",
				ErrInvalidArgument, i, p.Name, a.scalar, p.Scalar)
		}
		if a.isPush {
			continue
		}
		if p.Mutable && !a.mutable {
			return fmt.Errorf("%w: argument %d (%s) needs a mutable borrow", ErrInvalidArgument, i, p.Name)
		}
		if p.Kind == ItemParam {
			if itemLen >= 0 && a.n != itemLen {
				return fmt.Errorf("%w: argument %d (%s) has %d elements, other item buffers have %d",
					ErrLengthMismatch, i, p.Name, a.n, itemLen)
			}
			itemLen = a.n
		}
		bufArgs = append(bufArgs, a)
	}
	for i := range args {
		if params[i].Kind == PushParam {
			continue
		}
		if args[i].n == 0 {
			return fmt.Errorf("%w: argument %d (%s) is empty", ErrInvalidArgument, i, params[i].Name)
		}
	}
	for i := range args {
		if params[i].Kind == PushParam {
			continue
		}
		if !args[i].dev.Is(k.dev) {
			return fmt.Errorf("%w: argument %d (%s) lives on %s, kernel on %s",
				ErrDeviceMismatch, i, params[i].Name, args[i].dev, k.dev)
		}
	}

	groups := k.groups
	if !k.hasGroups {
		if itemLen < 0 {
			return fmt.Errorf("%w: %s has no item buffers, configure WithGroups or WithGlobalThreads",
				ErrInvalidArgument, k.label())
		}
		gx := (uint64(itemLen) + uint64(k.threads) - 1) / uint64(k.threads)
		groups = [3]uint32{uint32(gx), 1, 1}
	}

	if k.dev.IsHost() {
		k.runHost(args, bufArgs, itemLen, groups)
		return nil
	}
	return k.runDevice(args, bufArgs, groups)
}

// runDevice packs the params uniform and submits through the engine.
// Layout: push constants in declaration order at their natural
// alignment, then an (offset, length) u32 pair per buffer parameter in
// declaration order. This matches the Params struct the offline
// compiler checks in every kernel's WGSL.
func (k *Kernel) runDevice(args []DispatchArg, bufArgs []*DispatchArg, groups [3]uint32) error {
	var packed []byte
	for i := range args {
		if args[i].isPush {
			packed = args[i].push.appendBytes(packed)
		}
	}
	for _, a := range bufArgs {
		elem := ScalarElem{typ: ScalarU32, bits: uint64(uint32(a.off))}
		packed = elem.appendBytes(packed)
		elem = ScalarElem{typ: ScalarU32, bits: uint64(uint32(a.n))}
		packed = elem.appendBytes(packed)
	}

	engineArgs := make([]engine.BufferArg, len(bufArgs))
	bufIdx := 0
	for i := range k.spec.Params {
		if k.spec.Params[i].Kind == PushParam {
			continue
		}
		engineArgs[bufIdx] = engine.BufferArg{
			Buf:     bufArgs[bufIdx].raw,
			Mutable: k.spec.Params[i].Mutable,
		}
		bufIdx++
	}

	key := engine.PipelineKey{Name: k.spec.Name, Threads: k.threads}
	if err := k.dev.engine().Dispatch(key, k.spirv, packed, engineArgs, groups); err != nil {
		return fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	return nil
}
