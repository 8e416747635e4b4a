// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package engine wraps the wgpu hardware abstraction layer with the
// primitives the compute runtime needs: adapter enumeration, buffer
// allocation and transfer, pipeline caching, and synchronous dispatch.
//
// The engine is deliberately low level. It deals in raw bytes, SPIR-V
// words, and workgroup counts; typed buffers, parameter schemas, and
// borrow tracking live in the root package.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/Leif-Rydenfalk/krnl/cache"
)

// fenceTimeout is the maximum time to wait for submitted work to complete.
const fenceTimeout = 5 * time.Second

// pipelineCacheCapacity bounds the per-shard pipeline cache size. Evicted
// pipelines are destroyed, so a rebuilt pipeline only costs compile time.
const pipelineCacheCapacity = 32

// AdapterInfo describes one enumerated hardware adapter.
type AdapterInfo struct {
	// Index is the adapter's position in enumeration order. It is the
	// handle used to open the adapter and is stable for the process
	// lifetime on every backend we target.
	Index int

	// Name is the driver-reported adapter name.
	Name string

	// Kind classifies the adapter ("discrete", "integrated", "other").
	Kind string
}

// Limits reports the device limits relevant to compute dispatch.
type Limits struct {
	MaxThreadsPerGroup    uint32
	MaxGroupsPerDimension uint32
	MaxBufferSize         uint64
}

func adapterKind(t gputypes.DeviceType) string {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return "discrete"
	case gputypes.DeviceTypeIntegratedGPU:
		return "integrated"
	default:
		return "other"
	}
}

// Enumerate lists the available hardware adapters without opening any.
// A machine with no usable backend or no adapters returns an empty list
// and no error; unavailability is not a failure at enumeration time.
func Enumerate() ([]AdapterInfo, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, nil
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("engine: create instance: %w", err)
	}
	defer instance.Destroy()

	adapters := instance.EnumerateAdapters(nil)
	infos := make([]AdapterInfo, 0, len(adapters))
	for i := range adapters {
		infos = append(infos, AdapterInfo{
			Index: i,
			Name:  adapters[i].Info.Name,
			Kind:  adapterKind(adapters[i].Info.DeviceType),
		})
	}
	return infos, nil
}

// Engine owns one opened adapter: its instance, device, queue, and a
// cache of compiled compute pipelines.
//
// All submission goes through a single mutex, so two dispatches issued
// sequentially reach the queue in call order.
type Engine struct {
	mu sync.Mutex

	info   AdapterInfo
	limits Limits

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	pipelines *cache.Sharded[PipelineKey, *pipeline]

	closed bool
}

// Open opens the adapter at the given enumeration index.
func Open(index int) (*Engine, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("engine: no gpu backend available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("engine: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if index < 0 || index >= len(adapters) {
		instance.Destroy()
		return nil, fmt.Errorf("engine: adapter index %d out of range (%d adapters)", index, len(adapters))
	}
	selected := &adapters[index]

	requested := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), requested)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("engine: open adapter %q: %w", selected.Info.Name, err)
	}

	e := &Engine{
		info: AdapterInfo{
			Index: index,
			Name:  selected.Info.Name,
			Kind:  adapterKind(selected.Info.DeviceType),
		},
		limits: Limits{
			MaxThreadsPerGroup:    requested.MaxComputeInvocationsPerWorkgroup,
			MaxGroupsPerDimension: requested.MaxComputeWorkgroupsPerDimension,
			MaxBufferSize:         requested.MaxBufferSize,
		},
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
	}
	e.pipelines = cache.NewSharded[PipelineKey, *pipeline](pipelineCacheCapacity, pipelineKeyHasher)
	e.pipelines.OnEvict = func(_ PipelineKey, p *pipeline) { p.destroy(e.device) }

	slogger().Info("engine: adapter opened",
		"index", index,
		"adapter", e.info.Name,
		"kind", e.info.Kind)
	return e, nil
}

// Info returns the adapter description.
func (e *Engine) Info() AdapterInfo { return e.info }

// Limits returns the device limits negotiated at open time.
func (e *Engine) Limits() Limits { return e.limits }

// Wait blocks until all previously submitted work has completed.
// Every submission already fence-waits before returning, so Wait only
// needs to observe the submission lock.
func (e *Engine) Wait() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine: device closed")
	}
	return nil
}

// Close destroys all cached pipelines and releases the device and
// instance. Buffers still alive when Close is called are leaked to the
// driver; callers free buffers first.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true

	e.pipelines.Clear()
	if e.device != nil {
		e.device.Destroy()
		e.device = nil
	}
	if e.instance != nil {
		e.instance.Destroy()
		e.instance = nil
	}
	e.queue = nil
	slogger().Info("engine: adapter closed", "adapter", e.info.Name)
}
