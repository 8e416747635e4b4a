// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/Leif-Rydenfalk/krnl/cache"
)

// PipelineKey identifies one compiled pipeline variant: a kernel plus
// the workgroup size its bytecode was specialized for.
type PipelineKey struct {
	Name    string
	Threads uint32
}

func pipelineKeyHasher(k PipelineKey) uint64 {
	// Mix the thread count into the name hash so variants of the same
	// kernel land on different cache slots.
	return cache.StringHasher(k.Name) ^ (uint64(k.Threads) * 0x9e3779b97f4a7c15)
}

// pipeline bundles the chain of objects behind one compute pipeline.
type pipeline struct {
	module     hal.ShaderModule
	bgLayout   hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	raw        hal.ComputePipeline
	bindings   int // storage buffer bindings, excluding the params uniform
}

func (p *pipeline) destroy(device hal.Device) {
	if p.raw != nil {
		device.DestroyComputePipeline(p.raw)
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
	}
	if p.bgLayout != nil {
		device.DestroyBindGroupLayout(p.bgLayout)
	}
	if p.module != nil {
		device.DestroyShaderModule(p.module)
	}
	*p = pipeline{}
}

// buildPipeline creates the shader module, layouts, and compute pipeline
// for one kernel variant. The bind group layout always places the params
// uniform at binding 0 and the storage buffers at bindings 1..N, matching
// the bytecode produced by the offline compiler.
//
// The caller must hold e.mu.
func (e *Engine) buildPipeline(key PipelineKey, spirv []uint32, mutable []bool) (*pipeline, error) {
	p := &pipeline{bindings: len(mutable)}

	module, err := e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  key.Name,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("engine: create shader module %q: %w", key.Name, err)
	}
	p.module = module

	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(mutable)+1)
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	})
	for i, mut := range mutable {
		bindingType := gputypes.BufferBindingTypeReadOnlyStorage
		if mut {
			bindingType = gputypes.BufferBindingTypeStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i + 1),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: bindingType},
		})
	}

	bgLayout, err := e.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   key.Name + "_bgl",
		Entries: entries,
	})
	if err != nil {
		p.destroy(e.device)
		return nil, fmt.Errorf("engine: create bind group layout %q: %w", key.Name, err)
	}
	p.bgLayout = bgLayout

	pipeLayout, err := e.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            key.Name + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		p.destroy(e.device)
		return nil, fmt.Errorf("engine: create pipeline layout %q: %w", key.Name, err)
	}
	p.pipeLayout = pipeLayout

	raw, err := e.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  key.Name,
		Layout: pipeLayout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		p.destroy(e.device)
		return nil, fmt.Errorf("engine: create compute pipeline %q: %w", key.Name, err)
	}
	p.raw = raw

	slogger().Debug("engine: pipeline created",
		"kernel", key.Name,
		"threads", key.Threads,
		"bindings", len(entries),
		"spirv_words", len(spirv))
	return p, nil
}
