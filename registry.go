// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl

import (
	"fmt"
	"os"
	"sync"

	"github.com/Leif-Rydenfalk/krnl/internal/artifact"
)

// ParamKind classifies a kernel parameter.
type ParamKind uint8

const (
	// PushParam is a scalar passed by value to every invocation.
	PushParam ParamKind = iota + 1

	// ItemParam is an element-wise buffer. All item buffers of a
	// dispatch must agree in length, and that length drives implicit
	// group-count inference.
	ItemParam

	// GlobalParam is a raw buffer the kernel indexes explicitly.
	GlobalParam
)

// String returns the parameter kind name.
func (k ParamKind) String() string {
	switch k {
	case PushParam:
		return "push"
	case ItemParam:
		return "item"
	case GlobalParam:
		return "global"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(k))
	}
}

// ParamDesc is one entry of a kernel's parameter schema, in declaration
// order.
type ParamDesc struct {
	Name    string
	Kind    ParamKind
	Scalar  ScalarType
	Mutable bool
}

// KernelSpec declares a kernel to the registry. Kernel packages build
// one per kernel and pass it to [Register] from an init function.
//
// Source is the WGSL text the offline compiler consumed; the runtime
// hashes it to verify the cache artifact was built from the same
// revision. Host is the Go rendition of the kernel body and runs when
// the kernel is dispatched to [Host].
type KernelSpec struct {
	Name     string
	Source   string
	Threads  []uint32
	Params   []ParamDesc
	Features Features
	Host     func(k *Kctx)
}

var registry = struct {
	mu      sync.RWMutex
	kernels map[string]*KernelSpec
}{kernels: make(map[string]*KernelSpec)}

// Register adds a kernel to the process-wide registry. It is intended
// to be called from init functions of kernel packages and panics on an
// invalid or duplicate spec, the same way database/sql drivers do.
func Register(spec KernelSpec) {
	if err := validateSpec(&spec); err != nil {
		panic(fmt.Sprintf("krnl: Register(%q): %v", spec.Name, err))
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, dup := registry.kernels[spec.Name]; dup {
		panic(fmt.Sprintf("krnl: Register(%q): already registered", spec.Name))
	}
	registry.kernels[spec.Name] = &spec
}

func validateSpec(spec *KernelSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("empty name")
	}
	if len(spec.Threads) == 0 {
		return fmt.Errorf("no thread variants declared")
	}
	seen := make(map[uint32]bool, len(spec.Threads))
	for _, t := range spec.Threads {
		if t == 0 {
			return fmt.Errorf("zero thread count")
		}
		if seen[t] {
			return fmt.Errorf("duplicate thread variant %d", t)
		}
		seen[t] = true
	}
	names := make(map[string]bool, len(spec.Params))
	for _, p := range spec.Params {
		if p.Name == "" {
			return fmt.Errorf("unnamed parameter")
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		names[p.Name] = true
		switch p.Kind {
		case PushParam, ItemParam, GlobalParam:
		default:
			return fmt.Errorf("parameter %q has invalid kind", p.Name)
		}
		if p.Scalar.Size() == 0 {
			return fmt.Errorf("parameter %q has invalid scalar type", p.Name)
		}
		if p.Kind == PushParam && p.Mutable {
			return fmt.Errorf("push parameter %q cannot be mutable", p.Name)
		}
	}
	if spec.Host == nil {
		return fmt.Errorf("missing host body")
	}
	return nil
}

func lookupSpec(name string) (*KernelSpec, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	spec, ok := registry.kernels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not registered", ErrDescriptorNotFound, name)
	}
	return spec, nil
}

// CacheEnv names the environment variable that overrides the cache
// artifact location.
const CacheEnv = "KRNL_CACHE"

// defaultCachePath is where the runtime looks for the compiled kernel
// artifact when CacheEnv is unset. The offline compiler writes this
// file; host-only programs run without it.
const defaultCachePath = "krnl-cache.bin"

var artifactState struct {
	once sync.Once
	art  *artifact.Artifact
	err  error
}

// loadArtifact lazily reads the cache artifact. A missing file is not
// an error; it means no device bytecode is available and device-side
// Build calls fail with [ErrDescriptorNotFound].
func loadArtifact() (*artifact.Artifact, error) {
	artifactState.once.Do(func() {
		path := os.Getenv(CacheEnv)
		if path == "" {
			path = defaultCachePath
		}
		art, err := artifact.Load(path)
		if err != nil {
			if os.IsNotExist(err) {
				Logger().Warn("krnl: no cache artifact, device dispatch unavailable", "path", path)
				return
			}
			artifactState.err = fmt.Errorf("krnl: load cache artifact %s: %w", path, err)
			return
		}
		artifactState.art = art
		Logger().Info("krnl: cache artifact loaded", "path", path, "kernels", len(art.Kernels))
	})
	return artifactState.art, artifactState.err
}

// deviceBytecode resolves the compiled variant of a kernel for a device
// dispatch, verifying that the artifact matches the registered source.
func deviceBytecode(spec *KernelSpec, threads uint32) ([]uint32, error) {
	art, err := loadArtifact()
	if err != nil {
		return nil, err
	}
	if art == nil {
		return nil, fmt.Errorf("%w: no cache artifact for %q (run krnlc build)", ErrDescriptorNotFound, spec.Name)
	}
	k, ok := art.Kernel(spec.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q missing from cache artifact", ErrDescriptorNotFound, spec.Name)
	}
	if k.Hash != artifact.HashSource([]byte(spec.Source)) {
		return nil, fmt.Errorf("%w: cache artifact for %q is stale (source changed, run krnlc build)",
			ErrDescriptorNotFound, spec.Name)
	}
	v, ok := k.Variant(threads)
	if !ok {
		return nil, fmt.Errorf("%w: %q has no compiled variant for %d threads", ErrDescriptorNotFound, spec.Name, threads)
	}
	return v.SPIRV, nil
}
