// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Leif-Rydenfalk/krnl/internal/artifact"
)

func testSpec(name string) KernelSpec {
	return KernelSpec{
		Name:    name,
		Source:  "@compute @workgroup_size(64)\nfn main() {}\n",
		Threads: []uint32{64},
		Params: []ParamDesc{
			{Name: "x", Kind: ItemParam, Scalar: ScalarF32, Mutable: true},
		},
		Host: func(k *Kctx) {},
	}
}

func mustPanic(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, want) {
			t.Fatalf("panic = %v; want message containing %q", r, want)
		}
	}()
	fn()
}

func TestRegisterValidation(t *testing.T) {
	t.Run("duplicate", func(t *testing.T) {
		spec := testSpec("registrytest.dup")
		Register(spec)
		mustPanic(t, "already registered", func() { Register(spec) })
	})
	t.Run("empty name", func(t *testing.T) {
		spec := testSpec("")
		mustPanic(t, "empty name", func() { Register(spec) })
	})
	t.Run("no threads", func(t *testing.T) {
		spec := testSpec("registrytest.nothreads")
		spec.Threads = nil
		mustPanic(t, "no thread variants", func() { Register(spec) })
	})
	t.Run("duplicate threads", func(t *testing.T) {
		spec := testSpec("registrytest.dupthreads")
		spec.Threads = []uint32{64, 64}
		mustPanic(t, "duplicate thread variant", func() { Register(spec) })
	})
	t.Run("mutable push", func(t *testing.T) {
		spec := testSpec("registrytest.mutpush")
		spec.Params = []ParamDesc{{Name: "v", Kind: PushParam, Scalar: ScalarF32, Mutable: true}}
		mustPanic(t, "cannot be mutable", func() { Register(spec) })
	})
	t.Run("missing host body", func(t *testing.T) {
		spec := testSpec("registrytest.nohost")
		spec.Host = nil
		mustPanic(t, "missing host body", func() { Register(spec) })
	})
}

// injectArtifact replaces the lazily loaded artifact for the duration
// of a test.
func injectArtifact(t *testing.T, art *artifact.Artifact) {
	t.Helper()
	artifactState.once.Do(func() {}) // consume the real load
	prevArt, prevErr := artifactState.art, artifactState.err
	artifactState.art, artifactState.err = art, nil
	t.Cleanup(func() {
		artifactState.art, artifactState.err = prevArt, prevErr
		artifactState.once = sync.Once{}
	})
}

func TestDeviceBytecodeLookup(t *testing.T) {
	spec := testSpec("registrytest.lookup")
	words := []uint32{0x07230203, 1, 2}

	injectArtifact(t, &artifact.Artifact{Kernels: []artifact.Kernel{{
		Name: spec.Name,
		Hash: artifact.HashSource([]byte(spec.Source)),
		Variants: []artifact.Variant{
			{Threads: 64, SPIRV: words},
		},
	}}})

	got, err := deviceBytecode(&spec, 64)
	if err != nil {
		t.Fatalf("deviceBytecode: %v", err)
	}
	if len(got) != len(words) || got[0] != words[0] {
		t.Fatalf("bytecode = %v; want %v", got, words)
	}

	// Missing variant.
	if _, err := deviceBytecode(&spec, 128); !errors.Is(err, ErrDescriptorNotFound) {
		t.Fatalf("missing variant = %v; want ErrDescriptorNotFound", err)
	}

	// Unknown kernel.
	other := testSpec("registrytest.absent")
	if _, err := deviceBytecode(&other, 64); !errors.Is(err, ErrDescriptorNotFound) {
		t.Fatalf("missing kernel = %v; want ErrDescriptorNotFound", err)
	}
}

func TestDeviceBytecodeStaleHash(t *testing.T) {
	spec := testSpec("registrytest.stale")

	injectArtifact(t, &artifact.Artifact{Kernels: []artifact.Kernel{{
		Name: spec.Name,
		Hash: artifact.HashSource([]byte("different source entirely")),
		Variants: []artifact.Variant{
			{Threads: 64, SPIRV: []uint32{0x07230203}},
		},
	}}})

	_, err := deviceBytecode(&spec, 64)
	if !errors.Is(err, ErrDescriptorNotFound) {
		t.Fatalf("stale artifact = %v; want ErrDescriptorNotFound", err)
	}
	if !strings.Contains(err.Error(), "stale") {
		t.Fatalf("error %q should mention staleness", err)
	}
}

func TestDeviceBytecodeNoArtifact(t *testing.T) {
	spec := testSpec("registrytest.noartifact")
	injectArtifact(t, nil)

	_, err := deviceBytecode(&spec, 64)
	if !errors.Is(err, ErrDescriptorNotFound) {
		t.Fatalf("no artifact = %v; want ErrDescriptorNotFound", err)
	}
}
