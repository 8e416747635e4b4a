// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/Leif-Rydenfalk/krnl/internal/artifact"
)

const saxpyHeader = `//krnl:module kernels
//krnl:kernel saxpy threads=256,64
//krnl:param alpha push f32
//krnl:param x item f32
//krnl:param y item mut f32

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {}
`

func TestParseSource(t *testing.T) {
	decl, err := ParseSource("saxpy.wgsl", []byte(saxpyHeader))
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	if decl.FullName() != "kernels.saxpy" {
		t.Errorf("FullName = %q; want kernels.saxpy", decl.FullName())
	}
	if len(decl.Threads) != 2 || decl.Threads[0] != 256 || decl.Threads[1] != 64 {
		t.Errorf("Threads = %v; want [256 64]", decl.Threads)
	}
	want := []artifact.Param{
		{Name: "alpha", Kind: artifact.ParamPush, Scalar: 1},
		{Name: "x", Kind: artifact.ParamItem, Scalar: 1},
		{Name: "y", Kind: artifact.ParamItem, Scalar: 1, Mutable: true},
	}
	if len(decl.Params) != len(want) {
		t.Fatalf("got %d params; want %d", len(decl.Params), len(want))
	}
	for i := range want {
		if decl.Params[i] != want[i] {
			t.Errorf("param %d = %+v; want %+v", i, decl.Params[i], want[i])
		}
	}
	if decl.Features() != 0 {
		t.Errorf("Features = %#x; want 0 for all-f32 kernel", decl.Features())
	}
}

func TestParseSourceFeatures(t *testing.T) {
	src := `//krnl:module kernels
//krnl:kernel sum64 threads=64
//krnl:param x item f64
//krnl:param n push u64
`
	decl, err := ParseSource("sum64.wgsl", []byte(src))
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	if decl.Features() != 0x3 {
		t.Errorf("Features = %#x; want 0x3 (float64+int64)", decl.Features())
	}
}

func TestParseSourceErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"missing module", "//krnl:kernel k threads=64\n"},
		{"missing kernel", "//krnl:module m\n"},
		{"param before kernel", "//krnl:module m\n//krnl:param x item f32\n//krnl:kernel k threads=64\n"},
		{"bad kind", "//krnl:module m\n//krnl:kernel k threads=64\n//krnl:param x array f32\n"},
		{"mut push", "//krnl:module m\n//krnl:kernel k threads=64\n//krnl:param x push mut f32\n"},
		{"bad scalar", "//krnl:module m\n//krnl:kernel k threads=64\n//krnl:param x item f16\n"},
		{"zero threads", "//krnl:module m\n//krnl:kernel k threads=0\n"},
		{"duplicate threads", "//krnl:module m\n//krnl:kernel k threads=64,64\n"},
		{"duplicate param", "//krnl:module m\n//krnl:kernel k threads=64\n//krnl:param x item f32\n//krnl:param x item f32\n"},
		{"second kernel", "//krnl:module m\n//krnl:kernel k threads=64\n//krnl:kernel j threads=64\n"},
		{"unknown directive", "//krnl:module m\n//krnl:kernel k threads=64\n//krnl:entry main\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSource("bad.wgsl", []byte(tc.src)); !errors.Is(err, ErrCompilationFailed) {
				t.Fatalf("ParseSource = %v; want ErrCompilationFailed", err)
			}
		})
	}
}

func TestSubstituteWorkgroupSize(t *testing.T) {
	src := []byte("@compute @workgroup_size(256)\nfn main() {}\n")
	out, err := substituteWorkgroupSize(src, 64)
	if err != nil {
		t.Fatalf("substituteWorkgroupSize: %v", err)
	}
	if !strings.Contains(string(out), "@workgroup_size(64)") {
		t.Fatalf("output = %q; want workgroup_size(64)", out)
	}

	if _, err := substituteWorkgroupSize([]byte("fn main() {}"), 64); err == nil {
		t.Error("missing attribute must fail")
	}
	double := []byte("@workgroup_size(1) @workgroup_size(2)")
	if _, err := substituteWorkgroupSize(double, 64); err == nil {
		t.Error("duplicate attribute must fail")
	}
}

// validModule builds a minimal word stream the structural check accepts:
// header plus one GLCompute OpEntryPoint instruction.
func validModule() []uint32 {
	return []uint32{
		spirvMagic, 0x00010300, 0, 8, 0, // header: magic, version, generator, bound, schema
		(4 << 16) | opEntryPoint, executionModelGLCompute, 1, 0,
	}
}

func TestValidateSPIRV(t *testing.T) {
	if err := ValidateSPIRV(validModule()); err != nil {
		t.Fatalf("ValidateSPIRV(valid) = %v", err)
	}

	bad := validModule()
	bad[0] = 0xdeadbeef
	if err := ValidateSPIRV(bad); err == nil {
		t.Error("bad magic must fail")
	}

	if err := ValidateSPIRV(validModule()[:3]); err == nil {
		t.Error("short module must fail")
	}

	overrun := validModule()
	overrun[5] = (40 << 16) | opEntryPoint // word count past end of module
	if err := ValidateSPIRV(overrun); err == nil {
		t.Error("overrunning instruction must fail")
	}

	noEntry := validModule()[:5]
	if err := ValidateSPIRV(noEntry); err == nil {
		t.Error("module without entry point must fail")
	}

	fragment := validModule()
	fragment[6] = 4 // Fragment execution model, not GLCompute
	if err := ValidateSPIRV(fragment); err == nil {
		t.Error("non-compute entry point must fail")
	}
}
