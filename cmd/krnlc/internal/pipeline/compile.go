// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"fmt"
	"regexp"

	"github.com/gogpu/naga"

	"github.com/Leif-Rydenfalk/krnl/internal/artifact"
)

// spirvMagic is the first word of every valid SPIR-V module.
const spirvMagic = 0x07230203

// workgroupSizeRe matches the @workgroup_size attribute whose literal
// krnlc rewrites per thread variant.
var workgroupSizeRe = regexp.MustCompile(`@workgroup_size\(\s*\d+\s*\)`)

// CompileKernel compiles one parsed kernel declaration: one SPIR-V blob
// per declared thread variant, each structurally validated.
func CompileKernel(decl *KernelDecl) (artifact.Kernel, error) {
	k := artifact.Kernel{
		Name:     decl.FullName(),
		Hash:     artifact.HashSource(decl.Source),
		Features: decl.Features(),
		Params:   decl.Params,
	}

	for _, threads := range decl.Threads {
		src, err := substituteWorkgroupSize(decl.Source, threads)
		if err != nil {
			return artifact.Kernel{}, fmt.Errorf("%w: %s: %v", ErrCompilationFailed, k.Name, err)
		}
		raw, err := naga.Compile(string(src))
		if err != nil {
			return artifact.Kernel{}, fmt.Errorf("%w: %s (threads=%d): %v", ErrCompilationFailed, k.Name, threads, err)
		}
		words, err := bytesToWords(raw)
		if err != nil {
			return artifact.Kernel{}, fmt.Errorf("%w: %s (threads=%d): %v", ErrCompilationFailed, k.Name, threads, err)
		}
		if err := ValidateSPIRV(words); err != nil {
			return artifact.Kernel{}, fmt.Errorf("%w: %s (threads=%d): %v", ErrCompilationFailed, k.Name, threads, err)
		}
		k.Variants = append(k.Variants, artifact.Variant{Threads: threads, SPIRV: words})
	}
	return k, nil
}

// substituteWorkgroupSize rewrites the @workgroup_size literal to the
// given thread count. The source must contain the attribute exactly
// once; that keeps the rewrite unambiguous with one kernel per file.
func substituteWorkgroupSize(src []byte, threads uint32) ([]byte, error) {
	matches := workgroupSizeRe.FindAllIndex(src, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no @workgroup_size attribute")
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("multiple @workgroup_size attributes")
	}
	return workgroupSizeRe.ReplaceAll(src, []byte(fmt.Sprintf("@workgroup_size(%d)", threads))), nil
}

// bytesToWords reinterprets little-endian SPIR-V bytes as words.
func bytesToWords(raw []byte) ([]uint32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("spirv byte length %d not word aligned", len(raw))
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = uint32(raw[i*4]) |
			uint32(raw[i*4+1])<<8 |
			uint32(raw[i*4+2])<<16 |
			uint32(raw[i*4+3])<<24
	}
	return words, nil
}

// SPIR-V opcodes and enums used by the structural check.
const (
	opEntryPoint            = 15
	executionModelGLCompute = 5
)

// ValidateSPIRV performs a structural sanity check of a compiled
// module: the magic word, a well-formed instruction stream, and a
// GLCompute entry point. Full semantic validation happened inside the
// WGSL front end; this guards against a broken or truncated encode.
func ValidateSPIRV(words []uint32) error {
	if len(words) < 5 {
		return fmt.Errorf("spirv module too short (%d words)", len(words))
	}
	if words[0] != spirvMagic {
		return fmt.Errorf("bad spirv magic %#08x", words[0])
	}
	if bound := words[3]; bound == 0 {
		return fmt.Errorf("spirv id bound is zero")
	}

	haveComputeEntry := false
	for i := 5; i < len(words); {
		wordCount := int(words[i] >> 16)
		opcode := words[i] & 0xffff
		if wordCount == 0 {
			return fmt.Errorf("zero-length instruction at word %d", i)
		}
		if i+wordCount > len(words) {
			return fmt.Errorf("instruction at word %d overruns module (len %d, end %d)", i, len(words), i+wordCount)
		}
		if opcode == opEntryPoint && wordCount >= 2 && words[i+1] == executionModelGLCompute {
			haveComputeEntry = true
		}
		i += wordCount
	}
	if !haveComputeEntry {
		return fmt.Errorf("no GLCompute entry point")
	}
	return nil
}
