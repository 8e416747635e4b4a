// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline implements the offline kernel compilation pipeline
// behind the krnlc command: kernel source discovery, directive parsing,
// WGSL to SPIR-V compilation, structural validation, and cache artifact
// emission.
package pipeline

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Leif-Rydenfalk/krnl/internal/artifact"
)

// ErrCompilationFailed is the sentinel all pipeline failures wrap.
var ErrCompilationFailed = errors.New("krnlc: compilation failed")

// directivePrefix marks the comment lines krnlc interprets. Everything
// else in a kernel source is plain WGSL.
const directivePrefix = "//krnl:"

// scalarCodes maps WGSL-style scalar names to the runtime's wire codes.
// Codes match krnl.ScalarType values.
var scalarCodes = map[string]uint8{
	"f32": 1,
	"i32": 2,
	"u32": 3,
	"f64": 4,
	"i64": 5,
	"u64": 6,
}

// scalarFeatures maps a scalar code to its required feature bits,
// mirroring krnl.ScalarType.Features.
func scalarFeatures(code uint8) uint32 {
	switch code {
	case 4: // f64
		return 1 << 0
	case 5, 6: // i64, u64
		return 1 << 1
	default:
		return 0
	}
}

// KernelDecl is one parsed kernel source file. Each file declares
// exactly one kernel; its content hash covers the whole file, so the Go
// registration embedding the same file hashes identically.
type KernelDecl struct {
	Path    string
	Module  string
	Name    string
	Threads []uint32
	Params  []artifact.Param
	Source  []byte
}

// FullName returns the qualified kernel name, e.g. "kernels.saxpy".
func (d *KernelDecl) FullName() string { return d.Module + "." + d.Name }

// Features returns the feature bits the kernel's scalars require.
func (d *KernelDecl) Features() uint32 {
	var f uint32
	for _, p := range d.Params {
		f |= scalarFeatures(p.Scalar)
	}
	return f
}

// ParseSource parses the krnl directives of one WGSL source file.
//
// The directive grammar is:
//
//	//krnl:module <name>
//	//krnl:kernel <name> threads=<n>[,<n>...]
//	//krnl:param <name> push|item|global [mut] <scalar>
//
// The module and kernel directives are required and must each appear
// once; param directives appear once per kernel parameter, in the order
// the dispatch arguments are passed.
func ParseSource(path string, src []byte) (*KernelDecl, error) {
	decl := &KernelDecl{Path: path, Source: src}

	fail := func(line int, format string, args ...any) error {
		return fmt.Errorf("%w: %s:%d: %s", ErrCompilationFailed, path, line, fmt.Sprintf(format, args...))
	}

	scanner := bufio.NewScanner(bytes.NewReader(src))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, directivePrefix) {
			continue
		}
		rest := strings.TrimPrefix(line, directivePrefix)
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return nil, fail(lineNo, "empty directive")
		}

		switch {
		case strings.HasPrefix(rest, "module "):
			if decl.Module != "" {
				return nil, fail(lineNo, "duplicate module directive")
			}
			if len(fields) != 2 {
				return nil, fail(lineNo, "module directive takes one name")
			}
			decl.Module = fields[1]

		case strings.HasPrefix(rest, "kernel "):
			if decl.Name != "" {
				return nil, fail(lineNo, "duplicate kernel directive (one kernel per file)")
			}
			if len(fields) != 3 {
				return nil, fail(lineNo, "kernel directive is: kernel <name> threads=<n>[,<n>...]")
			}
			decl.Name = fields[1]
			threadsArg, ok := strings.CutPrefix(fields[2], "threads=")
			if !ok {
				return nil, fail(lineNo, "kernel directive missing threads=")
			}
			for _, part := range strings.Split(threadsArg, ",") {
				n, err := strconv.ParseUint(part, 10, 32)
				if err != nil || n == 0 {
					return nil, fail(lineNo, "invalid thread count %q", part)
				}
				for _, prev := range decl.Threads {
					if prev == uint32(n) {
						return nil, fail(lineNo, "duplicate thread variant %d", n)
					}
				}
				decl.Threads = append(decl.Threads, uint32(n))
			}

		case strings.HasPrefix(rest, "param "):
			if decl.Name == "" {
				return nil, fail(lineNo, "param directive before kernel directive")
			}
			p, err := parseParam(fields[1:])
			if err != nil {
				return nil, fail(lineNo, "%v", err)
			}
			for _, prev := range decl.Params {
				if prev.Name == p.Name {
					return nil, fail(lineNo, "duplicate parameter %q", p.Name)
				}
			}
			decl.Params = append(decl.Params, p)

		default:
			return nil, fail(lineNo, "unknown directive %q", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompilationFailed, path, err)
	}

	if decl.Module == "" {
		return nil, fmt.Errorf("%w: %s: missing module directive", ErrCompilationFailed, path)
	}
	if decl.Name == "" {
		return nil, fmt.Errorf("%w: %s: missing kernel directive", ErrCompilationFailed, path)
	}
	return decl, nil
}

// parseParam parses the fields after "param":
// <name> push|item|global [mut] <scalar>.
func parseParam(fields []string) (artifact.Param, error) {
	var p artifact.Param
	if len(fields) < 3 || len(fields) > 4 {
		return p, fmt.Errorf("param directive is: param <name> push|item|global [mut] <scalar>")
	}
	p.Name = fields[0]

	switch fields[1] {
	case "push":
		p.Kind = artifact.ParamPush
	case "item":
		p.Kind = artifact.ParamItem
	case "global":
		p.Kind = artifact.ParamGlobal
	default:
		return p, fmt.Errorf("unknown parameter kind %q", fields[1])
	}

	scalarField := fields[2]
	if len(fields) == 4 {
		if fields[2] != "mut" {
			return p, fmt.Errorf("expected \"mut\", got %q", fields[2])
		}
		if p.Kind == artifact.ParamPush {
			return p, fmt.Errorf("push parameter %q cannot be mut", p.Name)
		}
		p.Mutable = true
		scalarField = fields[3]
	}

	code, ok := scalarCodes[scalarField]
	if !ok {
		return p, fmt.Errorf("unknown scalar type %q", scalarField)
	}
	p.Scalar = code
	return p, nil
}
